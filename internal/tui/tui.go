// Package tui implements the interactive results browser: the
// out-of-scope teacher chat TUI's replacement surface, scoped to the
// spec's single supported operation, Query -> ResultPage. Grounded on
// the teacher's internal/tui package (a top-level Bubble Tea Model
// dispatching to per-screen sub-models, a bubbles/textinput query box,
// lipgloss styling) but trimmed from a four-screen chat wizard down to
// one query box plus one scrollable result list.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"codebased/internal/editor"
	"codebased/internal/search"
)

// Searcher is the subset of internal/search.Searcher the TUI needs.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// Config configures a Model.
type Config struct {
	Searcher    Searcher
	EditorCmd   string
	ResultLimit int
}

// Model is the top-level Bubble Tea model: a query input and a result
// list, with a detail viewport for the selected result's body.
type Model struct {
	cfg      Config
	input    textinput.Model
	results  []search.Result
	selected int
	detail   viewport.Model
	width    int
	height   int
	err      error
	status   string
}

// New creates a results-browser Model. An initial query may be empty,
// in which case the browser starts on the query box.
func New(cfg Config, initialQuery string) Model {
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = 10
	}
	ti := textinput.New()
	ti.Placeholder = "search query"
	ti.SetValue(initialQuery)
	ti.Focus()

	return Model{
		cfg:    cfg,
		input:  ti,
		detail: viewport.New(80, 20),
	}
}

func (m Model) Init() tea.Cmd {
	if strings.TrimSpace(m.input.Value()) != "" {
		return runQuery(m.cfg.Searcher, m.input.Value(), m.cfg.ResultLimit)
	}
	return nil
}

type queryResultMsg struct {
	results []search.Result
	err     error
}

func runQuery(s Searcher, query string, limit int) tea.Cmd {
	return func() tea.Msg {
		results, err := s.Search(context.Background(), query, limit)
		return queryResultMsg{results: results, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.detail.Width = msg.Width - 4
		m.detail.Height = msg.Height / 2
		return m, nil

	case queryResultMsg:
		m.err = msg.err
		m.results = msg.results
		m.selected = 0
		m.status = fmt.Sprintf("%d results", len(m.results))
		m.syncDetail()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.input.Focused() {
				return m, tea.Quit
			}
			m.input.Focus()
			return m, nil
		case "enter":
			if m.input.Focused() {
				m.input.Blur()
				return m, runQuery(m.cfg.Searcher, m.input.Value(), m.cfg.ResultLimit)
			}
			return m, m.openSelected()
		case "j", "down":
			if !m.input.Focused() && m.selected < len(m.results)-1 {
				m.selected++
				m.syncDetail()
			}
			return m, nil
		case "k", "up":
			if !m.input.Focused() && m.selected > 0 {
				m.selected--
				m.syncDetail()
			}
			return m, nil
		case "/":
			m.input.Focus()
			return m, nil
		case "o":
			if !m.input.Focused() {
				return m, m.openSelected()
			}
		case "q":
			if !m.input.Focused() {
				return m, tea.Quit
			}
		}
	}

	if m.input.Focused() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m *Model) syncDetail() {
	if m.selected >= 0 && m.selected < len(m.results) {
		m.detail.SetContent(bodyStyle.Render(m.results[m.selected].Body))
		m.detail.GotoTop()
	}
}

// openSelected launches the configured editor at the selected result's
// file:line, matching the teacher's practice of shelling out for
// external actions rather than reimplementing an editor in-process.
// tea.ExecProcess suspends the Bubble Tea renderer for the duration of
// the subprocess, handing the terminal back to it cleanly.
func (m Model) openSelected() tea.Cmd {
	if m.selected < 0 || m.selected >= len(m.results) {
		return nil
	}
	r := m.results[m.selected]
	cmd, err := editor.Command(m.cfg.EditorCmd, r.Object.Path, r.Object.Coordinates.StartLine+1)
	if err != nil {
		return func() tea.Msg { return queryResultMsg{err: err} }
	}
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		if err != nil {
			return queryResultMsg{err: err}
		}
		return nil
	})
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("codebased search") + "\n")
	b.WriteString(m.input.View() + "\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n")
	}

	for i, r := range m.results {
		line := fmt.Sprintf("%s:%d  %s  %s",
			r.Object.Path, r.Object.Coordinates.StartLine+1, r.Object.Name,
			scoreStyle.Render(fmt.Sprintf("(%.3f)", r.FusedScore)))
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> "+line) + "\n")
		} else {
			b.WriteString("  " + pathStyle.Render(line) + "\n")
		}
	}

	b.WriteString("\n" + m.detail.View() + "\n")
	b.WriteString(statusBarStyle.Render(m.status + "  [enter search/open | j/k move | o open | q quit]"))
	return b.String()
}

// Run starts the results-browser program with an optional initial
// query (empty runs the browser with focus on the query box).
func Run(cfg Config, initialQuery string) error {
	p := tea.NewProgram(New(cfg, initialQuery), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
