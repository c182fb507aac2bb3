// Package editor launches the user's configured editor at a specific
// file and line, grounded on the teacher's practice of shelling out
// to external tools via os/exec with inherited stdio (the same pattern
// its cmd package uses for one-shot subprocess calls).
package editor

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Open launches command at path:line and waits for it to exit.
func Open(command, path string, line int) error {
	cmd, err := Command(command, path, line)
	if err != nil {
		return err
	}
	return cmd.Run()
}

// Command builds the *exec.Cmd for launching command at path:line,
// with stdio wired to the calling process so an interactive editor
// (vim, nvim, emacs -nw) behaves normally. Exposed separately from
// Open so callers that need to suspend their own event loop first
// (e.g. bubbletea's tea.ExecProcess) can do so around Run.
func Command(command, path string, line int) (*exec.Cmd, error) {
	if command == "" {
		return nil, fmt.Errorf("no editor configured")
	}
	args := buildArgs(command, path, line)
	if len(args) == 0 {
		return nil, fmt.Errorf("empty editor command")
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd, nil
}

// buildArgs splits the configured editor command and appends a
// +line-number argument followed by the path, the convention shared by
// vim, nvim, emacs -nw, nano, and helix.
func buildArgs(command, path string, line int) []string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil
	}
	return append(fields, fmt.Sprintf("+%d", line), path)
}
