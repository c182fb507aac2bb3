package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// contextWindow is the maximum number of bytes of surrounding source
// kept as an object's context_before/context_after, per spec.
const contextWindow = 512

// Coordinates locates an object in its source file with 0-based lines.
type Coordinates struct {
	StartLine, StartCol, EndLine, EndCol int
}

// Object is one extracted code structure, ready for the caller to
// persist and embed.
type Object struct {
	Name          string
	Language      string
	Kind          Kind
	ByteStart     int
	ByteEnd       int
	Coordinates   Coordinates
	ContextBefore string
	ContextAfter  string
	Body          string
	ContentHash   string
}

// Extractor parses source files and extracts their Objects using the
// tree-sitter grammar registered for the file's language.
type Extractor struct {
	registry *Registry
}

// NewExtractor creates an Extractor backed by the given registry.
func NewExtractor(r *Registry) *Extractor {
	return &Extractor{registry: r}
}

// Registry exposes the underlying language registry.
func (e *Extractor) Registry() *Registry { return e.registry }

// Extract parses src according to path's extension and returns the
// finite ordered list of Objects it contains. An unregistered extension
// returns (nil, nil): the file still gets a fingerprint elsewhere, but
// contributes zero objects, per spec. A grammar parse failure is
// reported as an error; callers must treat it as non-fatal (log and
// keep the fingerprint), matching spec.md §4.3 / §7.
func (e *Extractor) Extract(path string, src []byte) ([]Object, error) {
	spec := e.registry.Lookup(path)
	if spec == nil {
		return nil, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(spec.Language)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	q, err := sitter.NewQuery([]byte(spec.Query), spec.Language)
	if err != nil {
		return nil, fmt.Errorf("compile query for %s: %w", spec.Name, err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var caps []capture
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var chunkNode, nameNode *sitter.Node
		for _, c := range m.Captures {
			switch q.CaptureNameForId(c.Index) {
			case "chunk":
				chunkNode = c.Node
			case "name":
				nameNode = c.Node
			}
		}
		if chunkNode == nil || nameNode == nil {
			continue // no identifier capture: the object is skipped, per spec
		}
		caps = append(caps, capture{
			name: nameNode.Content(src),
			node: chunkNode,
		})
	}

	caps = dedupOverlapping(caps)

	objects := make([]Object, 0, len(caps))
	for _, c := range caps {
		start, end := extendForDocComment(c.node, src)
		startPoint, endPoint := pointsForRange(c.node, start, end, src)

		body := string(src[start:end])
		before := truncateContextBefore(src, start)
		after := truncateContextAfter(src, end)
		kind := spec.KindOf(c.node)

		objects = append(objects, Object{
			Name:          c.name,
			Language:      spec.Name,
			Kind:          kind,
			ByteStart:     start,
			ByteEnd:       end,
			Coordinates:   Coordinates{startPoint.row, startPoint.col, endPoint.row, endPoint.col},
			ContextBefore: before,
			ContextAfter:  after,
			Body:          body,
			ContentHash:   contentFingerprint(spec.Name, string(kind), before, body, after),
		})
	}
	return objects, nil
}

type capture struct {
	name string
	node *sitter.Node
}

// dedupOverlapping collapses only true duplicate matches of the same
// declaration, not distinct nested objects. A handful of grammars have
// two patterns match the same declaration once wrapped and once bare —
// a decorated_definition's inner function_definition, or an
// export_statement's inner function_declaration/class_declaration — so
// the bare pattern's capture is a direct child of the wrapper's
// capture, both spanning (nearly) the same declaration. Genuine nesting
// (a method inside a class) never has this direct-parent relationship:
// the method's immediate parent is an intervening body/block node that
// nothing captures, so it survives as its own object, per spec.md §3.
func dedupOverlapping(caps []capture) []capture {
	if len(caps) <= 1 {
		return caps
	}
	// A node is keyed by its type as well as its span: a block holding a
	// single statement spans exactly the same bytes as that statement.
	type span struct {
		start, end uint32
		typ        string
	}
	captured := make(map[span]bool, len(caps))
	for _, c := range caps {
		captured[span{c.node.StartByte(), c.node.EndByte(), c.node.Type()}] = true
	}

	seen := make(map[span]bool, len(caps))
	out := make([]capture, 0, len(caps))
	for _, c := range caps {
		sp := span{c.node.StartByte(), c.node.EndByte(), c.node.Type()}
		if seen[sp] {
			continue // multiple patterns matched the identical node
		}
		if parent := c.node.Parent(); parent != nil {
			if captured[span{parent.StartByte(), parent.EndByte(), parent.Type()}] {
				continue // this declaration is also captured, wrapped, by its parent
			}
		}
		seen[sp] = true
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].node.StartByte() < out[j].node.StartByte()
	})
	return out
}

// extendForDocComment walks backward over immediately adjacent leading
// comment siblings (no blank line separating them) and extends the
// declaration's byte range to include them, per spec.md §4.3.
func extendForDocComment(node *sitter.Node, src []byte) (start, end int) {
	start = int(node.StartByte())
	end = int(node.EndByte())

	cur := node.PrevSibling()
	for cur != nil && isCommentNode(cur) {
		gapStart := int(cur.EndByte())
		gapEnd := start
		if !adjacentNoBlankLine(src, gapStart, gapEnd) {
			break
		}
		start = int(cur.StartByte())
		cur = cur.PrevSibling()
	}
	return start, end
}

func isCommentNode(n *sitter.Node) bool {
	return strings.Contains(n.Type(), "comment")
}

// adjacentNoBlankLine reports whether the bytes strictly between two
// nodes contain at most one newline (i.e. no blank line separates
// them).
func adjacentNoBlankLine(src []byte, from, to int) bool {
	if from > to || to > len(src) {
		return false
	}
	gap := src[from:to]
	return strings.Count(string(gap), "\n") <= 1
}

type point struct{ row, col int }

// pointsForRange returns the 0-based (line, col) coordinates for the
// (possibly doc-comment-extended) byte range, falling back to the
// grammar node's own points when the range wasn't extended.
func pointsForRange(node *sitter.Node, start, end int, src []byte) (point, point) {
	if start == int(node.StartByte()) {
		sp := node.StartPoint()
		ep := node.EndPoint()
		return point{int(sp.Row), int(sp.Column)}, point{int(ep.Row), int(ep.Column)}
	}
	sp := byteToLineCol(src, start)
	ep := node.EndPoint()
	return sp, point{int(ep.Row), int(ep.Column)}
}

func byteToLineCol(src []byte, offset int) point {
	line, col := 0, 0
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return point{line, col}
}

// truncateContextBefore returns up to contextWindow bytes preceding
// offset, dropping a partial leading line so the slice starts at a line
// boundary.
func truncateContextBefore(src []byte, offset int) string {
	from := offset - contextWindow
	if from < 0 {
		from = 0
	}
	window := src[from:offset]
	if from > 0 {
		if nl := indexByte(window, '\n'); nl >= 0 {
			window = window[nl+1:]
		}
	}
	return string(window)
}

// truncateContextAfter returns up to contextWindow bytes following
// offset, dropping a partial trailing line so the slice ends at a line
// boundary.
func truncateContextAfter(src []byte, offset int) string {
	to := offset + contextWindow
	if to > len(src) {
		to = len(src)
	}
	window := src[offset:to]
	if to < len(src) {
		if nl := lastIndexByte(window, '\n'); nl >= 0 {
			window = window[:nl+1]
		}
	}
	return string(window)
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func lastIndexByte(b []byte, c byte) int {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] == c {
			return i
		}
	}
	return -1
}

// contentFingerprint is the object's content-addressed key, per
// spec.md §3: sha256(language \0 kind \0 context_before ++ body ++
// context_after).
func contentFingerprint(language, kind, before, body, after string) string {
	h := sha256.New()
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(before))
	h.Write([]byte(body))
	h.Write([]byte(after))
	return hex.EncodeToString(h.Sum(nil))
}
