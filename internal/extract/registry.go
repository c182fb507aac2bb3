// Package extract implements ObjectExtractor: grammar-driven parsing of
// a file's bytes into the typed Object list the spec describes.
// Grounded on the teacher's internal/chunker package (tree-sitter
// parsing via github.com/smacker/go-tree-sitter, a query-per-language
// registry, capture-based extraction with overlap dedup), generalized
// from RawChunk (a flat text blob for embedding) to Object (byte
// ranges, coordinates, and separate before/after context) per the
// spec's data model.
package extract

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// KindMapper maps the outer @chunk capture's node to the spec's Kind
// taxonomy for one language. It receives the whole node, not just its
// type string, so languages that need to look at a child (e.g.
// distinguishing a Go struct type_declaration from an interface one)
// can do so.
type KindMapper func(node *sitter.Node) Kind

// LanguageSpec is one grammar's registration: its tree-sitter Language,
// the query that captures declarations, and the kind mapping.
type LanguageSpec struct {
	Name       string
	Language   *sitter.Language
	Query      string
	Extensions []string
	KindOf     KindMapper
}

// Registry maps file extensions to LanguageSpecs. Grounded on the
// teacher's chunker.Registry; a static registry keyed by language tag,
// per the spec's "no plugin loading" design note.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]*LanguageSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]*LanguageSpec)}
}

// Register adds a language spec, indexed by every extension it claims.
func (r *Registry) Register(spec *LanguageSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range spec.Extensions {
		r.byExt[ext] = spec
	}
}

// Lookup returns the spec registered for path's extension, or nil if
// the extension is unknown (the file still gets a fingerprint, per
// spec, but contributes zero objects).
func (r *Registry) Lookup(path string) *LanguageSpec {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byExt[ext]
}
