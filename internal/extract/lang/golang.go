// Package lang registers one extract.LanguageSpec per supported
// grammar. Grounded on the teacher's internal/chunker/languages
// package: same tree-sitter grammar subpackages, same capture-based
// query shape, extended with a KindMapper so each node type lands on
// the spec's Kind taxonomy, and with Rust and Java (present in
// original_source's parser.py but dropped from the teacher's own
// four-language chat product) to broaden coverage.
package lang

import (
	"codebased/internal/extract"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// RegisterGo adds the Go grammar to r.
func RegisterGo(r *extract.Registry) {
	r.Register(&extract.LanguageSpec{
		Name:     "go",
		Language: golang.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @chunk
			(method_declaration name: (field_identifier) @name) @chunk
			(type_declaration (type_spec name: (type_identifier) @name)) @chunk
			(var_declaration (var_spec name: (identifier) @name)) @chunk
			(const_declaration (const_spec name: (identifier) @name)) @chunk
		`,
		Extensions: []string{"go"},
		KindOf:     kindOfGo,
	})
}

func kindOfGo(node *sitter.Node) extract.Kind {
	switch node.Type() {
	case "function_declaration":
		return extract.KindFunction
	case "method_declaration":
		return extract.KindMethod
	case "var_declaration", "const_declaration":
		return extract.KindVariable
	case "type_declaration":
		return kindOfGoTypeSpec(node)
	}
	return extract.KindTypeAlias
}

// kindOfGoTypeSpec descends into the type_declaration's type_spec to
// distinguish struct/interface/plain alias — the query only captures
// the outer node, so the mapper walks the same shape the query matched.
func kindOfGoTypeSpec(node *sitter.Node) extract.Kind {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "type_spec" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			grandchild := child.Child(j)
			switch grandchild.Type() {
			case "struct_type":
				return extract.KindStruct
			case "interface_type":
				return extract.KindInterface
			}
		}
	}
	return extract.KindTypeAlias
}
