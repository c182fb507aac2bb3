package lang

import (
	"codebased/internal/extract"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// RegisterRust adds the Rust grammar to r. Present in original_source's
// parser.py but absent from the teacher's own four-language chat
// product; ported here for broader coverage.
func RegisterRust(r *extract.Registry) {
	r.Register(&extract.LanguageSpec{
		Name:     "rust",
		Language: rust.GetLanguage(),
		Query: `
			(struct_item name: (type_identifier) @name) @chunk
			(enum_item name: (type_identifier) @name) @chunk
			(union_item name: (type_identifier) @name) @chunk
			(type_item name: (type_identifier) @name) @chunk
			(function_item name: (identifier) @name) @chunk
			(trait_item name: (type_identifier) @name) @chunk
			(mod_item name: (identifier) @name) @chunk
		`,
		Extensions: []string{"rs"},
		KindOf:     kindOfRust,
	})
}

func kindOfRust(node *sitter.Node) extract.Kind {
	switch node.Type() {
	case "struct_item", "enum_item", "union_item":
		return extract.KindStruct
	case "type_item":
		return extract.KindTypeAlias
	case "function_item":
		return kindOfRustFunction(node)
	case "trait_item":
		return extract.KindInterface
	case "mod_item":
		return extract.KindModule
	}
	return extract.KindFunction
}

// kindOfRustFunction reports a method when the function_item's nearest
// enclosing item is an impl_item (an inherent or trait implementation
// block), a function otherwise.
func kindOfRustFunction(node *sitter.Node) extract.Kind {
	parent := node.Parent() // declaration_list
	if parent == nil {
		return extract.KindFunction
	}
	grandparent := parent.Parent()
	if grandparent != nil && grandparent.Type() == "impl_item" {
		return extract.KindMethod
	}
	return extract.KindFunction
}
