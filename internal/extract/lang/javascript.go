package lang

import (
	"codebased/internal/extract"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// RegisterJavaScript adds the JavaScript grammar to r.
func RegisterJavaScript(r *extract.Registry) {
	r.Register(&extract.LanguageSpec{
		Name:     "javascript",
		Language: javascript.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @chunk
			(class_declaration name: (identifier) @name) @chunk
			(method_definition name: (property_identifier) @name) @chunk
			(export_statement (function_declaration name: (identifier) @name)) @chunk
			(export_statement (class_declaration name: (identifier) @name)) @chunk
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @chunk
		`,
		Extensions: []string{"js", "jsx", "mjs", "cjs"},
		KindOf:     kindOfJavaScript,
	})
}

func kindOfJavaScript(node *sitter.Node) extract.Kind {
	target := node
	if node.Type() == "export_statement" {
		if inner := node.NamedChild(0); inner != nil {
			target = inner
		}
	}
	switch target.Type() {
	case "class_declaration":
		return extract.KindClass
	case "method_definition":
		return extract.KindMethod
	case "lexical_declaration":
		return extract.KindFunction
	}
	return extract.KindFunction
}
