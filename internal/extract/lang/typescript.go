package lang

import (
	"codebased/internal/extract"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// RegisterTypeScript adds the TypeScript grammar to r.
func RegisterTypeScript(r *extract.Registry) {
	r.Register(&extract.LanguageSpec{
		Name:     "typescript",
		Language: typescript.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @chunk
			(class_declaration name: (type_identifier) @name) @chunk
			(method_definition name: (property_identifier) @name) @chunk
			(export_statement (function_declaration name: (identifier) @name)) @chunk
			(export_statement (class_declaration name: (type_identifier) @name)) @chunk
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @chunk
			(interface_declaration name: (type_identifier) @name) @chunk
			(type_alias_declaration name: (type_identifier) @name) @chunk
		`,
		Extensions: []string{"ts", "tsx"},
		KindOf:     kindOfTypeScript,
	})
}

func kindOfTypeScript(node *sitter.Node) extract.Kind {
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
	case "interface_declaration":
		return extract.KindInterface
	case "type_alias_declaration":
		return extract.KindTypeAlias
	case "lexical_declaration":
		return extract.KindFunction
	}
	return extract.KindFunction
}
