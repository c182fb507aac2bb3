package lang

import (
	"codebased/internal/extract"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

// RegisterJava adds the Java grammar to r. Present in original_source's
// parser.py but absent from the teacher's own four-language chat
// product; ported here for broader coverage.
func RegisterJava(r *extract.Registry) {
	r.Register(&extract.LanguageSpec{
		Name:     "java",
		Language: java.GetLanguage(),
		Query: `
			(class_declaration name: (identifier) @name) @chunk
			(interface_declaration name: (identifier) @name) @chunk
			(method_declaration name: (identifier) @name) @chunk
		`,
		Extensions: []string{"java"},
		KindOf:     kindOfJava,
	})
}

func kindOfJava(node *sitter.Node) extract.Kind {
	switch node.Type() {
	case "class_declaration":
		return extract.KindClass
	case "interface_declaration":
		return extract.KindInterface
	case "method_declaration":
		return extract.KindMethod
	}
	return extract.KindClass
}
