package lang

import (
	"codebased/internal/extract"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// RegisterPython adds the Python grammar to r.
func RegisterPython(r *extract.Registry) {
	r.Register(&extract.LanguageSpec{
		Name:     "python",
		Language: python.GetLanguage(),
		Query: `
			(function_definition name: (identifier) @name) @chunk
			(class_definition name: (identifier) @name) @chunk
			(decorated_definition definition: (function_definition name: (identifier) @name)) @chunk
			(decorated_definition definition: (class_definition name: (identifier) @name)) @chunk
		`,
		Extensions: []string{"py", "pyi"},
		KindOf:     kindOfPython,
	})
}

func kindOfPython(node *sitter.Node) extract.Kind {
	target := node
	if node.Type() == "decorated_definition" {
		if def := node.ChildByFieldName("definition"); def != nil {
			target = def
		}
	}
	switch target.Type() {
	case "class_definition":
		return extract.KindClass
	case "function_definition":
		if isPythonMethod(target) {
			return extract.KindMethod
		}
		return extract.KindFunction
	}
	return extract.KindFunction
}

// isPythonMethod reports whether a function_definition's nearest
// enclosing block belongs to a class_definition's body, i.e. it's
// declared as a method rather than a top-level function. A decorated
// method's parent is its own decorated_definition wrapper rather than
// the block directly, so that wrapper is skipped first.
func isPythonMethod(fn *sitter.Node) bool {
	parent := fn.Parent() // block, or decorated_definition when decorated
	if parent != nil && parent.Type() == "decorated_definition" {
		parent = parent.Parent()
	}
	if parent == nil {
		return false
	}
	grandparent := parent.Parent()
	return grandparent != nil && grandparent.Type() == "class_definition"
}
