package extract

// Kind is the language-independent object taxonomy from the spec's
// data model. Each language's KindMapper fits its grammar's node types
// onto this fixed set.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindStruct    Kind = "struct"
	KindInterface Kind = "interface"
	KindVariable  Kind = "variable"
	KindTypeAlias Kind = "type_alias"
	KindModule    Kind = "module"
)
