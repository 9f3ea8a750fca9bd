// Package parser extracts code symbols from source files. Go sources go
// through the standard library AST; Python, TypeScript and JavaScript go
// through tree-sitter grammars. A registry routes files to parsers by
// extension.
package parser
