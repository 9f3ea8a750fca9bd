package parser

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/voxbrain/voxindex/pkg/types"
)

// PythonParser extracts functions, classes and methods from Python
// sources via the tree-sitter grammar.
type PythonParser struct {
	ts *treeSitterParser
}

// NewPythonParser creates a Python source parser
func NewPythonParser() *PythonParser {
	return &PythonParser{ts: newTreeSitterParser(python.GetLanguage())}
}

// Language returns the language identifier
func (p *PythonParser) Language() string { return "python" }

// Extensions returns the file extensions handled by this parser
func (p *PythonParser) Extensions() []string { return []string{".py"} }

// Parse extracts symbols from a Python source file
func (p *PythonParser) Parse(ctx context.Context, filePath string, source []byte) (*types.ParseResult, error) {
	result := &types.ParseResult{
		FilePath: filePath,
		Language: p.Language(),
	}

	root := p.ts.parse(ctx, filePath, source, result)
	if root == nil {
		return result, nil
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		p.extractTopLevel(root.NamedChild(i), source, result)
	}
	return result, nil
}

// extractTopLevel handles one module-level statement.
func (p *PythonParser) extractTopLevel(node *sitter.Node, source []byte, result *types.ParseResult) {
	// A decorated definition wraps the real def; the symbol span must
	// include the decorators.
	span := node
	if node.Type() == "decorated_definition" {
		if def := node.ChildByFieldName("definition"); def != nil {
			node = def
		}
	}

	switch node.Type() {
	case "function_definition":
		result.Symbols = append(result.Symbols, p.functionSymbol(node, span, source, result.FilePath, types.KindFunction, ""))
	case "class_definition":
		p.extractClass(node, span, source, result)
	}
}

func (p *PythonParser) extractClass(class, span *sitter.Node, source []byte, result *types.ParseResult) {
	name := fieldText(class, "name", source)
	if name == "" {
		return
	}

	sym := types.Symbol{
		Name:      name,
		Kind:      types.KindClass,
		FilePath:  result.FilePath,
		Code:      nodeText(span, source),
		Docstring: pythonDocstring(class, source),
	}
	sym.StartLine, sym.EndLine = nodeSpan(span)
	result.Symbols = append(result.Symbols, sym)

	body := class.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		methodSpan := child
		if child.Type() == "decorated_definition" {
			if def := child.ChildByFieldName("definition"); def != nil {
				child = def
			}
		}
		if child.Type() == "function_definition" {
			result.Symbols = append(result.Symbols, p.functionSymbol(child, methodSpan, source, result.FilePath, types.KindMethod, name))
		}
	}
}

func (p *PythonParser) functionSymbol(def, span *sitter.Node, source []byte, filePath string, kind types.SymbolKind, parent string) types.Symbol {
	sym := types.Symbol{
		Name:      fieldText(def, "name", source),
		Kind:      kind,
		FilePath:  filePath,
		Parent:    parent,
		Code:      nodeText(span, source),
		Docstring: pythonDocstring(def, source),
	}
	sym.StartLine, sym.EndLine = nodeSpan(span)
	return sym
}

// pythonDocstring returns the docstring of a def or class: the string
// literal standing first in its body, stripped of quotes.
func pythonDocstring(def *sitter.Node, source []byte) string {
	body := def.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}

	text := nodeText(str, source)
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(text, q) && strings.HasSuffix(text, q) && len(text) >= 2*len(q) {
			return strings.TrimSpace(text[len(q) : len(text)-len(q)])
		}
	}
	return strings.TrimSpace(text)
}
