package parser

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/voxbrain/voxindex/pkg/types"
)

// TypeScriptParser extracts symbols from TypeScript, TSX and JavaScript
// sources. Each dialect gets its own grammar; extraction logic is shared
// because the relevant node types line up.
type TypeScriptParser struct {
	byExt map[string]*treeSitterParser
}

// NewTypeScriptParser creates a TypeScript/JavaScript source parser
func NewTypeScriptParser() *TypeScriptParser {
	ts := newTreeSitterParser(typescript.GetLanguage())
	js := newTreeSitterParser(javascript.GetLanguage())
	return &TypeScriptParser{
		byExt: map[string]*treeSitterParser{
			".ts":  ts,
			".tsx": newTreeSitterParser(tsx.GetLanguage()),
			".js":  js,
			".jsx": js,
			".mjs": js,
		},
	}
}

// Language returns the language identifier
func (p *TypeScriptParser) Language() string { return "typescript" }

// Extensions returns the file extensions handled by this parser
func (p *TypeScriptParser) Extensions() []string {
	return []string{".ts", ".tsx", ".js", ".jsx", ".mjs"}
}

// Parse extracts symbols from a TypeScript or JavaScript source file
func (p *TypeScriptParser) Parse(ctx context.Context, filePath string, source []byte) (*types.ParseResult, error) {
	result := &types.ParseResult{
		FilePath: filePath,
		Language: p.Language(),
	}

	ts := p.byExt[extOf(filePath)]
	if ts == nil {
		return nil, types.ErrUnsupportedLanguage
	}

	root := ts.parse(ctx, filePath, source, result)
	if root == nil {
		return result, nil
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		p.extractTopLevel(root.NamedChild(i), source, result)
	}
	return result, nil
}

func (p *TypeScriptParser) extractTopLevel(node *sitter.Node, source []byte, result *types.ParseResult) {
	// export and export default wrap the declaration; the symbol span
	// keeps the export keyword.
	span := node
	if node.Type() == "export_statement" {
		if decl := node.ChildByFieldName("declaration"); decl != nil {
			node = decl
		} else {
			return
		}
	}

	switch node.Type() {
	case "function_declaration", "generator_function_declaration":
		p.addSymbol(node, span, source, result, types.KindFunction, fieldText(node, "name", source), "")

	case "class_declaration", "abstract_class_declaration":
		p.extractClass(node, span, source, result)

	case "interface_declaration":
		p.addSymbol(node, span, source, result, types.KindInterface, fieldText(node, "name", source), "")

	case "type_alias_declaration", "enum_declaration":
		p.addSymbol(node, span, source, result, types.KindType, fieldText(node, "name", source), "")

	case "lexical_declaration", "variable_declaration":
		p.extractVariables(node, span, source, result)
	}
}

func (p *TypeScriptParser) extractClass(class, span *sitter.Node, source []byte, result *types.ParseResult) {
	name := fieldText(class, "name", source)
	if name == "" {
		return
	}
	p.addSymbol(class, span, source, result, types.KindClass, name, "")

	body := class.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		if member.Type() != "method_definition" {
			continue
		}
		methodName := fieldText(member, "name", source)
		if methodName == "" {
			continue
		}
		p.addSymbol(member, member, source, result, types.KindMethod, methodName, name)
	}
}

// extractVariables turns const/let declarators into symbols. An arrow
// function or function expression initializer counts as a function; other
// initializers become vars.
func (p *TypeScriptParser) extractVariables(decl, span *sitter.Node, source []byte, result *types.ParseResult) {
	var names []string
	merged := types.KindConst
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		declarator := decl.NamedChild(i)
		if declarator.Type() != "variable_declarator" {
			continue
		}
		name := fieldText(declarator, "name", source)
		if name == "" {
			continue
		}

		kind := types.KindVar
		if value := declarator.ChildByFieldName("value"); value != nil {
			switch value.Type() {
			case "arrow_function", "function_expression", "function", "generator_function":
				kind = types.KindFunction
			}
		}

		// Plain non-function variables are noise at module scope unless
		// the declaration is const.
		if kind == types.KindVar && !isConstDeclaration(decl, source) {
			continue
		}
		if kind == types.KindVar {
			kind = types.KindConst
		}

		if len(names) == 0 {
			merged = kind
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return
	}

	// Every declarator in one statement shares the statement span, and
	// the span is the storage identity. A multi-declarator statement
	// becomes one symbol naming every identifier.
	p.addSymbol(decl, span, source, result, merged, strings.Join(names, ", "), "")
}

func (p *TypeScriptParser) addSymbol(node, span *sitter.Node, source []byte, result *types.ParseResult, kind types.SymbolKind, name, parent string) {
	if name == "" {
		return
	}
	sym := types.Symbol{
		Name:     name,
		Kind:     kind,
		FilePath: result.FilePath,
		Parent:   parent,
		Code:     nodeText(span, source),
	}
	sym.StartLine, sym.EndLine = nodeSpan(span)
	result.Symbols = append(result.Symbols, sym)
}

func isConstDeclaration(decl *sitter.Node, source []byte) bool {
	if decl.ChildCount() == 0 {
		return false
	}
	return nodeText(decl.Child(0), source) == "const"
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}
