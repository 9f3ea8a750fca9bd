package parser

import (
	"context"
	"fmt"
	"go/ast"
	goparser "go/parser"
	"go/token"
	"strings"

	"github.com/voxbrain/voxindex/pkg/types"
)

// GoParser extracts symbols from Go sources using the standard library
// AST. Tree-sitter also has a Go grammar, but go/ast is exact by
// definition and needs no grammar version tracking.
type GoParser struct{}

// NewGoParser creates a Go source parser
func NewGoParser() *GoParser {
	return &GoParser{}
}

// Language returns the language identifier
func (p *GoParser) Language() string { return "go" }

// Extensions returns the file extensions handled by this parser
func (p *GoParser) Extensions() []string { return []string{".go"} }

// Parse extracts symbols from a Go source file
func (p *GoParser) Parse(_ context.Context, filePath string, source []byte) (*types.ParseResult, error) {
	result := &types.ParseResult{
		FilePath: filePath,
		Language: p.Language(),
	}

	fset := token.NewFileSet()
	file, err := goparser.ParseFile(fset, filePath, source, goparser.ParseComments)
	if err != nil {
		// Syntax errors are non-fatal. The parser may still return a
		// partial AST, and partial symbols beat none.
		result.Err = &types.ParseError{FilePath: filePath, Reason: fmt.Sprintf("syntax error: %v", err)}
	}
	if file == nil {
		return result, nil
	}

	ex := &goExtractor{
		fset:     fset,
		source:   source,
		filePath: filePath,
	}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			ex.extractFunction(d)
		case *ast.GenDecl:
			ex.extractGenDecl(d)
		}
	}

	result.Symbols = ex.symbols
	return result, nil
}

type goExtractor struct {
	fset     *token.FileSet
	source   []byte
	filePath string
	symbols  []types.Symbol
}

// extractFunction extracts function and method declarations
func (e *goExtractor) extractFunction(funcDecl *ast.FuncDecl) {
	sym := types.Symbol{
		Name:      funcDecl.Name.Name,
		Kind:      types.KindFunction,
		FilePath:  e.filePath,
		Docstring: docText(funcDecl.Doc),
		Code:      e.textOf(funcDecl.Pos(), funcDecl.End()),
	}
	sym.StartLine, sym.EndLine = e.lineSpan(funcDecl.Pos(), funcDecl.End())

	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		sym.Kind = types.KindMethod
		sym.Parent = receiverType(funcDecl.Recv.List[0].Type)
	}

	e.symbols = append(e.symbols, sym)
}

// extractGenDecl extracts type, const, and var declarations
func (e *goExtractor) extractGenDecl(genDecl *ast.GenDecl) {
	for _, spec := range genDecl.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			e.extractTypeSpec(s, genDecl)
		case *ast.ValueSpec:
			e.extractValueSpec(s, genDecl)
		}
	}
}

func (e *goExtractor) extractTypeSpec(typeSpec *ast.TypeSpec, genDecl *ast.GenDecl) {
	sym := types.Symbol{
		Name:     typeSpec.Name.Name,
		FilePath: e.filePath,
		Code:     e.textOf(typeSpec.Pos(), typeSpec.End()),
	}
	sym.StartLine, sym.EndLine = e.lineSpan(typeSpec.Pos(), typeSpec.End())

	sym.Docstring = docText(typeSpec.Doc)
	if sym.Docstring == "" {
		sym.Docstring = docText(genDecl.Doc)
	}

	switch typeSpec.Type.(type) {
	case *ast.StructType:
		sym.Kind = types.KindStruct
	case *ast.InterfaceType:
		sym.Kind = types.KindInterface
	default:
		sym.Kind = types.KindType
	}

	e.symbols = append(e.symbols, sym)
}

func (e *goExtractor) extractValueSpec(valueSpec *ast.ValueSpec, genDecl *ast.GenDecl) {
	kind := types.KindVar
	if genDecl.Tok == token.CONST {
		kind = types.KindConst
	}

	doc := docText(valueSpec.Doc)
	if doc == "" {
		doc = docText(genDecl.Doc)
	}

	// Blank identifiers carry no retrievable meaning.
	names := make([]string, 0, len(valueSpec.Names))
	for _, name := range valueSpec.Names {
		if name.Name != "_" {
			names = append(names, name.Name)
		}
	}
	if len(names) == 0 {
		return
	}

	// All names in one spec share the definition span, and the span is
	// the storage identity. Emitting them separately would collide, so a
	// multi-name spec becomes one symbol naming every identifier.
	sym := types.Symbol{
		Name:      strings.Join(names, ", "),
		Kind:      kind,
		FilePath:  e.filePath,
		Docstring: doc,
		Code:      e.textOf(valueSpec.Pos(), valueSpec.End()),
	}
	sym.StartLine, sym.EndLine = e.lineSpan(valueSpec.Pos(), valueSpec.End())
	e.symbols = append(e.symbols, sym)
}

// textOf slices the original source for a node span, preserving the
// author's exact formatting.
func (e *goExtractor) textOf(start, end token.Pos) string {
	s := e.fset.Position(start).Offset
	t := e.fset.Position(end).Offset
	if s < 0 || t > len(e.source) || s >= t {
		return ""
	}
	return string(e.source[s:t])
}

func (e *goExtractor) lineSpan(start, end token.Pos) (int, int) {
	return e.fset.Position(start).Line, e.fset.Position(end).Line
}

// receiverType extracts the receiver type name from a method
func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		// Generic receiver: Name[T]
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	}
	return ""
}

func docText(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}
