package parser

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/voxbrain/voxindex/pkg/types"
)

// SymbolParser extracts symbols from one language family. Implementations
// must be safe for concurrent use; the indexing pipeline calls Parse from
// multiple workers.
type SymbolParser interface {
	// Language returns the language name recorded on parse results.
	Language() string

	// Extensions returns the file extensions this parser claims,
	// including the leading dot.
	Extensions() []string

	// Parse extracts symbols from source. Syntax errors are recorded on
	// the result, not returned: a broken file still yields whatever
	// symbols the partial tree contains.
	Parse(ctx context.Context, filePath string, source []byte) (*types.ParseResult, error)
}

// Registry maps file extensions to parsers. It is built once at startup
// and read-only afterward, so lookups need no locking.
type Registry struct {
	byExt map[string]SymbolParser
}

// NewRegistry builds a registry over the given parsers. A later parser
// claiming an extension an earlier one already claimed wins.
func NewRegistry(parsers ...SymbolParser) *Registry {
	r := &Registry{byExt: make(map[string]SymbolParser)}
	for _, p := range parsers {
		for _, ext := range p.Extensions() {
			r.byExt[strings.ToLower(ext)] = p
		}
	}
	return r
}

// DefaultRegistry returns a registry covering Go, Python, TypeScript and
// JavaScript sources.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewGoParser(),
		NewPythonParser(),
		NewTypeScriptParser(),
	)
}

// ForFile returns the parser responsible for the given path, or
// ErrUnsupportedLanguage when no parser claims its extension.
func (r *Registry) ForFile(path string) (SymbolParser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	p, ok := r.byExt[ext]
	if !ok {
		return nil, types.ErrUnsupportedLanguage
	}
	return p, nil
}

// Supported reports whether any parser claims the path's extension.
func (r *Registry) Supported(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions returns every extension the registry covers.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	return exts
}
