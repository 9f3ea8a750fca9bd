package indexer

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/voxbrain/voxindex/internal/parser"
)

// ExcludeFunc reports whether a path, relative to the project root,
// should be skipped during discovery. Returning true for a directory
// prunes its whole subtree.
type ExcludeFunc func(relPath string, isDir bool) bool

// ignoredDirs are directory names skipped by default: test suites,
// dependency trees, build output and generated code contribute noise,
// not symbols.
var ignoredDirs = map[string]struct{}{
	"tests":        {},
	"test":         {},
	"__tests__":    {},
	"node_modules": {},
	"__pycache__":  {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	".next":        {},
	"venv":         {},
	".venv":        {},
	"migrations":   {},
	"coverage":     {},
	"testdata":     {},
}

// DefaultExcludes is the stock exclusion predicate: hidden entries,
// well-known test and dependency directories, test files and minified
// bundles.
func DefaultExcludes(relPath string, isDir bool) bool {
	name := filepath.Base(relPath)
	if strings.HasPrefix(name, ".") {
		return true
	}
	if isDir {
		_, ignored := ignoredDirs[name]
		return ignored
	}
	return isTestFile(name) || strings.HasSuffix(name, ".min.js")
}

// isTestFile matches the test naming conventions of the supported
// languages by file name alone.
func isTestFile(name string) bool {
	switch {
	case strings.HasSuffix(name, "_test.go"):
		return true
	case strings.HasSuffix(name, ".py") &&
		(strings.HasPrefix(name, "test_") || strings.HasSuffix(name, "_test.py")):
		return true
	case strings.Contains(name, ".test.") || strings.Contains(name, ".spec."):
		return true
	}
	return false
}

// discoverFiles walks the project root and returns paths, relative to
// root, of every source file a registered parser claims and the exclude
// predicate admits.
func discoverFiles(rootPath string, registry *parser.Registry, exclude ExcludeFunc) ([]string, error) {
	if exclude == nil {
		exclude = DefaultExcludes
	}
	var files []string

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == rootPath {
			return nil
		}

		rel, err := filepath.Rel(rootPath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if exclude(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.IsDir() && registry.Supported(path) {
			files = append(files, rel)
		}
		return nil
	})

	return files, err
}
