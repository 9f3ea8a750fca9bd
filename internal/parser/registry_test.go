package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbrain/voxindex/pkg/types"
)

func TestRegistryRoutesByExtension(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		path string
		lang string
	}{
		{"main.go", "go"},
		{"app.py", "python"},
		{"index.ts", "typescript"},
		{"view.tsx", "typescript"},
		{"legacy.js", "typescript"},
		{"SRC/UPPER.GO", "go"},
	}

	for _, tt := range tests {
		p, err := r.ForFile(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.lang, p.Language(), tt.path)
	}
}

func TestRegistryUnsupportedExtension(t *testing.T) {
	r := DefaultRegistry()

	_, err := r.ForFile("README.md")
	assert.ErrorIs(t, err, types.ErrUnsupportedLanguage)
	assert.False(t, r.Supported("Makefile"))
	assert.True(t, r.Supported("cmd/main.go"))
}
