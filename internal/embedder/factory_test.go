package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbrain/voxindex/internal/config"
	"github.com/voxbrain/voxindex/pkg/types"
)

func TestNewRejectsConflictingDimension(t *testing.T) {
	// Ollama always produces OllamaDimension vectors; a configured
	// dimension that disagrees must fail at construction, not on the
	// first write.
	cfg := &config.Config{
		EmbeddingProvider: "ollama",
		OllamaHost:        "http://localhost:11434",
		EmbeddingDim:      512,
	}
	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)

	cfg.EmbeddingDim = OllamaDimension
	emb, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, OllamaDimension, emb.Dimension())
	_ = emb.Close()
}

func TestNewOpenAIRejectsConflictingDimension(t *testing.T) {
	cfg := &config.Config{
		EmbeddingProvider: "openai",
		OpenAIKey:         "sk-test",
		EmbeddingDim:      768,
	}
	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestNewLocalUsesConfiguredDimension(t *testing.T) {
	cfg := &config.Config{EmbeddingProvider: "local", EmbeddingDim: 8}
	emb, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, 8, emb.Dimension())
}

func TestNewUnknownProvider(t *testing.T) {
	cfg := &config.Config{EmbeddingProvider: "quantum", EmbeddingDim: 8}
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}
