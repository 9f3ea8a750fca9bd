package embedder

import (
	"fmt"
	"strings"

	"github.com/voxbrain/voxindex/internal/config"
	"github.com/voxbrain/voxindex/pkg/types"
)

// New creates an embedder from the loaded configuration.
func New(cfg *config.Config) (Embedder, error) {
	cache := NewCache(10000)

	var emb Embedder
	var err error
	switch strings.ToLower(cfg.EmbeddingProvider) {
	case ProviderOllama:
		emb, err = NewOllamaProvider(cfg.OllamaHost, cache)
	case ProviderOpenAI:
		emb, err = NewOpenAIProvider(cfg.OpenAIKey, cache)
	case ProviderLocal:
		emb, err = NewLocalProvider(cfg.EmbeddingDim, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.EmbeddingProvider)
	}
	if err != nil {
		return nil, err
	}

	// A configured dimension that disagrees with what the provider
	// produces is a fatal configuration error, caught here rather than
	// on the first write.
	if emb.Dimension() != cfg.EmbeddingDim {
		_ = emb.Close()
		return nil, fmt.Errorf("%w: provider %s produces %d-dimensional vectors, configured dimension is %d",
			types.ErrDimensionMismatch, emb.Provider(), emb.Dimension(), cfg.EmbeddingDim)
	}

	return emb, nil
}
