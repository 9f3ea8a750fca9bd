package embedder

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProviderDeterministic(t *testing.T) {
	provider, err := NewLocalProvider(64, nil)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "func Deposit(amount int)"})
	require.NoError(t, err)
	b, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "func Deposit(amount int)"})
	require.NoError(t, err)
	other, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "something else entirely"})
	require.NoError(t, err)

	assert.Equal(t, a.Vector, b.Vector)
	assert.NotEqual(t, a.Vector, other.Vector)
	assert.Len(t, a.Vector, 64)
	assert.Equal(t, 64, a.Dimension)
}

func TestLocalProviderRejectsEmptyText(t *testing.T) {
	provider, err := NewLocalProvider(8, nil)
	require.NoError(t, err)

	_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestTruncationSharesCacheEntry(t *testing.T) {
	cache := NewCache(10)
	provider, err := NewLocalProvider(8, cache)
	require.NoError(t, err)
	ctx := context.Background()

	long := strings.Repeat("x", MaxInputChars+500)
	longer := strings.Repeat("x", MaxInputChars+9000)

	a, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: long})
	require.NoError(t, err)
	b, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: longer})
	require.NoError(t, err)

	// Both inputs truncate to the same prefix and hit one cache entry.
	assert.Equal(t, a.Hash, b.Hash)
	assert.Equal(t, 1, cache.Size())
}

func TestCacheReturnsCopy(t *testing.T) {
	cache := NewCache(10)
	cache.Set("h", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3})

	got, ok := cache.Get("h")
	require.True(t, ok)
	got.Vector[0] = 99

	again, ok := cache.Get("h")
	require.True(t, ok)
	assert.Equal(t, float32(1), again.Vector[0])
}

func TestValidateBatchRequest(t *testing.T) {
	assert.ErrorIs(t, ValidateBatchRequest(BatchEmbeddingRequest{}), ErrInvalidInput)
	assert.ErrorIs(t, ValidateBatchRequest(BatchEmbeddingRequest{Texts: []string{"ok", ""}}), ErrInvalidInput)
	assert.NoError(t, ValidateBatchRequest(BatchEmbeddingRequest{Texts: []string{"ok"}}))
}

func TestLocalProviderBatch(t *testing.T) {
	provider, err := NewLocalProvider(16, nil)
	require.NoError(t, err)

	resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{
		Texts: []string{"one", "two", "three"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 3)
	assert.Equal(t, ProviderLocal, resp.Provider)

	single, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "two"})
	require.NoError(t, err)
	assert.Equal(t, single.Vector, resp.Embeddings[1].Vector)
}
