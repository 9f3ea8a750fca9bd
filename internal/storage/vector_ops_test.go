package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
		{"dimension mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestVectorRoundTrip(t *testing.T) {
	vector := []float32{0.1, -2.5, 3.75, 0}
	blob := SerializeVector(vector)
	assert.Len(t, blob, len(vector)*4)
	assert.Equal(t, vector, DeserializeVector(blob))
}

func TestVectorSearchRanksByDescendingSimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	project := newTestProject(t, store, "alpha")

	vectors := map[string][]float32{
		"exactMatch": {1, 0, 0},
		"nearMatch":  {0.9, 0.1, 0},
		"farMatch":   {0, 0, 1},
	}
	line := 1
	for name, vec := range vectors {
		sym := testSymbol(project.ID, "pkg/a.go", name, line, line+3)
		sym.Embedding = SerializeVector(vec)
		require.NoError(t, store.UpsertSymbol(ctx, sym))
		line += 10
	}

	// Symbols that never got an embedding are excluded, not scored at zero.
	bare := testSymbol(project.ID, "pkg/a.go", "noEmbedding", line, line+3)
	require.NoError(t, store.UpsertSymbol(ctx, bare))

	results, err := store.VectorSearch(ctx, project.ID, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "exactMatch", results[0].Symbol.Name)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.Equal(t, "nearMatch", results[1].Symbol.Name)
	assert.Equal(t, "farMatch", results[2].Symbol.Name)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestVectorSearchSkipsMismatchedDimensions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	project := newTestProject(t, store, "alpha")

	sym := testSymbol(project.ID, "pkg/a.go", "wrongDim", 1, 5)
	sym.Embedding = SerializeVector([]float32{1, 0})
	require.NoError(t, store.UpsertSymbol(ctx, sym))

	results, err := store.VectorSearch(ctx, project.ID, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorSearchLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	project := newTestProject(t, store, "alpha")

	for i := 0; i < 5; i++ {
		sym := testSymbol(project.ID, "pkg/a.go", "sym", i*10+1, i*10+5)
		sym.Name = sym.Name + string(rune('a'+i))
		sym.Embedding = SerializeVector([]float32{float32(i), 1, 0})
		require.NoError(t, store.UpsertSymbol(ctx, sym))
	}

	results, err := store.VectorSearch(ctx, project.ID, []float32{1, 1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	none, err := store.VectorSearch(ctx, project.ID, []float32{1, 1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestVectorSearchInsideTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	project := newTestProject(t, store, "alpha")

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	sym := testSymbol(project.ID, "pkg/a.go", "pending", 1, 4)
	sym.Embedding = SerializeVector([]float32{1, 0, 0})
	require.NoError(t, tx.UpsertSymbol(ctx, sym))

	// The single pooled connection belongs to the transaction, so the
	// search must run on it instead of waiting on the pool. It also sees
	// the uncommitted row.
	results, err := tx.VectorSearch(ctx, project.ID, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pending", results[0].Symbol.Name)
}

func TestSearchDocumentsBySimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	project := newTestProject(t, store, "alpha")

	docs := map[string][]float32{
		"close": {1, 0},
		"far":   {0, 1},
	}
	for title, vec := range docs {
		doc := &Document{
			ProjectID: project.ID,
			Title:     title,
			Content:   "content of " + title,
			Embedding: SerializeVector(vec),
		}
		require.NoError(t, store.AddDocument(ctx, doc))
	}

	results, err := store.SearchDocuments(ctx, project.ID, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "close", results[0].Document.Title)
}
