package searcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbrain/voxindex/internal/embedder"
	"github.com/voxbrain/voxindex/internal/storage"
	"github.com/voxbrain/voxindex/pkg/types"
)

func newSearchStore(t *testing.T) (*storage.SQLiteStore, string) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	project := &storage.Project{ID: "proj-1", Name: "fixture", RootPath: "/tmp/fixture"}
	require.NoError(t, store.CreateProject(context.Background(), project))
	return store, project.ID
}

// addSymbol inserts a symbol on a synthetic line span so each call gets
// a distinct identity.
func addSymbol(t *testing.T, store storage.Store, projectID, name string, line int, embedding []byte) *storage.Symbol {
	t.Helper()
	sym := &storage.Symbol{
		ProjectID: projectID,
		Name:      name,
		Kind:      string(types.KindFunction),
		FilePath:  "pkg/code.go",
		StartLine: line,
		EndLine:   line + 5,
		Code:      "func " + name + "() {}",
		Embedding: embedding,
	}
	require.NoError(t, store.UpsertSymbol(context.Background(), sym))
	return sym
}

func localVector(t *testing.T, provider embedder.Embedder, text string) []byte {
	t.Helper()
	emb, err := provider.GenerateEmbedding(context.Background(), embedder.EmbeddingRequest{Text: text})
	require.NoError(t, err)
	return storage.SerializeVector(emb.Vector)
}

func TestSearchExactNameRanksFirst(t *testing.T) {
	store, projectID := newSearchStore(t)
	provider, err := embedder.NewLocalProvider(8, nil)
	require.NoError(t, err)

	addSymbol(t, store, projectID, "parseFile", 10, nil)
	addSymbol(t, store, projectID, "parse", 20, nil)
	addSymbol(t, store, projectID, "reparse", 30, nil)

	s := NewSearcher(store, provider)
	resp, err := s.Search(context.Background(), SearchRequest{ProjectID: projectID, Query: "parse"})
	require.NoError(t, err)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, "parse", resp.Results[0].Name)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, "parseFile", resp.Results[1].Name)
	assert.Equal(t, types.MatchLexical, resp.Results[0].MatchedVia)

	// Nothing is embedded yet, so the semantic stage reports itself
	// skipped rather than failing the search.
	assert.True(t, resp.SemanticSkipped)
	assert.Equal(t, ReasonNoSemanticData, resp.SkipReason)
}

func TestSearchTierOrdering(t *testing.T) {
	store, projectID := newSearchStore(t)
	provider, err := embedder.NewLocalProvider(8, nil)
	require.NoError(t, err)

	query := "parse"
	queryVec := localVector(t, provider, query)

	// Name-matches the query and shares its vector: both stages hit it.
	addSymbol(t, store, projectID, "parseConfig", 10, queryVec)
	// Name match only.
	addSymbol(t, store, projectID, "parseHeader", 20, nil)
	// Vector match only.
	addSymbol(t, store, projectID, "loadSettings", 30, queryVec)

	s := NewSearcher(store, provider)
	resp, err := s.Search(context.Background(), SearchRequest{ProjectID: projectID, Query: query})
	require.NoError(t, err)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, "parseConfig", resp.Results[0].Name)
	assert.Equal(t, types.MatchBoth, resp.Results[0].MatchedVia)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-6)

	assert.Equal(t, "parseHeader", resp.Results[1].Name)
	assert.Equal(t, types.MatchLexical, resp.Results[1].MatchedVia)

	assert.Equal(t, "loadSettings", resp.Results[2].Name)
	assert.Equal(t, types.MatchSemantic, resp.Results[2].MatchedVia)

	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.Rank)
	}
	assert.Equal(t, 3, resp.TotalFound)
}

func TestSearchEmptyQuery(t *testing.T) {
	store, projectID := newSearchStore(t)
	provider, err := embedder.NewLocalProvider(8, nil)
	require.NoError(t, err)

	s := NewSearcher(store, provider)
	for _, query := range []string{"", "   ", "\t\n"} {
		_, err := s.Search(context.Background(), SearchRequest{ProjectID: projectID, Query: query})
		assert.ErrorIs(t, err, types.ErrEmptyQuery)
	}
}

func TestSearchUnknownProject(t *testing.T) {
	store, _ := newSearchStore(t)
	provider, err := embedder.NewLocalProvider(8, nil)
	require.NoError(t, err)

	s := NewSearcher(store, provider)
	_, err = s.Search(context.Background(), SearchRequest{ProjectID: "missing", Query: "parse"})
	assert.ErrorIs(t, err, types.ErrProjectNotFound)
}

// failingEmbedder always errors, standing in for an unreachable gateway.
type failingEmbedder struct{}

func (f failingEmbedder) GenerateEmbedding(context.Context, embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	return nil, errors.New("gateway unreachable")
}

func (f failingEmbedder) GenerateBatch(context.Context, embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	return nil, errors.New("gateway unreachable")
}

func (f failingEmbedder) Dimension() int   { return 8 }
func (f failingEmbedder) Provider() string { return "failing" }
func (f failingEmbedder) Model() string    { return "none" }
func (f failingEmbedder) Close() error     { return nil }

func TestSearchDegradesWhenEmbedderFails(t *testing.T) {
	store, projectID := newSearchStore(t)
	addSymbol(t, store, projectID, "parse", 10, nil)

	s := NewSearcher(store, failingEmbedder{})
	resp, err := s.Search(context.Background(), SearchRequest{ProjectID: projectID, Query: "parse"})
	require.NoError(t, err)

	assert.True(t, resp.SemanticSkipped)
	assert.Contains(t, resp.SkipReason, "gateway unreachable")
	require.Len(t, resp.Results, 1)
	assert.Equal(t, types.MatchLexical, resp.Results[0].MatchedVia)
}

func TestSearchLimitTruncatesAfterFusion(t *testing.T) {
	store, projectID := newSearchStore(t)
	provider, err := embedder.NewLocalProvider(8, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		addSymbol(t, store, projectID, "handler"+string(rune('A'+i)), 10*(i+1), nil)
	}

	s := NewSearcher(store, provider)
	resp, err := s.Search(context.Background(), SearchRequest{ProjectID: projectID, Query: "handler", Limit: 3})
	require.NoError(t, err)

	assert.Len(t, resp.Results, 3)
	assert.Equal(t, 5, resp.TotalFound)
}

func TestSearchCacheHitAndInvalidate(t *testing.T) {
	store, projectID := newSearchStore(t)
	provider, err := embedder.NewLocalProvider(8, nil)
	require.NoError(t, err)

	addSymbol(t, store, projectID, "parse", 10, nil)

	s := NewSearcher(store, provider)
	req := SearchRequest{ProjectID: projectID, Query: "parse", UseCache: true, CacheTTL: time.Hour}

	first, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Results, 1)

	// New rows are invisible until the cache entry goes away.
	addSymbol(t, store, projectID, "parseAll", 20, nil)

	cached, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, cached.Results, 1)

	s.InvalidateCache()
	fresh, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, fresh.Results, 2)
}

func TestSearchEmptyProjectReportsNoSymbols(t *testing.T) {
	store, projectID := newSearchStore(t)
	provider, err := embedder.NewLocalProvider(8, nil)
	require.NoError(t, err)

	s := NewSearcher(store, provider)
	resp, err := s.Search(context.Background(), SearchRequest{ProjectID: projectID, Query: "anything"})
	require.NoError(t, err)

	assert.Empty(t, resp.Results)
	assert.True(t, resp.SemanticSkipped)
	assert.Equal(t, ReasonNoSymbols, resp.SkipReason)
}

func TestSearchAcrossAllProjects(t *testing.T) {
	store, projectID := newSearchStore(t)
	other := &storage.Project{ID: "proj-2", Name: "other", RootPath: "/tmp/other"}
	require.NoError(t, store.CreateProject(context.Background(), other))

	provider, err := embedder.NewLocalProvider(8, nil)
	require.NoError(t, err)

	addSymbol(t, store, projectID, "checkAuth", 10, nil)
	addSymbol(t, store, other.ID, "renderPage", 10, nil)

	s := NewSearcher(store, provider)
	resp, err := s.Search(context.Background(), SearchRequest{Query: "auth"})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "checkAuth", resp.Results[0].Name)
}

func TestSearchCachedResponseIsACopy(t *testing.T) {
	store, projectID := newSearchStore(t)
	provider, err := embedder.NewLocalProvider(8, nil)
	require.NoError(t, err)

	addSymbol(t, store, projectID, "parse", 10, nil)

	s := NewSearcher(store, provider)
	req := SearchRequest{ProjectID: projectID, Query: "parse", UseCache: true, CacheTTL: time.Hour}

	first, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	first.Results[0].Name = "mutated"

	cached, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "parse", cached.Results[0].Name)
}
