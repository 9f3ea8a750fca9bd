package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaProviderBatch(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel = req.Model

		embeddings := make([][]float32, len(req.Input))
		for i := range req.Input {
			embeddings[i] = []float32{float32(i), 1, 0}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model":      req.Model,
			"embeddings": embeddings,
		})
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(server.URL, nil)
	require.NoError(t, err)

	resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{
		Texts: []string{"alpha", "beta"},
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultOllamaModel, gotModel)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, []float32{1, 1, 0}, resp.Embeddings[1].Vector)
	assert.Equal(t, ProviderOllama, resp.Provider)
}

func TestOllamaProviderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model":      DefaultOllamaModel,
			"embeddings": [][]float32{{1, 0}},
		})
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(server.URL, nil)
	require.NoError(t, err)

	resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, resp.Embeddings, 1)
}

func TestOllamaProviderUsesCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model":      DefaultOllamaModel,
			"embeddings": [][]float32{{0.5, 0.5}},
		})
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(server.URL, NewCache(10))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "cached"})
	require.NoError(t, err)
	_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "cached"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIProviderBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model": DefaultOpenAIModel,
			"data": []map[string]interface{}{
				{"embedding": []float32{0.1, 0.2}, "index": 0},
			},
		})
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider("test-key", nil)
	require.NoError(t, err)
	// Point the client at the fake server
	provider.httpClient = server.Client()
	provider.httpClient.Transport = rewriteTransport{server.URL}

	resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"x"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 1)
	assert.Equal(t, []float32{0.1, 0.2}, resp.Embeddings[0].Vector)
}

func TestOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider("", nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestBatchSizeLimit(t *testing.T) {
	provider, err := NewLocalProvider(8, nil)
	require.NoError(t, err)

	texts := make([]string, MaxBatchSize+1)
	for i := range texts {
		texts[i] = "t"
	}
	_, err = NewOllamaTestProvider(t).GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: texts})
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	// Local provider has no hard batch cap
	_, err = provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: texts[:10]})
	assert.NoError(t, err)
}

// NewOllamaTestProvider returns a provider pointed at an unreachable host,
// for request validation tests that never hit the network.
func NewOllamaTestProvider(t *testing.T) *OllamaProvider {
	t.Helper()
	provider, err := NewOllamaProvider("http://127.0.0.1:1", nil)
	require.NoError(t, err)
	return provider
}

// rewriteTransport redirects every request to a fixed test server.
type rewriteTransport struct {
	base string
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target := rt.base + req.URL.Path
	newReq := req.Clone(req.Context())
	parsed, err := req.URL.Parse(target)
	if err != nil {
		return nil, err
	}
	newReq.URL = parsed
	return http.DefaultTransport.RoundTrip(newReq)
}
