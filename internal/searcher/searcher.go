package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/voxbrain/voxindex/internal/embedder"
	"github.com/voxbrain/voxindex/internal/storage"
	"github.com/voxbrain/voxindex/pkg/types"
)

const (
	// DefaultLimit is applied when a request does not set one.
	DefaultLimit = 10
	// MaxLimit caps the result count per request.
	MaxLimit = 100
	// DefaultCacheTTL bounds how long a cached response stays valid.
	DefaultCacheTTL = 5 * time.Minute

	// Each stage over-fetches so the fused list still fills the limit
	// after tiering.
	stageFetchFactor = 2

	cacheSize = 1000
)

// SearchRequest contains parameters for a search operation. An empty
// ProjectID searches across all registered projects.
type SearchRequest struct {
	ProjectID string
	Query     string
	Limit     int
	UseCache  bool
	CacheTTL  time.Duration
}

// Reason codes for responses with a degraded or empty semantic stage.
const (
	ReasonNoSymbols      = "no symbols indexed for this project"
	ReasonNoSemanticData = "no embedded symbols available"
)

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *types.SearchResponse
	expiresAt time.Time
}

// Searcher runs the two-stage hybrid search: a lexical name match and a
// semantic vector match, fused into tiers.
type Searcher struct {
	store    storage.Store
	embedder embedder.Embedder
	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.Store, emb embedder.Embedder) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](cacheSize)
	if err != nil {
		// Only reachable with a non-positive size
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		store:    store,
		embedder: emb,
		cache:    cache,
	}
}

// Search runs both stages and fuses their hits. Symbols found by both
// stages rank first in lexical order, lexical-only hits follow, and
// semantic-only hits come last ordered by similarity. A failing semantic
// stage degrades the response to lexical-only instead of failing it.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*types.SearchResponse, error) {
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			return cached, nil
		}
	}

	if req.ProjectID != "" {
		if _, err := s.store.GetProject(ctx, req.ProjectID); err != nil {
			return nil, err
		}
	}

	lexical, semantic, skipReason, err := s.runStages(ctx, req)
	if err != nil {
		return nil, err
	}

	if skipReason == "" && len(semantic) == 0 {
		skipReason = s.emptySemanticReason(ctx, req.ProjectID)
	}

	response := s.fuse(req, lexical, semantic)
	if skipReason != "" {
		response.SemanticSkipped = true
		response.SkipReason = skipReason
	}

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}

	return response, nil
}

// stageResult holds one stage's output from its goroutine.
type stageResult struct {
	lexical  []*storage.Symbol
	semantic []storage.ScoredSymbol
	err      error
}

// runStages executes the lexical and semantic stages concurrently. A
// lexical failure fails the search; a semantic failure only produces a
// skip reason.
func (s *Searcher) runStages(ctx context.Context, req SearchRequest) ([]*storage.Symbol, []storage.ScoredSymbol, string, error) {
	fetch := req.Limit * stageFetchFactor

	lexicalChan := make(chan stageResult, 1)
	semanticChan := make(chan stageResult, 1)

	go func() {
		var res stageResult
		res.lexical, res.err = s.store.LexicalSearch(ctx, req.ProjectID, req.Query, fetch)
		lexicalChan <- res
	}()

	go func() {
		var res stageResult
		emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
		if err != nil {
			res.err = fmt.Errorf("failed to embed query: %w", err)
		} else {
			res.semantic, res.err = s.store.VectorSearch(ctx, req.ProjectID, emb.Vector, fetch)
		}
		semanticChan <- res
	}()

	lexicalRes := <-lexicalChan
	semanticRes := <-semanticChan

	if lexicalRes.err != nil {
		return nil, nil, "", lexicalRes.err
	}

	skipReason := ""
	if semanticRes.err != nil {
		skipReason = semanticRes.err.Error()
		semanticRes.semantic = nil
	}

	return lexicalRes.lexical, semanticRes.semantic, skipReason, nil
}

// emptySemanticReason distinguishes an empty project from a project that
// simply has no embedded symbols yet. Only meaningful for scoped
// searches; a cross-project search returns no reason.
func (s *Searcher) emptySemanticReason(ctx context.Context, projectID string) string {
	if projectID == "" {
		return ""
	}
	status, err := s.store.GetStatus(ctx, projectID)
	if err != nil {
		return ""
	}
	switch {
	case status.SymbolsCount == 0:
		return ReasonNoSymbols
	case status.EmbeddedCount == 0:
		return ReasonNoSemanticData
	default:
		return ""
	}
}

// fuse merges the stage hits into three tiers keyed on symbol identity.
func (s *Searcher) fuse(req SearchRequest, lexical []*storage.Symbol, semantic []storage.ScoredSymbol) *types.SearchResponse {
	similarity := make(map[int64]float64, len(semantic))
	for _, ss := range semantic {
		similarity[ss.Symbol.ID] = ss.Similarity
	}

	lexicalIDs := make(map[int64]struct{}, len(lexical))
	for _, sym := range lexical {
		lexicalIDs[sym.ID] = struct{}{}
	}

	var both, lexOnly, semOnly []types.SearchResult

	// Both-stage and lexical-only tiers keep the lexical ordering.
	for _, sym := range lexical {
		result := sym.ToSearchResult()
		if score, ok := similarity[sym.ID]; ok {
			result.Score = score
			result.MatchedVia = types.MatchBoth
			both = append(both, result)
		} else {
			result.MatchedVia = types.MatchLexical
			lexOnly = append(lexOnly, result)
		}
	}

	for _, ss := range semantic {
		if _, ok := lexicalIDs[ss.Symbol.ID]; ok {
			continue
		}
		result := ss.Symbol.ToSearchResult()
		result.Score = ss.Similarity
		result.MatchedVia = types.MatchSemantic
		semOnly = append(semOnly, result)
	}
	sort.SliceStable(semOnly, func(i, j int) bool {
		return semOnly[i].Score > semOnly[j].Score
	})

	fused := make([]types.SearchResult, 0, len(both)+len(lexOnly)+len(semOnly))
	fused = append(fused, both...)
	fused = append(fused, lexOnly...)
	fused = append(fused, semOnly...)

	totalFound := len(fused)
	if len(fused) > req.Limit {
		fused = fused[:req.Limit]
	}
	for i := range fused {
		fused[i].Rank = i + 1
	}

	return &types.SearchResponse{
		Query:      req.Query,
		Results:    fused,
		TotalFound: totalFound,
	}
}

// validateRequest normalizes the request and rejects empty queries.
func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return types.ErrEmptyQuery
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.CacheTTL <= 0 {
		req.CacheTTL = DefaultCacheTTL
	}

	return nil
}

// checkCache returns a copy of a fresh cached response, or nil.
func (s *Searcher) checkCache(req SearchRequest) *types.SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	// Copy while holding the read lock so the entry cannot change
	// under us.
	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()

	return response
}

// storeInCache saves a copy of the response under the request hash.
func (s *Searcher) storeInCache(req SearchRequest, response *types.SearchResponse) {
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response. Invalidation happens on
// reindexing, where any project's results may have changed, so a full
// purge is acceptable.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// copyResponse returns a response the caller may mutate freely.
// SearchResult holds only value fields, so copying the slice suffices.
func copyResponse(src *types.SearchResponse) *types.SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	copy(dst.Results, src.Results)
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.ProjectID)
	data.WriteString("|")
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", req.Limit))
	return sha256.Sum256([]byte(data.String()))
}
