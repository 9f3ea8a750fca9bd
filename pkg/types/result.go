package types

// MatchSource records which retrieval stage produced a search hit.
type MatchSource string

const (
	MatchLexical  MatchSource = "lexical"
	MatchSemantic MatchSource = "semantic"
	MatchBoth     MatchSource = "lexical+semantic"
)

// SearchResult is one ranked hit from hybrid search.
type SearchResult struct {
	SymbolID   int64       `json:"symbol_id"`
	Name       string      `json:"name"`
	Kind       SymbolKind  `json:"kind"`
	FilePath   string      `json:"file_path"`
	StartLine  int         `json:"start_line"`
	EndLine    int         `json:"end_line"`
	Code       string      `json:"code"`
	Docstring  string      `json:"docstring,omitempty"`
	Parent     string      `json:"parent,omitempty"`
	Score      float64     `json:"score"`
	Rank       int         `json:"rank"`
	MatchedVia MatchSource `json:"matched_via"`
}

// SearchResponse wraps the ranked hits plus flags explaining any degraded
// behavior the caller should surface.
type SearchResponse struct {
	Query           string         `json:"query"`
	Results         []SearchResult `json:"results"`
	TotalFound      int            `json:"total_found"`
	SemanticSkipped bool           `json:"semantic_skipped,omitempty"`
	SkipReason      string         `json:"skip_reason,omitempty"`
}
