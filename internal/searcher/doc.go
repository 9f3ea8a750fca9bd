// Package searcher fuses lexical name matching with semantic vector
// similarity into a single ranked response.
//
// The two stages run concurrently. Hits confirmed by both stages form
// the top tier in lexical order, lexical-only hits follow, and
// semantic-only hits close the list ordered by cosine similarity. When
// the embedding gateway is unavailable the response degrades to
// lexical-only and says so, rather than failing the search. Responses
// are cached in an LRU with a per-request TTL.
package searcher
