// Package types defines the shared data structures of the indexing and
// retrieval engine: symbols, parse outcomes, search results and the
// sentinel errors every layer classifies against.
package types
