// Package mcp exposes the index over the Model Context Protocol on
// stdio. It wires storage, embedder, indexer and searcher together and
// registers one tool per operation: project registration and listing,
// indexing, symbol and document search, document capture and status.
package mcp
