// Package indexer walks a project tree, parses source files into
// symbols, embeds them and writes them to storage.
//
// Parsing fans out to a bounded worker pool; writes are funneled through
// a single goroutine and committed one file per transaction. Each
// transaction upserts the file's current symbols and prunes rows the
// parse no longer produced, so a committed file is always internally
// consistent. A per-project try-lock rejects overlapping runs for the
// same project while allowing different projects to index concurrently.
package indexer
