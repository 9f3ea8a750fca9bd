// Package storage provides SQLite-based persistence for indexed symbols.
//
// The store manages projects, symbols with their embeddings, and
// free-text documents. Symbol identity is the tuple (project_id,
// file_path, start_line, end_line): writes to the same tuple update in
// place, so re-indexing an unchanged file causes no row churn and
// preserves created_at.
//
// Two build configurations are supported. The default pure-Go build uses
// modernc.org/sqlite and computes cosine similarity in Go. Building with
// the sqlite_vec tag switches to github.com/mattn/go-sqlite3 and pushes
// distance computation into SQL via the sqlite-vec extension.
package storage
