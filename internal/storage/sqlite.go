package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/voxbrain/voxindex/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, store: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx    *sql.Tx
	store *SQLiteStore
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStore) querier() querier {
	return s.db
}

// Project operations

// createProjectWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) createProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		INSERT INTO projects (id, name, root_path, created_at)
		VALUES (?, ?, ?, ?)
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query, project.ID, project.Name, project.RootPath, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("project %q: %w", project.Name, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create project: %w", err)
	}
	project.CreatedAt = now
	return nil
}

func (s *SQLiteStore) CreateProject(ctx context.Context, project *Project) error {
	return s.createProjectWithQuerier(ctx, s.querier(), project)
}

func scanProject(row *sql.Row) (*Project, error) {
	var project Project
	var lastIndexedAt sql.NullTime
	err := row.Scan(&project.ID, &project.Name, &project.RootPath, &lastIndexedAt, &project.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, types.ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastIndexedAt.Valid {
		project.LastIndexedAt = lastIndexedAt.Time
	}
	return &project, nil
}

// getProjectWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getProjectWithQuerier(ctx context.Context, q querier, id string) (*Project, error) {
	query := `
		SELECT id, name, root_path, last_indexed_at, created_at
		FROM projects
		WHERE id = ?
	`
	return scanProject(q.QueryRowContext(ctx, query, id))
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	return s.getProjectWithQuerier(ctx, s.querier(), id)
}

// getProjectByNameWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getProjectByNameWithQuerier(ctx context.Context, q querier, name string) (*Project, error) {
	query := `
		SELECT id, name, root_path, last_indexed_at, created_at
		FROM projects
		WHERE name = ?
	`
	return scanProject(q.QueryRowContext(ctx, query, name))
}

func (s *SQLiteStore) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	return s.getProjectByNameWithQuerier(ctx, s.querier(), name)
}

// listProjectsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listProjectsWithQuerier(ctx context.Context, q querier) ([]*Project, error) {
	query := `
		SELECT id, name, root_path, last_indexed_at, created_at
		FROM projects
		ORDER BY name
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	projects := make([]*Project, 0)
	for rows.Next() {
		var project Project
		var lastIndexedAt sql.NullTime
		if err := rows.Scan(&project.ID, &project.Name, &project.RootPath, &lastIndexedAt, &project.CreatedAt); err != nil {
			return nil, err
		}
		if lastIndexedAt.Valid {
			project.LastIndexedAt = lastIndexedAt.Time
		}
		projects = append(projects, &project)
	}
	return projects, rows.Err()
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.listProjectsWithQuerier(ctx, s.querier())
}

// markProjectIndexedWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) markProjectIndexedWithQuerier(ctx context.Context, q querier, id string, at time.Time) error {
	result, err := q.ExecContext(ctx, `UPDATE projects SET last_indexed_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark project indexed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return types.ErrProjectNotFound
	}
	return nil
}

func (s *SQLiteStore) MarkProjectIndexed(ctx context.Context, id string, at time.Time) error {
	return s.markProjectIndexedWithQuerier(ctx, s.querier(), id, at)
}

// deleteProjectWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) deleteProjectWithQuerier(ctx context.Context, q querier, id string) error {
	// ON DELETE CASCADE removes the project's symbols and documents.
	_, err := q.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	return s.deleteProjectWithQuerier(ctx, s.querier(), id)
}

// Symbol operations

const symbolColumns = `id, project_id, name, kind, file_path, start_line, end_line,
	       code, docstring, parent, embedding, created_at, updated_at`

func scanSymbol(scan func(dest ...interface{}) error) (*Symbol, error) {
	var sym Symbol
	var docstring, parent sql.NullString
	err := scan(
		&sym.ID, &sym.ProjectID, &sym.Name, &sym.Kind, &sym.FilePath,
		&sym.StartLine, &sym.EndLine, &sym.Code, &docstring, &parent,
		&sym.Embedding, &sym.CreatedAt, &sym.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sym.Docstring = docstring.String
	sym.Parent = parent.String
	return &sym, nil
}

// upsertSymbolWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) upsertSymbolWithQuerier(ctx context.Context, q querier, symbol *Symbol) error {
	// The store is the last line of defense against orphan symbols.
	if symbol.ProjectID == "" {
		return types.ErrMissingProjectID
	}

	// Use atomic INSERT ... ON CONFLICT to avoid race conditions. The
	// conflict target is the symbol identity tuple; created_at survives
	// re-indexing.
	query := `
		INSERT INTO symbols (
			project_id, name, kind, file_path, start_line, end_line,
			code, docstring, parent, embedding, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_path, start_line, end_line)
		DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			code = excluded.code,
			docstring = excluded.docstring,
			parent = excluded.parent,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
		RETURNING id, created_at
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		symbol.ProjectID, symbol.Name, symbol.Kind, symbol.FilePath,
		symbol.StartLine, symbol.EndLine, symbol.Code, symbol.Docstring,
		symbol.Parent, symbol.Embedding, now, now,
	).Scan(&symbol.ID, &symbol.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert symbol: %w", err)
	}

	symbol.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) UpsertSymbol(ctx context.Context, symbol *Symbol) error {
	return s.upsertSymbolWithQuerier(ctx, s.querier(), symbol)
}

// getSymbolWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getSymbolWithQuerier(ctx context.Context, q querier, symbolID int64) (*Symbol, error) {
	query := `SELECT ` + symbolColumns + ` FROM symbols WHERE id = ?`
	sym, err := scanSymbol(q.QueryRowContext(ctx, query, symbolID).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sym, nil
}

func (s *SQLiteStore) GetSymbol(ctx context.Context, symbolID int64) (*Symbol, error) {
	return s.getSymbolWithQuerier(ctx, s.querier(), symbolID)
}

// listSymbolsByFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listSymbolsByFileWithQuerier(ctx context.Context, q querier, projectID, filePath string) ([]*Symbol, error) {
	query := `
		SELECT ` + symbolColumns + `
		FROM symbols
		WHERE project_id = ? AND file_path = ?
		ORDER BY start_line
	`
	rows, err := q.QueryContext(ctx, query, projectID, filePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	symbols := make([]*Symbol, 0)
	for rows.Next() {
		sym, err := scanSymbol(rows.Scan)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

func (s *SQLiteStore) ListSymbolsByFile(ctx context.Context, projectID, filePath string) ([]*Symbol, error) {
	return s.listSymbolsByFileWithQuerier(ctx, s.querier(), projectID, filePath)
}

// deleteStaleSymbolsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) deleteStaleSymbolsWithQuerier(ctx context.Context, q querier, projectID, filePath string, keepIDs []int64) (int, error) {
	query := `DELETE FROM symbols WHERE project_id = ? AND file_path = ?`
	args := []interface{}{projectID, filePath}

	if len(keepIDs) > 0 {
		placeholders := make([]string, len(keepIDs))
		for i, id := range keepIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += ` AND id NOT IN (` + strings.Join(placeholders, ",") + `)`
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale symbols: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// DeleteStaleSymbols removes the file's symbols whose ids are not in
// keepIDs. An empty keepIDs clears the file entirely.
func (s *SQLiteStore) DeleteStaleSymbols(ctx context.Context, projectID, filePath string, keepIDs []int64) (int, error) {
	return s.deleteStaleSymbolsWithQuerier(ctx, s.querier(), projectID, filePath, keepIDs)
}

// Search operations

// lexicalSearchWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) lexicalSearchWithQuerier(ctx context.Context, q querier, projectID, query string, limit int) ([]*Symbol, error) {
	if limit <= 0 {
		return []*Symbol{}, nil
	}

	// Name-priority match: exact name first, then prefix, then substring,
	// shorter names before longer within a tier. An empty projectID
	// searches across all projects.
	pattern := escapeLike(query)
	sqlQuery := `
		SELECT ` + symbolColumns + `
		FROM symbols
		WHERE name LIKE ? ESCAPE '\'`
	args := []interface{}{"%" + pattern + "%"}
	if projectID != "" {
		sqlQuery += ` AND project_id = ?`
		args = append(args, projectID)
	}
	sqlQuery += `
		ORDER BY
			CASE
				WHEN lower(name) = lower(?) THEN 0
				WHEN name LIKE ? ESCAPE '\' THEN 1
				ELSE 2
			END,
			length(name),
			name
		LIMIT ?
	`
	args = append(args, query, pattern+"%", limit)
	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute lexical search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	symbols := make([]*Symbol, 0, limit)
	for rows.Next() {
		sym, err := scanSymbol(rows.Scan)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

func (s *SQLiteStore) LexicalSearch(ctx context.Context, projectID, query string, limit int) ([]*Symbol, error) {
	return s.lexicalSearchWithQuerier(ctx, s.querier(), projectID, query, limit)
}

func (s *SQLiteStore) VectorSearch(ctx context.Context, projectID string, vector []float32, limit int) ([]ScoredSymbol, error) {
	// Implementation lives in vector_ops.go
	return searchVector(ctx, s.querier(), projectID, vector, limit)
}

// Document operations

// addDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) addDocumentWithQuerier(ctx context.Context, q querier, doc *Document) error {
	if doc.ProjectID == "" {
		return types.ErrMissingProjectID
	}

	query := `
		INSERT INTO documents (project_id, title, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query, doc.ProjectID, doc.Title, doc.Content, doc.Embedding, now)
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	doc.ID = id
	doc.CreatedAt = now
	return nil
}

func (s *SQLiteStore) AddDocument(ctx context.Context, doc *Document) error {
	return s.addDocumentWithQuerier(ctx, s.querier(), doc)
}

// listDocumentsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listDocumentsWithQuerier(ctx context.Context, q querier, projectID string) ([]*Document, error) {
	query := `
		SELECT id, project_id, title, content, embedding, created_at
		FROM documents
		WHERE project_id = ?
		ORDER BY created_at DESC
	`
	rows, err := q.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*Document, 0)
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.ProjectID, &doc.Title, &doc.Content, &doc.Embedding, &doc.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, projectID string) ([]*Document, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier(), projectID)
}

func (s *SQLiteStore) SearchDocuments(ctx context.Context, projectID string, vector []float32, limit int) ([]ScoredDocument, error) {
	// Implementation lives in vector_ops.go
	return searchDocuments(ctx, s.querier(), projectID, vector, limit)
}

// Index metadata

const dimensionKey = "embedding_dim"

// ensureDimensionWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) ensureDimensionWithQuerier(ctx context.Context, q querier, dim int) error {
	var stored string
	err := q.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = ?`, dimensionKey).Scan(&stored)
	if err == sql.ErrNoRows {
		_, err = q.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES (?, ?)`, dimensionKey, strconv.Itoa(dim))
		return err
	}
	if err != nil {
		return err
	}

	storedDim, err := strconv.Atoi(stored)
	if err != nil {
		return fmt.Errorf("corrupt %s value %q: %w", dimensionKey, stored, err)
	}
	if storedDim != dim {
		return fmt.Errorf("index built with dimension %d, got %d: %w", storedDim, dim, types.ErrDimensionMismatch)
	}
	return nil
}

// EnsureDimension records the embedding dimension on first use and
// rejects a mismatch afterward. Changing providers requires a reindex
// into a fresh database.
func (s *SQLiteStore) EnsureDimension(ctx context.Context, dim int) error {
	return s.ensureDimensionWithQuerier(ctx, s.querier(), dim)
}

// Status operations

func (s *SQLiteStore) GetStatus(ctx context.Context, projectID string) (*ProjectStatus, error) {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	status := &ProjectStatus{
		Project:       project,
		LastIndexedAt: project.LastIndexedAt,
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(embedding), COUNT(DISTINCT file_path) FROM symbols WHERE project_id = ?",
		projectID).Scan(&status.SymbolsCount, &status.EmbeddedCount, &status.FilesCount)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE project_id = ?", projectID).Scan(&status.DocumentsCount)
	if err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddedCount > 0,
	}

	return status, nil
}

// escapeLike escapes LIKE wildcards in user input so a query containing
// % or _ matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Transaction implementations

func (t *sqliteTx) CreateProject(ctx context.Context, project *Project) error {
	return t.store.createProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) GetProject(ctx context.Context, id string) (*Project, error) {
	return t.store.getProjectWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	return t.store.getProjectByNameWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) ListProjects(ctx context.Context) ([]*Project, error) {
	return t.store.listProjectsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) MarkProjectIndexed(ctx context.Context, id string, at time.Time) error {
	return t.store.markProjectIndexedWithQuerier(ctx, t.querier(), id, at)
}

func (t *sqliteTx) DeleteProject(ctx context.Context, id string) error {
	return t.store.deleteProjectWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) UpsertSymbol(ctx context.Context, symbol *Symbol) error {
	return t.store.upsertSymbolWithQuerier(ctx, t.querier(), symbol)
}

func (t *sqliteTx) GetSymbol(ctx context.Context, symbolID int64) (*Symbol, error) {
	return t.store.getSymbolWithQuerier(ctx, t.querier(), symbolID)
}

func (t *sqliteTx) ListSymbolsByFile(ctx context.Context, projectID, filePath string) ([]*Symbol, error) {
	return t.store.listSymbolsByFileWithQuerier(ctx, t.querier(), projectID, filePath)
}

func (t *sqliteTx) DeleteStaleSymbols(ctx context.Context, projectID, filePath string, keepIDs []int64) (int, error) {
	return t.store.deleteStaleSymbolsWithQuerier(ctx, t.querier(), projectID, filePath, keepIDs)
}

func (t *sqliteTx) LexicalSearch(ctx context.Context, projectID, query string, limit int) ([]*Symbol, error) {
	return t.store.lexicalSearchWithQuerier(ctx, t.querier(), projectID, query, limit)
}

func (t *sqliteTx) VectorSearch(ctx context.Context, projectID string, vector []float32, limit int) ([]ScoredSymbol, error) {
	return searchVector(ctx, t.querier(), projectID, vector, limit)
}

func (t *sqliteTx) AddDocument(ctx context.Context, doc *Document) error {
	return t.store.addDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *sqliteTx) ListDocuments(ctx context.Context, projectID string) ([]*Document, error) {
	return t.store.listDocumentsWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) SearchDocuments(ctx context.Context, projectID string, vector []float32, limit int) ([]ScoredDocument, error) {
	return searchDocuments(ctx, t.querier(), projectID, vector, limit)
}

func (t *sqliteTx) EnsureDimension(ctx context.Context, dim int) error {
	return t.store.ensureDimensionWithQuerier(ctx, t.querier(), dim)
}

func (t *sqliteTx) GetStatus(ctx context.Context, projectID string) (*ProjectStatus, error) {
	return t.store.GetStatus(ctx, projectID)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
