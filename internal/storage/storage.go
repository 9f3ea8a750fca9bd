package storage

import (
	"context"
	"time"

	"github.com/voxbrain/voxindex/pkg/types"
)

// Store defines the interface for persisting and querying indexed symbols
type Store interface {
	// Project operations
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	GetProjectByName(ctx context.Context, name string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	MarkProjectIndexed(ctx context.Context, id string, at time.Time) error
	DeleteProject(ctx context.Context, id string) error

	// Symbol operations
	UpsertSymbol(ctx context.Context, symbol *Symbol) error
	GetSymbol(ctx context.Context, symbolID int64) (*Symbol, error)
	ListSymbolsByFile(ctx context.Context, projectID, filePath string) ([]*Symbol, error)
	DeleteStaleSymbols(ctx context.Context, projectID, filePath string, keepIDs []int64) (int, error)

	// Search operations. An empty projectID searches across all projects.
	LexicalSearch(ctx context.Context, projectID, query string, limit int) ([]*Symbol, error)
	VectorSearch(ctx context.Context, projectID string, vector []float32, limit int) ([]ScoredSymbol, error)

	// Document operations
	AddDocument(ctx context.Context, doc *Document) error
	ListDocuments(ctx context.Context, projectID string) ([]*Document, error)
	SearchDocuments(ctx context.Context, projectID string, vector []float32, limit int) ([]ScoredDocument, error)

	// Index metadata
	EnsureDimension(ctx context.Context, dim int) error

	// Status operations
	GetStatus(ctx context.Context, projectID string) (*ProjectStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Store // Embed Store interface for transaction operations
}

// Project represents a registered codebase
type Project struct {
	ID            string
	Name          string
	RootPath      string
	LastIndexedAt time.Time
	CreatedAt     time.Time
}

// Symbol is the stored form of a parsed symbol. Identity is the tuple
// (project_id, file_path, start_line, end_line); re-indexing the same
// span updates in place and preserves CreatedAt.
type Symbol struct {
	ID        int64
	ProjectID string
	Name      string
	Kind      string
	FilePath  string
	StartLine int
	EndLine   int
	Code      string
	Docstring string
	Parent    string
	Embedding []byte // Serialized float32 vector; nil when embedding failed
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document is a stored free-text note attached to a project.
type Document struct {
	ID        int64
	ProjectID string
	Title     string
	Content   string
	Embedding []byte
	CreatedAt time.Time
}

// ScoredSymbol pairs a symbol with its cosine similarity to a query
// vector.
type ScoredSymbol struct {
	Symbol     *Symbol
	Similarity float64
}

// ScoredDocument pairs a document with its cosine similarity.
type ScoredDocument struct {
	Document   *Document
	Similarity float64
}

// ProjectStatus contains statistics about an indexed project
type ProjectStatus struct {
	Project        *Project
	FilesCount     int
	SymbolsCount   int
	EmbeddedCount  int
	DocumentsCount int
	IndexSizeMB    float64
	LastIndexedAt  time.Time
	Health         HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
}

// FromTypesSymbol converts a parsed symbol to its stored form. The
// embedding may be nil when the gateway failed for this symbol.
func FromTypesSymbol(s types.Symbol, projectID string, embedding []byte) *Symbol {
	return &Symbol{
		ProjectID: projectID,
		Name:      s.Name,
		Kind:      string(s.Kind),
		FilePath:  s.FilePath,
		StartLine: s.StartLine,
		EndLine:   s.EndLine,
		Code:      s.Code,
		Docstring: s.Docstring,
		Parent:    s.Parent,
		Embedding: embedding,
	}
}

// ToSearchResult converts a stored symbol to a search hit. Score, Rank
// and MatchedVia are filled in by the search engine.
func (s *Symbol) ToSearchResult() types.SearchResult {
	return types.SearchResult{
		SymbolID:  s.ID,
		Name:      s.Name,
		Kind:      types.SymbolKind(s.Kind),
		FilePath:  s.FilePath,
		StartLine: s.StartLine,
		EndLine:   s.EndLine,
		Code:      s.Code,
		Docstring: s.Docstring,
		Parent:    s.Parent,
	}
}
