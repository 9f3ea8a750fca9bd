package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/voxbrain/voxindex/internal/config"
	"github.com/voxbrain/voxindex/internal/embedder"
	"github.com/voxbrain/voxindex/internal/indexer"
	"github.com/voxbrain/voxindex/internal/parser"
	"github.com/voxbrain/voxindex/internal/searcher"
	"github.com/voxbrain/voxindex/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "voxindex"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	store    storage.Store
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	embedder embedder.Embedder
	logger   *slog.Logger
}

// NewServer creates a new MCP server instance wired from configuration.
// The embedder is shared between indexer and searcher so query and
// symbol embeddings go through one cache.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	// A provider whose dimension disagrees with the stored index is a
	// configuration error; fail at startup, not on the first write.
	if err := store.EnsureDimension(context.Background(), emb.Dimension()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("embedding dimension check failed: %w", err)
	}

	idx := indexer.New(store, emb, parser.DefaultRegistry(), cfg.Workers, logger)
	srch := searcher.NewSearcher(store, emb)

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:      mcpServer,
		store:    store,
		indexer:  idx,
		searcher: srch,
		embedder: emb,
		logger:   logger,
	}

	s.registerTools()

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.store.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(registerProjectTool(), s.handleRegisterProject)
	s.mcp.AddTool(listProjectsTool(), s.handleListProjects)
	s.mcp.AddTool(indexProjectTool(), s.handleIndexProject)
	s.mcp.AddTool(searchSymbolsTool(), s.handleSearchSymbols)
	s.mcp.AddTool(addDocumentTool(), s.handleAddDocument)
	s.mcp.AddTool(searchDocumentsTool(), s.handleSearchDocuments)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
