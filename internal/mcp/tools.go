package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/voxbrain/voxindex/internal/embedder"
	"github.com/voxbrain/voxindex/internal/searcher"
	"github.com/voxbrain/voxindex/internal/storage"
	"github.com/voxbrain/voxindex/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // Unknown project id
	ErrorCodeIndexingInProgress = -32002 // Another indexing run is active for the project
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeDimensionMismatch  = -32005 // Configured embedder conflicts with the stored index
)

// handleRegisterProject handles the register_project tool invocation.
// Registration is idempotent: registering an existing name with the same
// root returns the existing project.
func (s *Server) handleRegisterProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	name, ok := args["name"].(string)
	if !ok || name == "" {
		return nil, missingParamError("name")
	}
	rootPath, ok := args["root_path"].(string)
	if !ok || rootPath == "" {
		return nil, missingParamError("root_path")
	}

	if err := validatePath(rootPath); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid root_path", map[string]interface{}{
			"param":  "root_path",
			"reason": err.Error(),
		})
	}

	existing, err := s.store.GetProjectByName(ctx, name)
	switch {
	case err == nil:
		if existing.RootPath != rootPath {
			return nil, newMCPError(ErrorCodeInvalidParams, "project name already registered with a different root", map[string]interface{}{
				"name":          name,
				"existing_root": existing.RootPath,
			})
		}
		return mcp.NewToolResultText(formatJSON(projectJSON(existing))), nil
	case errors.Is(err, types.ErrProjectNotFound):
		// Fall through to create
	default:
		return nil, internalError(err)
	}

	project := &storage.Project{
		ID:       uuid.New().String(),
		Name:     name,
		RootPath: rootPath,
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, internalError(err)
	}

	s.logger.Info("project registered", "project", name, "root", rootPath)
	return mcp.NewToolResultText(formatJSON(projectJSON(project))), nil
}

// handleListProjects handles the list_projects tool invocation
func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, internalError(err)
	}

	list := make([]map[string]interface{}, len(projects))
	for i, p := range projects {
		list[i] = projectJSON(p)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"projects": list,
		"count":    len(list),
	})), nil
}

// handleIndexProject handles the index_project tool invocation
func (s *Server) handleIndexProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	projectID, ok := args["project_id"].(string)
	if !ok || projectID == "" {
		return nil, missingParamError("project_id")
	}

	summary, err := s.indexer.IndexProject(ctx, projectID)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrProjectNotFound):
			return nil, newMCPError(ErrorCodeProjectNotFound, "project not found", map[string]interface{}{"project_id": projectID})
		case errors.Is(err, types.ErrIndexInProgress):
			return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", map[string]interface{}{"project_id": projectID})
		case errors.Is(err, types.ErrDimensionMismatch):
			return nil, newMCPError(ErrorCodeDimensionMismatch, "embedding dimension conflicts with the existing index", map[string]interface{}{"project_id": projectID})
		default:
			return nil, internalError(err)
		}
	}

	// Committed rows changed; cached search responses may be stale.
	s.searcher.InvalidateCache()

	response := map[string]interface{}{
		"project_id":         summary.ProjectID,
		"files_scanned":      summary.FilesScanned,
		"files_parsed":       summary.FilesParsed,
		"files_failed":       summary.FilesFailed,
		"symbols_written":    summary.SymbolsWritten,
		"symbols_pruned":     summary.SymbolsPruned,
		"embedding_failures": summary.EmbeddingFailures,
		"rejected_writes":    summary.RejectedWrites,
		"duration_ms":        summary.Duration.Milliseconds(),
	}
	if len(summary.Failures) > 0 {
		failures := summary.Failures
		if len(failures) > 5 {
			failures = failures[:5]
		}
		response["failures"] = failures
		response["failure_count"] = len(summary.Failures)
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchSymbols handles the search_symbols tool invocation
func (s *Server) handleSearchSymbols(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	// project_id is optional: omitted means search all projects.
	projectID, _ := args["project_id"].(string)
	query, _ := args["query"].(string)

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", searcher.MaxLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	response, err := s.searcher.Search(ctx, searcher.SearchRequest{
		ProjectID: projectID,
		Query:     query,
		Limit:     limit,
		UseCache:  getBoolDefault(args, "use_cache", true),
	})
	if err != nil {
		switch {
		case errors.Is(err, types.ErrEmptyQuery):
			return nil, newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", nil)
		case errors.Is(err, types.ErrProjectNotFound):
			return nil, newMCPError(ErrorCodeProjectNotFound, "project not found", map[string]interface{}{"project_id": projectID})
		default:
			return nil, internalError(err)
		}
	}

	payload, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return nil, internalError(err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

// handleAddDocument handles the add_document tool invocation. The
// document is embedded on write; if the gateway is down it is stored
// without a vector and will not surface in document search.
func (s *Server) handleAddDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	projectID, ok := args["project_id"].(string)
	if !ok || projectID == "" {
		return nil, missingParamError("project_id")
	}
	title, ok := args["title"].(string)
	if !ok || title == "" {
		return nil, missingParamError("title")
	}
	content, ok := args["content"].(string)
	if !ok || content == "" {
		return nil, missingParamError("content")
	}

	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, types.ErrProjectNotFound) {
			return nil, newMCPError(ErrorCodeProjectNotFound, "project not found", map[string]interface{}{"project_id": projectID})
		}
		return nil, internalError(err)
	}

	var embedding []byte
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: title + "\n" + content})
	if err != nil {
		s.logger.Warn("document embedding failed", "title", title, "error", err)
	} else {
		embedding = storage.SerializeVector(emb.Vector)
	}

	doc := &storage.Document{
		ProjectID: projectID,
		Title:     title,
		Content:   content,
		Embedding: embedding,
	}
	if err := s.store.AddDocument(ctx, doc); err != nil {
		if errors.Is(err, types.ErrProjectNotFound) {
			return nil, newMCPError(ErrorCodeProjectNotFound, "project not found", map[string]interface{}{"project_id": projectID})
		}
		return nil, internalError(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"document_id": doc.ID,
		"title":       doc.Title,
		"embedded":    embedding != nil,
	})), nil
}

// handleSearchDocuments handles the search_documents tool invocation.
// Documents have no lexical stage; an unreachable gateway fails the
// search instead of degrading it.
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	projectID, ok := args["project_id"].(string)
	if !ok || projectID == "" {
		return nil, missingParamError("project_id")
	}
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", nil)
	}
	limit := getIntDefault(args, "limit", searcher.DefaultLimit)

	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, internalError(fmt.Errorf("failed to embed query: %w", err))
	}

	scored, err := s.store.SearchDocuments(ctx, projectID, emb.Vector, limit)
	if err != nil {
		return nil, internalError(err)
	}

	results := make([]map[string]interface{}, len(scored))
	for i, sd := range scored {
		results[i] = map[string]interface{}{
			"document_id": sd.Document.ID,
			"title":       sd.Document.Title,
			"content":     sd.Document.Content,
			"score":       sd.Similarity,
			"rank":        i + 1,
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":   query,
		"results": results,
	})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	projectID, ok := args["project_id"].(string)
	if !ok || projectID == "" {
		return nil, missingParamError("project_id")
	}

	status, err := s.store.GetStatus(ctx, projectID)
	if err != nil {
		if errors.Is(err, types.ErrProjectNotFound) {
			return nil, newMCPError(ErrorCodeProjectNotFound, "project not found", map[string]interface{}{"project_id": projectID})
		}
		return nil, internalError(err)
	}

	response := map[string]interface{}{
		"project": projectJSON(status.Project),
		"statistics": map[string]interface{}{
			"files_count":     status.FilesCount,
			"symbols_count":   status.SymbolsCount,
			"embedded_count":  status.EmbeddedCount,
			"documents_count": status.DocumentsCount,
			"index_size_mb":   fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func missingParamError(param string) error {
	return newMCPError(ErrorCodeInvalidParams, param+" parameter is required", map[string]interface{}{
		"param":  param,
		"reason": "missing or empty",
	})
}

func internalError(err error) error {
	return newMCPError(ErrorCodeInternalError, "internal error", map[string]interface{}{
		"error": err.Error(),
	})
}

func projectJSON(p *storage.Project) map[string]interface{} {
	out := map[string]interface{}{
		"project_id": p.ID,
		"name":       p.Name,
		"root_path":  p.RootPath,
		"created_at": p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if !p.LastIndexedAt.IsZero() {
		out["last_indexed_at"] = p.LastIndexedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return out
}

// validatePath checks that a project root is an absolute, readable
// directory.
func validatePath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// Validation errors

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
