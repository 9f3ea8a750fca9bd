package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbrain/voxindex/internal/config"
	"github.com/voxbrain/voxindex/pkg/types"
)

const goFixture = `package calc

// Add returns the sum of two ints.
func Add(a, b int) int {
	return a + b
}

type Calculator struct {
	total int
}
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		DBPath:            ":memory:",
		EmbeddingProvider: "local",
		EmbeddingDim:      8,
		Workers:           2,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server, err := NewServer(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.store.Close() })
	return server
}

func toolRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

// resultJSON decodes the text payload of a tool result.
func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &decoded))
	return decoded
}

func registerFixtureProject(t *testing.T, s *Server, name, rootPath string) string {
	t.Helper()
	result, err := s.handleRegisterProject(context.Background(), toolRequest(map[string]interface{}{
		"name":      name,
		"root_path": rootPath,
	}))
	require.NoError(t, err)
	decoded := resultJSON(t, result)
	projectID, ok := decoded["project_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, projectID)
	return projectID
}

func TestRegisterProjectIdempotent(t *testing.T) {
	s := newTestServer(t)
	root := t.TempDir()

	first := registerFixtureProject(t, s, "demo", root)
	second := registerFixtureProject(t, s, "demo", root)
	assert.Equal(t, first, second)

	// Same name, different root is a conflict.
	other := t.TempDir()
	_, err := s.handleRegisterProject(context.Background(), toolRequest(map[string]interface{}{
		"name":      "demo",
		"root_path": other,
	}))
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestRegisterProjectRejectsRelativePath(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleRegisterProject(context.Background(), toolRequest(map[string]interface{}{
		"name":      "demo",
		"root_path": "relative/path",
	}))
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestIndexSearchStatusRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "calc.go"), []byte(goFixture), 0o644))

	projectID := registerFixtureProject(t, s, "calc", root)

	indexResult, err := s.handleIndexProject(ctx, toolRequest(map[string]interface{}{
		"project_id": projectID,
	}))
	require.NoError(t, err)
	indexed := resultJSON(t, indexResult)
	assert.Equal(t, float64(1), indexed["files_parsed"])
	assert.Equal(t, float64(2), indexed["symbols_written"])
	assert.Equal(t, float64(0), indexed["rejected_writes"])

	searchResult, err := s.handleSearchSymbols(ctx, toolRequest(map[string]interface{}{
		"project_id": projectID,
		"query":      "Add",
	}))
	require.NoError(t, err)
	found := resultJSON(t, searchResult)
	results, ok := found["results"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, results)
	top, ok := results[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Add", top["name"])

	statusResult, err := s.handleGetStatus(ctx, toolRequest(map[string]interface{}{
		"project_id": projectID,
	}))
	require.NoError(t, err)
	status := resultJSON(t, statusResult)
	stats, ok := status["statistics"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), stats["symbols_count"])
	assert.Equal(t, float64(1), stats["files_count"])
}

func TestIndexProjectUnknownID(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleIndexProject(context.Background(), toolRequest(map[string]interface{}{
		"project_id": "missing",
	}))
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeProjectNotFound, mcpErr.Code)
}

func TestSearchSymbolsEmptyQuery(t *testing.T) {
	s := newTestServer(t)
	projectID := registerFixtureProject(t, s, "demo", t.TempDir())

	_, err := s.handleSearchSymbols(context.Background(), toolRequest(map[string]interface{}{
		"project_id": projectID,
		"query":      "   ",
	}))
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeEmptyQuery, mcpErr.Code)
}

func TestDocumentsRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	projectID := registerFixtureProject(t, s, "demo", t.TempDir())

	addResult, err := s.handleAddDocument(ctx, toolRequest(map[string]interface{}{
		"project_id": projectID,
		"title":      "Deployment runbook",
		"content":    "Roll the service with one replica at a time.",
	}))
	require.NoError(t, err)
	added := resultJSON(t, addResult)
	assert.Equal(t, true, added["embedded"])

	searchResult, err := s.handleSearchDocuments(ctx, toolRequest(map[string]interface{}{
		"project_id": projectID,
		"query":      "Roll the service with one replica at a time.",
	}))
	require.NoError(t, err)
	found := resultJSON(t, searchResult)
	results, ok := found["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)
	top, ok := results[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Deployment runbook", top["title"])
}

func TestAddDocumentUnknownProject(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleAddDocument(context.Background(), toolRequest(map[string]interface{}{
		"project_id": "missing",
		"title":      "t",
		"content":    "c",
	}))
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeProjectNotFound, mcpErr.Code)
}

func TestNewServerRejectsDimensionChange(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		DBPath:            dbPath,
		EmbeddingProvider: "local",
		EmbeddingDim:      8,
		Workers:           2,
	}
	first, err := NewServer(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, first.store.Close())

	// Reopening the same index with a different dimension must fail at
	// startup.
	cfg2 := &config.Config{
		DBPath:            dbPath,
		EmbeddingProvider: "local",
		EmbeddingDim:      16,
		Workers:           2,
	}
	_, err = NewServer(cfg2, logger)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestListProjects(t *testing.T) {
	s := newTestServer(t)
	registerFixtureProject(t, s, "alpha", t.TempDir())
	registerFixtureProject(t, s, "beta", t.TempDir())

	result, err := s.handleListProjects(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	decoded := resultJSON(t, result)
	assert.Equal(t, float64(2), decoded["count"])
}
