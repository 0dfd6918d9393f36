package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pattern-foundry/ctxd/internal/tracker"
	"github.com/pattern-foundry/ctxd/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrorCodeSyncInProgress = -32001 // Another sync is already running
	ErrorCodeNotIndexed     = -32002 // Project not indexed
	ErrorCodeEmptyQuery     = -32003 // Query parameter is empty
)

// handleIndexProject handles the index_project tool invocation
func (s *Server) handleIndexProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	force, _ := args["force"].(bool)

	stats, err := s.engine.Sync(ctx, path, force)
	if err != nil {
		if errors.Is(err, tracker.ErrSyncInProgress) {
			return nil, newMCPError(ErrorCodeSyncInProgress, "another sync is already running", map[string]interface{}{
				"path": path,
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "sync failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":        true,
		"files_added":    stats.FilesAdded,
		"files_modified": stats.FilesModified,
		"files_removed":  stats.FilesRemoved,
		"files_failed":   stats.FilesFailed,
		"units_indexed":  stats.UnitsIndexed,
		"units_removed":  stats.UnitsRemoved,
		"units_degraded": stats.UnitsDegraded,
		"full_rescan":    stats.FullRescan,
		"duration_ms":    stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
		} else {
			response["errors"] = stats.ErrorMessages
		}
		response["error_count"] = errorCount
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetContext handles the get_context tool invocation
func (s *Server) handleGetContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	text, ok := args["query"].(string)
	if !ok || text == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	topK := getIntDefault(args, "top_k", 0)
	if topK < 0 || topK > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "top_k must be between 1 and 100", map[string]interface{}{
			"param": "top_k",
			"value": topK,
		})
	}

	query := types.Query{
		Text:   text,
		Budget: getIntDefault(args, "budget_bytes", 0),
		K:      topK,
	}

	if glob, ok := args["path_glob"].(string); ok {
		query.Filters.PathGlob = glob
	}
	if rawKinds, ok := args["kinds"].([]interface{}); ok {
		for _, rk := range rawKinds {
			name, ok := rk.(string)
			if !ok {
				continue
			}
			kind := types.Kind(name)
			if !types.ValidKind(kind) {
				return nil, newMCPError(ErrorCodeInvalidParams, "invalid kind", map[string]interface{}{
					"param":   "kinds",
					"value":   name,
					"allowed": []string{"component", "hook", "store", "util", "raw"},
				})
			}
			query.Filters.Kinds = append(query.Filters.Kinds, kind)
		}
	}

	resp, err := s.engine.Query(ctx, path, query)
	if err != nil {
		if errors.Is(err, types.ErrEmptyQuery) || errors.Is(err, types.ErrInvalidBudget) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid query", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeNotIndexed, "query failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	entries := make([]map[string]interface{}, 0, len(resp.Bundle.Entries))
	for _, e := range resp.Bundle.Entries {
		entry := map[string]interface{}{
			"unit_id": e.UnitID,
			"path":    e.Path,
			"kind":    string(e.Kind),
			"symbol":  e.SymbolName,
			"excerpt": e.Excerpt,
			"score":   e.Score,
		}
		if e.Truncated {
			entry["truncated"] = true
		}
		if e.Degraded {
			entry["degraded"] = true
		}
		entries = append(entries, entry)
	}

	response := map[string]interface{}{
		"entries":     entries,
		"total_bytes": resp.Bundle.Size(),
		"candidates":  resp.Candidates,
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleEngineStatus handles the engine_status tool invocation
func (s *Server) handleEngineStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	status, err := s.engine.Status(ctx, path)
	if err != nil {
		response := map[string]interface{}{
			"indexed": false,
			"path":    path,
			"message": "Project not indexed. Use the index_project tool first.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	response := map[string]interface{}{
		"indexed": true,
		"project": map[string]interface{}{
			"path":            status.Project.Project.RootPath,
			"last_indexed_at": status.Project.LastIndexedAt.Format("2006-01-02T15:04:05Z07:00"),
		},
		"statistics": map[string]interface{}{
			"files_count":    status.Project.FilesCount,
			"units_count":    status.Project.UnitsCount,
			"degraded_count": status.Project.DegradedCount,
			"kind_counts":    status.Project.KindCounts,
		},
		"index": map[string]interface{}{
			"live":       status.Index.Live,
			"tombstoned": status.Index.Tombstoned,
			"dimension":  status.Index.Dimension,
		},
		"embedder":   status.Embedder,
		"build_mode": status.BuildMode,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCompactIndex handles the compact_index tool invocation
func (s *Server) handleCompactIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.engine.Compact(); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "compaction failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"compacted": true,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
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

// validatePath checks if a path exists, is absolute, and is a readable
// directory.
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
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

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
