package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexProjectTool returns the tool definition for index_project
func indexProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_project",
		Description: "Index a JavaScript/TypeScript project incrementally to make it queryable",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root",
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, discard the stored snapshot and rescan every file",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// getContextTool returns the tool definition for get_context
func getContextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_context",
		Description: "Assemble a budget-bounded context bundle of indexed source units relevant to a query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to an indexed project",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural-language or keyword description of the code to retrieve",
				},
				"budget_bytes": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum total excerpt bytes in the bundle (default from server config)",
					"minimum":     1,
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Candidate pool size retrieved before deduplication (1-100)",
					"minimum":     1,
					"maximum":     100,
				},
				"kinds": map[string]interface{}{
					"type":        "array",
					"description": "Restrict results to these unit kinds",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []string{"component", "hook", "store", "util", "raw"},
					},
				},
				"path_glob": map[string]interface{}{
					"type":        "string",
					"description": "Glob pattern over unit paths (e.g., 'src/hooks/**')",
				},
			},
			Required: []string{"path", "query"},
		},
	}
}

// engineStatusTool returns the tool definition for engine_status
func engineStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "engine_status",
		Description: "Report indexing status and statistics for a project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project",
				},
			},
			Required: []string{"path"},
		},
	}
}

// compactIndexTool returns the tool definition for compact_index
func compactIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "compact_index",
		Description: "Reclaim tombstoned index entries and rewrite the snapshot",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
