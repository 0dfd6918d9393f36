// Package mcp implements the Model Context Protocol (MCP) server for ctxd.
//
// The MCP server exposes four tools to AI coding assistants:
//   - index_project: Incrementally index a JS/TS project
//   - get_context: Assemble a budget-bounded context bundle for a query
//   - engine_status: Check indexing status and statistics
//   - compact_index: Reclaim tombstoned index entries
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server communicates with MCP clients via standard input/output,
// making it simple to integrate with any MCP-compatible client. Stdout is
// reserved for protocol frames; all logging goes to stderr.
//
// # Basic Usage
//
// The MCP server is typically started via the serve command:
//
//	ctxd serve
//
// It then listens on stdin for MCP protocol messages and writes responses
// to stdout.
//
// # Tool: index_project
//
// Index a project to make it queryable:
//
//	Request:
//	{
//	  "name": "index_project",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "force": false
//	  }
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "files_added": 120,
//	  "files_modified": 3,
//	  "units_indexed": 412,
//	  "duration_ms": 1843
//	}
//
// # Tool: get_context
//
// Retrieve the most relevant indexed units for a query, packed into a
// byte budget:
//
//	Request:
//	{
//	  "name": "get_context",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "query": "shopping cart state management",
//	    "budget_bytes": 8192,
//	    "kinds": ["hook", "store"]
//	  }
//	}
//
//	Response:
//	{
//	  "entries": [
//	    {"unit_id": "...", "path": "src/hooks/useCart.ts", "kind": "hook",
//	     "symbol": "useCart", "excerpt": "...", "score": 0.91}
//	  ],
//	  "total_bytes": 5120,
//	  "candidates": 20,
//	  "cache_hit": false
//	}
//
// Identical queries against an unchanged index return identical bundles.
// The server purges its bundle cache after every successful sync.
//
// # Tool: engine_status
//
// Report per-project statistics plus index and embedder details. A
// project that has never been indexed yields {"indexed": false} rather
// than an error, so clients can probe before indexing.
//
// # Tool: compact_index
//
// Rewrite the index snapshot without tombstoned entries. Queries remain
// available throughout; compaction swaps generations atomically.
//
// # Error Codes
//
// Tool failures use JSON-RPC error codes: -32602 for invalid parameters,
// -32603 for internal failures, and server-specific codes -32001
// (sync already in progress), -32002 (project not indexed), and -32003
// (empty query).
package mcp
