package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/pattern-foundry/ctxd/internal/engine"
)

const (
	// ServerName is the MCP server name
	ServerName = "ctxd"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server around a running context engine. One Server
// owns one Engine; tools share its catalog, index, and embedder cache.
type Server struct {
	mcp    *server.MCPServer
	engine *engine.Engine
	log    *slog.Logger
}

// NewServer creates an MCP server backed by eng. The engine must already be
// open; the server takes ownership and closes it when Serve returns.
func NewServer(eng *engine.Engine, log *slog.Logger) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if log == nil {
		log = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:    mcpServer,
		engine: eng,
		log:    log,
	}

	s.registerTools()

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.engine.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexProjectTool(), s.handleIndexProject)
	s.mcp.AddTool(getContextTool(), s.handleGetContext)
	s.mcp.AddTool(engineStatusTool(), s.handleEngineStatus)
	s.mcp.AddTool(compactIndexTool(), s.handleCompactIndex)
}
