package mcp

import (
	"context"
	"net/http"

	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/crier/internal/middleware"
	"github.com/btouchard/crier/internal/task"
)

// Deps holds shared dependencies injected into MCP handlers.
type Deps struct {
	Tasks   *task.Service
	Version string
}

// NewServer creates and configures the MCP server with all tools registered.
func NewServer(deps *Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"Crier",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	registerTools(s, deps)

	return s
}

// NewHTTPHandler serves s over streamable HTTP. The authenticated user set
// by middleware.BearerAuth is carried into every tool call.
func NewHTTPHandler(s *server.MCPServer) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if id, ok := middleware.UserID(r.Context()); ok {
				return middleware.WithUser(ctx, id)
			}
			return ctx
		}),
	)
}
