package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"canlog/internal/service"
)

// Server is the MCP server for canlog. It exposes tools, resources and
// prompts so agents can inspect logs and manage conversion jobs.
type Server struct {
	mcp *server.MCPServer

	conversions *service.ConversionService
	targets     *service.TargetService
}

// Deps holds the services the MCP server is built on.
type Deps struct {
	Conversions *service.ConversionService
	Targets     *service.TargetService
	Version     string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	s := &Server{
		conversions: deps.Conversions,
		targets:     deps.Targets,
	}

	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s.mcp = server.NewMCPServer(
		"canlog-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerLogTools()
	s.registerJobTools()
	s.registerTargetTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio serves on stdin/stdout until the client disconnects or ctx
// is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	log.Println("[MCP] Starting stdio server...")
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// MCP returns the underlying server, for in-process clients.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func boolPtr(v bool) *bool { return &v }
