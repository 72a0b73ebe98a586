package app

import (
	"context"
	"log"

	mcpserver "canlog/internal/mcp"
)

// ServeMCP runs canlog as an MCP server on stdin/stdout until the client
// disconnects or ctx is cancelled. Triggers are left to `canlog serve`.
func (a *App) ServeMCP(ctx context.Context, version string) error {
	mcpSrv := mcpserver.New(mcpserver.Deps{
		Conversions: a.Conversions,
		Targets:     a.Targets,
		Version:     version,
	})

	log.Printf("[MCP] Starting standalone stdio server (catalog %s)...", a.cfg.DatabasePath())
	return mcpSrv.ServeStdio(ctx)
}
