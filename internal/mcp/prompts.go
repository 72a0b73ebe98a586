package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("reconstruct_log",
		mcp.WithPromptDescription("Walk through turning a telemetry log into a forward-filled table"),
		mcp.WithArgument("logPath",
			mcp.ArgumentDescription("Path to the log file"),
			mcp.RequiredArgument(),
		),
	), s.handleReconstructPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("watch_log",
		mcp.WithPromptDescription("Set up a job that re-exports a log into a database whenever it changes"),
		mcp.WithArgument("logPath",
			mcp.ArgumentDescription("Path to the log file"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("driver",
			mcp.ArgumentDescription("Export driver: csv, sqlite, postgres, mysql or mongodb"),
			mcp.RequiredArgument(),
		),
	), s.handleWatchPrompt)
}

func (s *Server) handleReconstructPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	logPath := req.Params.Arguments["logPath"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Reconstruct %s", logPath),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Reconstruct the telemetry log "%s" into a table. Follow these steps:

1. Use discover_columns to list the signals in the log and how many messages are relevant
2. Pick the columns of interest; glob patterns like "1-*" or "*-pressure" select whole groups
3. Use preview_table with those columns to check the first rows look right
4. If the preview fails with an ambiguous discriminator error, report the message type it names; the log cannot be reconstructed as-is
5. If it fails because timestamps go backwards, retry with a reorderWindow (e.g. 64)
6. Use create_conversion_job with the chosen columns, then run_conversion_job

Summarize the columns, row count and where the table was written.`, logPath),
				},
			},
		},
	}, nil
}

func (s *Server) handleWatchPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	logPath := req.Params.Arguments["logPath"]
	driver := req.Params.Arguments["driver"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Watch %s and export to %s", logPath, driver),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Keep a %s export of "%s" up to date. Follow these steps:

1. Use list_export_targets to find an existing %s target, or create_export_target to add one
2. Use test_export_target to confirm it is reachable
3. Use create_conversion_job with triggerType "file_watch", the target ID and syncMode "replace"
4. Use run_conversion_job once and confirm with list_run_logs that it succeeded

File-watch jobs only fire while canlog serve is running.`, driver, logPath, driver),
				},
			},
		},
	}, nil
}
