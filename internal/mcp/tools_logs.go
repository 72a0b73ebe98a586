package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"canlog/internal/service"
)

func (s *Server) registerLogTools() {
	s.mcp.AddTool(mcp.NewTool("list_log_formats",
		mcp.WithDescription("List the log encodings canlog can read, with their file extensions. Compressed logs (.zst, .lz4) are detected automatically."),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListLogFormats)

	s.mcp.AddTool(mcp.NewTool("discover_columns",
		mcp.WithDescription("Scan a telemetry log once and list every column (signal signature) it contains, in first-seen order. Column names look like board-msgtype-field or board-msgtype-discriminator-field."),
		mcp.WithString("logPath", mcp.Description("Path to the log file"), mcp.Required()),
		mcp.WithString("format", mcp.Description("Log format (optional, detected from extension)")),
		mcp.WithString("channelPrefix", mcp.Description("Only channels starting with this prefix are read (default CAN/Parsley)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleDiscoverColumns)

	s.mcp.AddTool(mcp.NewTool("preview_table",
		mcp.WithDescription("Reconstruct a log into a forward-filled table without writing anything and return its first rows."),
		mcp.WithString("logPath", mcp.Description("Path to the log file"), mcp.Required()),
		mcp.WithString("format", mcp.Description("Log format (optional, detected from extension)")),
		mcp.WithString("channelPrefix", mcp.Description("Channel prefix (optional)")),
		mcp.WithString("columns", mcp.Description(`Comma-separated column names or glob patterns, e.g. "1-*, *-pressure" (optional, default all)`)),
		mcp.WithNumber("maxRows", mcp.Description("Number of rows to return (default 20)")),
		mcp.WithNumber("reorderWindow", mcp.Description("Reorder window size in messages (optional)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handlePreviewTable)
}

func (s *Server) handleListLogFormats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.conversions.ListFormats())
}

func (s *Server) handleDiscoverColumns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logPath := req.GetString("logPath", "")
	if logPath == "" {
		return nil, fmt.Errorf("logPath is required")
	}
	schema, err := s.conversions.DiscoverColumns(ctx, logPath, req.GetString("format", ""), req.GetString("channelPrefix", ""))
	if err != nil {
		return nil, fmt.Errorf("discover columns: %w", err)
	}
	return jsonResult(map[string]any{
		"columns":  schema.Names(),
		"messages": schema.Messages,
		"relevant": schema.Relevant,
	})
}

func (s *Server) handlePreviewTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logPath := req.GetString("logPath", "")
	if logPath == "" {
		return nil, fmt.Errorf("logPath is required")
	}
	preview, err := s.conversions.Preview(ctx, service.PreviewInput{
		LogPath:       logPath,
		Format:        req.GetString("format", ""),
		ChannelPrefix: req.GetString("channelPrefix", ""),
		Columns:       splitList(req.GetString("columns", "")),
		MaxRows:       req.GetInt("maxRows", 0),
		ReorderWindow: req.GetInt("reorderWindow", 0),
	})
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	return jsonResult(preview)
}
