package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"canlog/internal/service"
)

func (s *Server) registerTargetTools() {
	s.mcp.AddTool(mcp.NewTool("create_export_target",
		mcp.WithDescription("Register a destination for reconstructed tables: a CSV directory, an SQLite file, or a Postgres, MySQL or MongoDB database."),
		mcp.WithString("name", mcp.Description("Target name"), mcp.Required()),
		mcp.WithString("driver", mcp.Description("csv | sqlite | postgres | mysql | mongodb"), mcp.Required()),
		mcp.WithString("host", mcp.Description("Hostname, or directory/file path for csv and sqlite, or a full mongodb:// URI"), mcp.Required()),
		mcp.WithNumber("port", mcp.Description("Port (optional, driver default)")),
		mcp.WithString("database", mcp.Description("Database name (optional)")),
		mcp.WithString("username", mcp.Description("Username (optional)")),
		mcp.WithString("password", mcp.Description("Password (optional, kept in the secret store)")),
		mcp.WithString("sslMode", mcp.Description("SSL mode (optional)")),
		mcp.WithString("extraJson", mcp.Description(`Driver options as a JSON object, e.g. {"authSource":"admin"} (optional)`)),
	), s.handleCreateTarget)

	s.mcp.AddTool(mcp.NewTool("list_export_targets",
		mcp.WithDescription("List registered export targets (passwords are never returned)"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListTargets)

	s.mcp.AddTool(mcp.NewTool("test_export_target",
		mcp.WithDescription("Check that an export target is reachable"),
		mcp.WithString("targetId", mcp.Description("Export target ID"), mcp.Required()),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleTestTarget)
}

func (s *Server) handleCreateTarget(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	extra := req.GetString("extraJson", "")
	if extra != "" {
		var extraMap map[string]string
		if err := parseJSON(extra, &extraMap); err != nil {
			return nil, fmt.Errorf("extraJson must be a JSON object of strings: %w", err)
		}
	}
	target, err := s.targets.CreateTarget(service.TargetInput{
		Name:      req.GetString("name", ""),
		Driver:    req.GetString("driver", ""),
		Host:      req.GetString("host", ""),
		Port:      req.GetInt("port", 0),
		Database:  req.GetString("database", ""),
		Username:  req.GetString("username", ""),
		Password:  req.GetString("password", ""),
		SSLMode:   req.GetString("sslMode", ""),
		ExtraJSON: extra,
	})
	if err != nil {
		return nil, fmt.Errorf("create export target: %w", err)
	}
	return jsonResult(target)
}

func (s *Server) handleListTargets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	targets, err := s.targets.ListTargets()
	if err != nil {
		return nil, err
	}
	return jsonResult(targets)
}

func (s *Server) handleTestTarget(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("targetId", "")
	if id == "" {
		return nil, fmt.Errorf("targetId is required")
	}
	if err := s.targets.TestTarget(ctx, id); err != nil {
		return textResult(fmt.Sprintf("Target %s is not reachable: %v", id, err)), nil
	}
	return textResult(fmt.Sprintf("Target %s is reachable", id)), nil
}
