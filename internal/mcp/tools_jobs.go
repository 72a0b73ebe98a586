package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"canlog/internal/service"
)

func (s *Server) registerJobTools() {
	s.mcp.AddTool(mcp.NewTool("create_conversion_job",
		mcp.WithDescription("Save a conversion job: reconstruct a log file into a table and write it to an export target (or a CSV file when no target is given). Jobs can run manually, on a cron schedule, or whenever the log file changes."),
		mcp.WithString("name", mcp.Description("Job name (optional, defaults to the log file name)")),
		mcp.WithString("logPath", mcp.Description("Path to the log file"), mcp.Required()),
		mcp.WithString("format", mcp.Description("Log format (optional)")),
		mcp.WithString("channelPrefix", mcp.Description("Channel prefix (optional)")),
		mcp.WithString("columns", mcp.Description("Comma-separated column names or glob patterns (optional, default all)")),
		mcp.WithString("placeholder", mcp.Description("Value for cells with no reading yet (optional, default empty/null)")),
		mcp.WithNumber("reorderWindow", mcp.Description("Reorder window size in messages (optional)")),
		mcp.WithString("targetId", mcp.Description("Export target ID (optional, see list_export_targets)")),
		mcp.WithString("table", mcp.Description("Table, collection or CSV file name at the target (optional)")),
		mcp.WithString("syncMode", mcp.Description("replace (default) or append")),
		mcp.WithString("triggerType", mcp.Description("manual (default), schedule or file_watch")),
		mcp.WithString("triggerConfig", mcp.Description("Cron expression for schedule, or watched path for file_watch (defaults to logPath)")),
	), s.handleCreateJob)

	s.mcp.AddTool(mcp.NewTool("list_conversion_jobs",
		mcp.WithDescription("List saved conversion jobs with their last run status"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListJobs)

	s.mcp.AddTool(mcp.NewTool("run_conversion_job",
		mcp.WithDescription("Run a conversion job now. In replace mode this overwrites the target table."),
		mcp.WithString("jobId", mcp.Description("Conversion job ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunJob)

	s.mcp.AddTool(mcp.NewTool("list_run_logs",
		mcp.WithDescription("List the most recent runs of a conversion job, newest first"),
		mcp.WithString("jobId", mcp.Description("Conversion job ID"), mcp.Required()),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListRunLogs)

	s.mcp.AddTool(mcp.NewTool("delete_conversion_job",
		mcp.WithDescription("Delete a conversion job and its run history. Exported data is left in place."),
		mcp.WithString("jobId", mcp.Description("Conversion job ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteJob)
}

func (s *Server) handleCreateJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input := service.JobInput{
		Name:          req.GetString("name", ""),
		LogPath:       req.GetString("logPath", ""),
		Format:        req.GetString("format", ""),
		ChannelPrefix: req.GetString("channelPrefix", ""),
		Columns:       splitList(req.GetString("columns", "")),
		Placeholder:   req.GetString("placeholder", ""),
		ReorderWindow: req.GetInt("reorderWindow", 0),
		TargetID:      req.GetString("targetId", ""),
		Table:         req.GetString("table", ""),
		SyncMode:      req.GetString("syncMode", ""),
		TriggerType:   req.GetString("triggerType", ""),
		TriggerConfig: req.GetString("triggerConfig", ""),
		Enabled:       true,
	}
	job, err := s.conversions.CreateJob(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("create conversion job: %w", err)
	}
	return jsonResult(job)
}

func (s *Server) handleListJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs, err := s.conversions.ListJobs()
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"jobs":    jobs,
		"running": s.conversions.Running(),
	})
}

func (s *Server) handleRunJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	result, err := s.conversions.RunJob(ctx, jobID)
	if err != nil {
		if result == nil {
			return nil, fmt.Errorf("run conversion job: %w", err)
		}
		// The run happened and failed; report it like a result.
		r, jerr := jsonResult(result)
		if jerr != nil {
			return nil, jerr
		}
		r.IsError = true
		return r, nil
	}
	return jsonResult(result)
}

func (s *Server) handleListRunLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	logs, err := s.conversions.ListRunLogs(jobID)
	if err != nil {
		return nil, err
	}
	return jsonResult(logs)
}

func (s *Server) handleDeleteJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	if err := s.conversions.DeleteJob(ctx, jobID); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Deleted job %s", jobID)), nil
}
