package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	// ── canlog://jobs ──────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		"canlog://jobs",
		"Conversion Jobs",
		mcp.WithMIMEType("application/json"),
	), s.handleJobsResource)

	// ── canlog://targets ───────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		"canlog://targets",
		"Export Targets",
		mcp.WithMIMEType("application/json"),
	), s.handleTargetsResource)

	// ── canlog://jobs/{jobId}/runs ─────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"canlog://jobs/{jobId}/runs",
			"Runs of a Conversion Job",
		),
		s.handleJobRunsResource,
	)
}

func (s *Server) handleJobsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jobs, err := s.conversions.ListJobs()
	if err != nil {
		return nil, err
	}

	type jobSummary struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		LogPath    string `json:"logPath"`
		Trigger    string `json:"trigger"`
		LastStatus string `json:"lastStatus,omitempty"`
	}

	summaries := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		summaries = append(summaries, jobSummary{
			ID:         j.ID,
			Name:       j.Name,
			LogPath:    j.LogPath,
			Trigger:    j.TriggerType,
			LastStatus: j.LastStatus,
		})
	}
	return jsonContents("canlog://jobs", summaries)
}

func (s *Server) handleTargetsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	targets, err := s.targets.ListTargets()
	if err != nil {
		return nil, err
	}
	return jsonContents("canlog://targets", targets)
}

func (s *Server) handleJobRunsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	jobID := jobIDFromURI(uri)
	if jobID == "" {
		return nil, fmt.Errorf("could not extract jobId from URI: %s", uri)
	}
	logs, err := s.conversions.ListRunLogs(jobID)
	if err != nil {
		return nil, err
	}
	return jsonContents(uri, logs)
}

// jobIDFromURI extracts the job ID from "canlog://jobs/{id}/runs".
func jobIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, "canlog://jobs/")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/runs")
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
