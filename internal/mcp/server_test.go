package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"canlog/internal/logfile"
	"canlog/internal/secret"
	"canlog/internal/service"
	"canlog/internal/storage"
	"canlog/internal/telemetry"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "catalog.db"), filepath.Join(dir, "data"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	emitter := &service.MockEmitter{}
	targets := service.NewTargetService(storage.NewExportTargetStore(db), secret.NewMemoryStore())
	conv := service.NewConversionService(
		storage.NewConversionStore(db), targets, emitter,
		service.Defaults{ChannelPrefix: telemetry.DefaultChannelPrefix},
		filepath.Join(dir, "data", "exports"),
	)
	t.Cleanup(conv.Stop)

	logPath := filepath.Join(dir, "bench.log")
	w, err := logfile.Create(logPath, "", logfile.CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []telemetry.DecodedMessage{
		{Channel: "CAN/Parsley/1", Timestamp: 0, Payload: telemetry.Record{BoardID: "1", MsgType: "A", Data: map[string]any{"x": 5}}},
		{Channel: "CAN/Parsley/2", Timestamp: 1, Payload: telemetry.Record{BoardID: "2", MsgType: "B", Data: map[string]any{"sensor_id": 7, "p": 1.5}}},
		{Channel: "CAN/Parsley/1", Timestamp: 2, Payload: telemetry.Record{BoardID: "1", MsgType: "A", Data: map[string]any{"x": 6}}},
	} {
		if err := w.Write(m); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	s := New(Deps{Conversions: conv, Targets: targets})
	return s, logPath
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", r.Content[0])
	}
	return tc.Text
}

func TestDiscoverColumnsTool(t *testing.T) {
	s, logPath := newTestServer(t)
	res, err := s.handleDiscoverColumns(context.Background(), callTool(map[string]any{"logPath": logPath}))
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Columns  []string `json:"columns"`
		Messages int      `json:"messages"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(out.Columns, []string{"1-A-x", "2-B-7-p"}) || out.Messages != 3 {
		t.Errorf("unexpected discovery %+v", out)
	}

	if _, err := s.handleDiscoverColumns(context.Background(), callTool(map[string]any{})); err == nil {
		t.Error("expected missing logPath to fail")
	}
}

func TestPreviewTableTool(t *testing.T) {
	s, logPath := newTestServer(t)
	res, err := s.handlePreviewTable(context.Background(), callTool(map[string]any{
		"logPath": logPath,
		"columns": "1-*",
		"maxRows": float64(1),
	}))
	if err != nil {
		t.Fatal(err)
	}
	var out service.PreviewResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(out.Header, []string{"timestamp", "1-A-x"}) {
		t.Errorf("unexpected header %v", out.Header)
	}
	if len(out.Rows) != 1 || out.TotalRows != 2 {
		t.Errorf("expected 1 of 2 rows, got %d of %d", len(out.Rows), out.TotalRows)
	}
}

func TestJobTools(t *testing.T) {
	s, logPath := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleCreateJob(ctx, callTool(map[string]any{"logPath": logPath, "columns": "1-A-x, 2-B-7-p"}))
	if err != nil {
		t.Fatal(err)
	}
	var job struct {
		ID      string   `json:"id"`
		Columns []string `json:"columns"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &job); err != nil {
		t.Fatal(err)
	}
	if job.ID == "" || len(job.Columns) != 2 {
		t.Fatalf("unexpected job %+v", job)
	}

	res, err = s.handleRunJob(ctx, callTool(map[string]any{"jobId": job.ID}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("run failed: %s", resultText(t, res))
	}
	var run service.RunResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &run); err != nil {
		t.Fatal(err)
	}
	if run.RowsWritten != 3 {
		t.Errorf("expected 3 rows written, got %d", run.RowsWritten)
	}

	contents, err := s.handleJobRunsResource(ctx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "canlog://jobs/" + job.ID + "/runs"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected one resource content, got %d", len(contents))
	}
}

func TestRunJobTool_ReportsFailure(t *testing.T) {
	s, _ := newTestServer(t)
	missing := filepath.Join(t.TempDir(), "gone.log")
	job, err := s.conversions.CreateJob(context.Background(), service.JobInput{LogPath: missing, Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.handleRunJob(context.Background(), callTool(map[string]any{"jobId": job.ID}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected a failed run to be flagged as an error result")
	}
}

func TestCreateTargetTool_RejectsBadExtra(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.handleCreateTarget(context.Background(), callTool(map[string]any{
		"name": "x", "driver": "sqlite", "host": "/tmp/x.db", "extraJson": "[1]",
	}))
	if err == nil {
		t.Error("expected non-object extraJson to be rejected")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" 1-*, ,*-pressure,")
	if !slices.Equal(got, []string{"1-*", "*-pressure"}) {
		t.Errorf("unexpected split %v", got)
	}
	if splitList("") != nil {
		t.Error("expected nil for empty input")
	}
}

func TestJobIDFromURI(t *testing.T) {
	cases := map[string]string{
		"canlog://jobs/abc-123/runs": "abc-123",
		"canlog://jobs/abc/runs/x":   "",
		"canlog://targets":           "",
		"canlog://jobs//runs":        "",
	}
	for uri, want := range cases {
		if got := jobIDFromURI(uri); got != want {
			t.Errorf("%s: expected %q, got %q", uri, want, got)
		}
	}
}

func TestServeStdio_StopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- s.ServeStdio(ctx) }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ServeStdio ignored a cancelled context")
	}
}
