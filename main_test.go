package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"canlog/internal/telemetry"
)

func sampleTable(t *testing.T) *telemetry.Table {
	t.Helper()
	rec := func(ts float64, x int) telemetry.DecodedMessage {
		return telemetry.DecodedMessage{
			Channel:   telemetry.DefaultChannelPrefix + "/1",
			Timestamp: ts,
			Payload:   telemetry.Record{BoardID: "1", MsgType: "A", Data: map[string]any{"x": x}},
		}
	}
	src := telemetry.NewMemorySource([]telemetry.DecodedMessage{rec(0, 5), rec(1, 6)})
	_, table, err := telemetry.Convert(context.Background(), src, nil, telemetry.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func TestWriteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	n, err := writeCSVFile(context.Background(), path, sampleTable(t))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), "timestamp,1-A-x\n0,5\n1,6\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestWriteCSVFile_ReportsWriteFailure(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	if _, err := writeCSVFile(context.Background(), "/dev/full", sampleTable(t)); err == nil {
		t.Fatal("expected a full device to fail the export")
	}
}

func TestWriteCSVFile_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.csv")
	if _, err := writeCSVFile(context.Background(), path, sampleTable(t)); err == nil {
		t.Fatal("expected missing directory to fail")
	}
}
