package logfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"canlog/internal/telemetry"
)

func sampleLog() []telemetry.DecodedMessage {
	rec := func(board, typ string, data map[string]any) telemetry.Record {
		return telemetry.Record{BoardID: board, MsgType: typ, Data: data}
	}
	return []telemetry.DecodedMessage{
		{Channel: "CAN/Parsley/1", Timestamp: 0, Payload: rec("1", "A", map[string]any{"time": 10, "x": 5})},
		{Channel: "GPS/fix", Timestamp: 0.5},
		{Channel: "CAN/Parsley/1", Timestamp: 1, Payload: rec("1", "A", map[string]any{"time": 11, "y": 9})},
		{Channel: "CAN/Parsley/2", Timestamp: 1.25, Payload: rec("2", "B", map[string]any{"sensor_id": 7, "p": 101.5})},
	}
}

func writeLog(t *testing.T, name, format string, c Compression) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	w, err := Create(path, format, c)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range sampleLog() {
		if err := w.Write(m); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func readAll(t *testing.T, src telemetry.Source) []telemetry.DecodedMessage {
	t.Helper()
	buf, err := telemetry.Buffer(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	var out []telemetry.DecodedMessage
	for m := range buf.Messages(context.Background()) {
		out = append(out, m)
	}
	return out
}

// sameMessage compares messages loosely: integer widths differ between
// encodings, so data values are compared by their printed form.
func sameMessage(a, b telemetry.DecodedMessage) bool {
	if a.Channel != b.Channel || a.Timestamp != b.Timestamp {
		return false
	}
	if a.Payload.BoardID != b.Payload.BoardID || a.Payload.MsgType != b.Payload.MsgType {
		return false
	}
	if len(a.Payload.Data) != len(b.Payload.Data) {
		return false
	}
	for k, v := range a.Payload.Data {
		if fmt.Sprint(v) != fmt.Sprint(b.Payload.Data[k]) {
			return false
		}
	}
	return true
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		file   string
		format string
		comp   Compression
	}{
		{"msgpack", "run.log", "msgpack", CompressionNone},
		{"msgpack zstd", "run.log.zst", "msgpack", CompressionZstd},
		{"msgpack lz4", "run.log.lz4", "msgpack", CompressionLZ4},
		{"cbor", "run.cbor", "cbor", CompressionNone},
		{"cbor zstd", "run.cbor.zst", "cbor", CompressionZstd},
		{"cbor lz4", "run.cbor.lz4", "", CompressionLZ4},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := writeLog(t, c.file, c.format, c.comp)
			src, err := Open(path, "")
			if err != nil {
				t.Fatal(err)
			}
			want := sampleLog()
			for pass := 0; pass < 2; pass++ {
				got := readAll(t, src)
				if len(got) != len(want) {
					t.Fatalf("pass %d: expected %d messages, got %d", pass, len(want), len(got))
				}
				for i := range want {
					if !sameMessage(got[i], want[i]) {
						t.Errorf("pass %d message %d: expected %+v, got %+v", pass, i, want[i], got[i])
					}
				}
			}
		})
	}
}

func TestFileSource_Convert(t *testing.T) {
	src, err := Open(writeLog(t, "run.log.zst", "", CompressionZstd), "")
	if err != nil {
		t.Fatal(err)
	}
	schema, table, err := telemetry.Convert(context.Background(), src, nil, telemetry.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(schema.Names(), []string{"1-A-x", "1-A-y", "2-B-7-p"}) {
		t.Errorf("unexpected columns %v", schema.Names())
	}
	if table.Len() != 3 {
		t.Errorf("expected 3 rows, got %d", table.Len())
	}
}

func TestFileSource_Truncated(t *testing.T) {
	path := writeLog(t, "run.log", "msgpack", CompressionNone)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-3], 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := Open(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := telemetry.Buffer(context.Background(), src); err == nil {
		t.Fatal("expected decode error for truncated log")
	}
}

func TestOpen_Errors(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.log"), ""); err == nil {
		t.Error("expected missing file to fail")
	}
	path := writeLog(t, "run.log", "msgpack", CompressionNone)
	if _, err := Open(path, "parquet"); err == nil {
		t.Error("expected unknown format to fail")
	}
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]string{
		"flight.log":        "msgpack",
		"flight.log.zst":    "msgpack",
		"bench.cbor":        "cbor",
		"bench.CBOR.lz4":    "cbor",
		"no-extension":      DefaultFormat,
		"archive/run.mpk":   "msgpack",
		"archive/run.cbors": "cbor",
	}
	for path, want := range cases {
		if got := DetectFormat(path); got != want {
			t.Errorf("%s: expected %s, got %s", path, want, got)
		}
	}
}

func TestFormats(t *testing.T) {
	var names []string
	for _, f := range Formats() {
		names = append(names, f.Name)
	}
	if !slices.Equal(names, []string{"cbor", "msgpack"}) {
		t.Errorf("unexpected formats %v", names)
	}
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "zstd": CompressionZstd, "lz4": CompressionLZ4} {
		got, err := ParseCompression(in)
		if err != nil || got != want {
			t.Errorf("%q: expected %s, got %s (%v)", in, want, got, err)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("expected gzip to be rejected")
	}
}

func TestSequenced(t *testing.T) {
	at := func(ts ...float64) []telemetry.DecodedMessage {
		out := make([]telemetry.DecodedMessage, len(ts))
		for i, v := range ts {
			out[i] = telemetry.DecodedMessage{Channel: fmt.Sprintf("c%d", i), Timestamp: v}
		}
		return out
	}
	src := telemetry.NewMemorySource(at(1, 3, 2, 2, 5, 4, 6))

	var ts []float64
	var channels []string
	for _, m := range readAll(t, Sequenced(src, 3)) {
		ts = append(ts, m.Timestamp)
		channels = append(channels, m.Channel)
	}
	if !slices.Equal(ts, []float64{1, 2, 2, 3, 4, 5, 6}) {
		t.Errorf("unexpected order %v", ts)
	}
	if channels[1] != "c2" || channels[2] != "c3" {
		t.Errorf("equal timestamps must keep arrival order, got %v", channels)
	}

	if Sequenced(src, 1) != telemetry.Source(src) {
		t.Error("expected window 1 to return the source unchanged")
	}
}

func TestSequenced_TooFarBehind(t *testing.T) {
	src := telemetry.NewMemorySource([]telemetry.DecodedMessage{
		{Timestamp: 5}, {Timestamp: 6}, {Timestamp: 7}, {Timestamp: 1},
	})
	var ts []float64
	for _, m := range readAll(t, Sequenced(src, 2)) {
		ts = append(ts, m.Timestamp)
	}
	if slices.IsSorted(ts) {
		t.Errorf("expected a message beyond the window to stay out of order, got %v", ts)
	}
}
