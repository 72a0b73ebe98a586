package logfile

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"canlog/internal/telemetry"
)

// ── Format ─────────────────────────────────────────────────
// A Format decodes and encodes a stream of [channel, timestamp, payload]
// triples. Implementations live next to this file, one per encoding,
// and register themselves from init().

// Decoder reads one message at a time. It returns io.EOF after the
// last message.
type Decoder interface {
	Decode() (telemetry.DecodedMessage, error)
}

// Encoder writes one message at a time.
type Encoder interface {
	Encode(telemetry.DecodedMessage) error
}

// FormatSpec describes a registered format.
type FormatSpec struct {
	Name       string   `json:"name"`
	Label      string   `json:"label"`
	Extensions []string `json:"extensions"`
}

// Format is implemented by every log encoding.
type Format interface {
	Spec() FormatSpec
	NewDecoder(r io.Reader) Decoder
	NewEncoder(w io.Writer) Encoder
}

// DefaultFormat is used when a path's extension names no format.
const DefaultFormat = "msgpack"

// ── Format Registry ────────────────────────────────────────

var (
	registryMu sync.RWMutex
	registry   = map[string]Format{}
)

// RegisterFormat registers a format by its spec name.
func RegisterFormat(f Format) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[f.Spec().Name] = f
}

// LookupFormat returns a registered format by name.
func LookupFormat(name string) (Format, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown log format: %q", name)
	}
	return f, nil
}

// Formats returns the specs of all registered formats, sorted by name.
func Formats() []FormatSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]FormatSpec, 0, len(registry))
	for _, f := range registry {
		specs = append(specs, f.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// DetectFormat picks a format from the file extension, ignoring a trailing
// compression suffix (".zst", ".lz4"). Unknown extensions fall back to
// DefaultFormat, the format ground-station logs are written in.
func DetectFormat(path string) string {
	name := strings.ToLower(filepath.Base(path))
	for _, c := range []Compression{CompressionZstd, CompressionLZ4} {
		name = strings.TrimSuffix(name, c.Extension())
	}
	ext := filepath.Ext(name)

	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, f := range registry {
		if slices.Contains(f.Spec().Extensions, ext) {
			return f.Spec().Name
		}
	}
	return DefaultFormat
}

// ── Payload normalization ──────────────────────────────────

// triple converts a decoded [channel, timestamp, payload] array.
// Payloads that are not board records (other channels log strings,
// GPS fixes, etc.) leave Payload empty.
func triple(v []any) (telemetry.DecodedMessage, error) {
	if len(v) != 3 {
		return telemetry.DecodedMessage{}, fmt.Errorf("expected 3-element message, got %d elements", len(v))
	}
	channel, ok := v[0].(string)
	if !ok {
		return telemetry.DecodedMessage{}, fmt.Errorf("channel: expected string, got %T", v[0])
	}
	ts, ok := telemetry.AsFloat(v[1])
	if !ok {
		return telemetry.DecodedMessage{}, fmt.Errorf("timestamp: expected number, got %T", v[1])
	}
	return telemetry.DecodedMessage{Channel: channel, Timestamp: ts, Payload: record(v[2])}, nil
}

func record(payload any) telemetry.Record {
	m, ok := payload.(map[string]any)
	if !ok {
		return telemetry.Record{}
	}
	data, _ := m["data"].(map[string]any)
	return telemetry.Record{
		BoardID: scalar(m["board_id"]),
		MsgType: scalar(m["msg_type"]),
		Data:    data,
	}
}

func scalar(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// payload is the inverse of record, used by encoders.
func payload(r telemetry.Record) map[string]any {
	if r.BoardID == "" && r.MsgType == "" && r.Data == nil {
		return nil
	}
	return map[string]any{
		"board_id": r.BoardID,
		"msg_type": r.MsgType,
		"data":     r.Data,
	}
}
