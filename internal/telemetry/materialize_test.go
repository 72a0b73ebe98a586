package telemetry

import (
	"context"
	"errors"
	"iter"
	"slices"
	"testing"
)

const can = "CAN/Parsley/board"

func msg(ts float64, board, typ string, data map[string]any) DecodedMessage {
	return DecodedMessage{Channel: can, Timestamp: ts, Payload: Record{BoardID: board, MsgType: typ, Data: data}}
}

func sigs(t *testing.T, names ...string) []Signature {
	t.Helper()
	out := make([]Signature, len(names))
	for i, n := range names {
		s, err := ParseSignature(n)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = s
	}
	return out
}

func scenarioLog() []DecodedMessage {
	return []DecodedMessage{
		msg(0, "1", "A", map[string]any{"x": 5}),
		msg(1, "1", "A", map[string]any{"y": 9}),
	}
}

func TestMaterialize_ForwardFill(t *testing.T) {
	src := NewMemorySource(scenarioLog())
	table, err := Materialize(context.Background(), src, sigs(t, "1-A-x", "1-A-y"), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	want := []Row{
		{Timestamp: 0, Values: []any{5, nil}},
		{Timestamp: 1, Values: []any{5, 9}},
	}
	if table.Len() != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), table.Len())
	}
	for i, r := range table.Rows {
		if r.Timestamp != want[i].Timestamp || !slices.Equal(r.Values, want[i].Values) {
			t.Errorf("row %d: expected %+v, got %+v", i, want[i], r)
		}
	}
	if h := table.Header(); !slices.Equal(h, []string{"timestamp", "1-A-x", "1-A-y"}) {
		t.Errorf("unexpected header %v", h)
	}
}

func TestDiscover_FirstOccurrenceOrder(t *testing.T) {
	log := append(scenarioLog(),
		DecodedMessage{Channel: "GPS/fix", Timestamp: 2},
		msg(3, "1", "A", map[string]any{"x": 6}),
	)
	schema, err := Discover(context.Background(), NewMemorySource(log), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(schema.Names(), []string{"1-A-x", "1-A-y"}) {
		t.Errorf("unexpected columns %v", schema.Names())
	}
	if schema.Messages != 4 || schema.Relevant != 3 {
		t.Errorf("expected 4 messages / 3 relevant, got %d / %d", schema.Messages, schema.Relevant)
	}
}

func TestMaterialize_UnmatchedMessageEmitsNothing(t *testing.T) {
	log := []DecodedMessage{
		msg(0, "1", "A", map[string]any{"x": 5}),
		msg(1, "2", "B", map[string]any{"z": 1}),
		msg(2, "1", "A", map[string]any{"y": 9}),
	}
	table, err := Materialize(context.Background(), NewMemorySource(log), sigs(t, "1-A-x", "1-A-y"), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", table.Len())
	}
	if table.Rows[1].Timestamp != 2 || !slices.Equal(table.Rows[1].Values, []any{5, 9}) {
		t.Errorf("unexpected second row %+v", table.Rows[1])
	}
}

func TestMaterialize_EmptyColumns(t *testing.T) {
	table, err := Materialize(context.Background(), NewMemorySource(scenarioLog()), nil, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != 0 || len(table.Columns) != 0 {
		t.Errorf("expected empty table, got %d rows / %d columns", table.Len(), len(table.Columns))
	}
}

func TestMaterialize_Placeholder(t *testing.T) {
	opts := DefaultOptions()
	opts.Placeholder = "N/A"
	table, err := Materialize(context.Background(), NewMemorySource(scenarioLog()), sigs(t, "1-A-y", "9-Z-never"), opts)
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", table.Len())
	}
	if !slices.Equal(table.Rows[0].Values, []any{9, "N/A"}) {
		t.Errorf("unexpected values %v", table.Rows[0].Values)
	}
}

func TestMaterialize_RepeatedValue(t *testing.T) {
	log := []DecodedMessage{
		msg(0, "1", "A", map[string]any{"x": 5}),
		msg(1, "1", "A", map[string]any{"x": 5}),
		msg(2, "1", "A", map[string]any{"x": 6}),
	}
	cols := sigs(t, "1-A-x")

	table, err := Materialize(context.Background(), NewMemorySource(log), cols, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != 2 {
		t.Errorf("expected repeat to be dropped, got %d rows", table.Len())
	}

	opts := DefaultOptions()
	opts.KeepRepeats = true
	table, err = Materialize(context.Background(), NewMemorySource(log), cols, opts)
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != 3 {
		t.Errorf("expected every matching message with KeepRepeats, got %d rows", table.Len())
	}
}

func TestMaterialize_DuplicateColumns(t *testing.T) {
	table, err := Materialize(context.Background(), NewMemorySource(scenarioLog()), sigs(t, "1-A-x", "1-A-x"), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Columns) != 1 || len(table.Rows[0].Values) != 1 {
		t.Errorf("expected duplicate column to collapse, got %v", table.Columns)
	}
}

func TestMaterialize_AmbiguousAborts(t *testing.T) {
	log := []DecodedMessage{
		msg(0, "1", "A", map[string]any{"x": 5}),
		msg(1, "1", "A", map[string]any{"sensor_id": 1, "state_id": 2, "x": 7}),
	}
	table, err := Materialize(context.Background(), NewMemorySource(log), sigs(t, "1-A-x"), DefaultOptions())
	if !errors.Is(err, ErrAmbiguousDiscriminator) {
		t.Fatalf("expected ErrAmbiguousDiscriminator, got %v", err)
	}
	if table != nil {
		t.Error("expected no table on abort")
	}
	var merr *MessageError
	if !errors.As(err, &merr) || merr.Index != 1 {
		t.Errorf("expected MessageError at index 1, got %v", err)
	}
}

func TestMaterialize_SkipPolicy(t *testing.T) {
	log := []DecodedMessage{
		msg(0, "1", "A", map[string]any{"x": 5}),
		msg(1, "1", "A", map[string]any{"sensor_id": 1, "actuator": 2, "x": 7}),
		msg(2, "1", "A", map[string]any{"y": 1}),
	}
	var skipped []int
	opts := DefaultOptions()
	opts.OnMessageError = func(e *MessageError) error {
		skipped = append(skipped, e.Index)
		return nil
	}
	table, err := Materialize(context.Background(), NewMemorySource(log), sigs(t, "1-A-x", "1-A-y"), opts)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(skipped, []int{1}) {
		t.Errorf("expected message 1 skipped, got %v", skipped)
	}
	if table.Len() != 2 || !slices.Equal(table.Rows[1].Values, []any{5, 1}) {
		t.Errorf("skipped message must not change state, got %+v", table.Rows)
	}
}

func TestMaterialize_OutOfOrder(t *testing.T) {
	log := []DecodedMessage{
		msg(5, "1", "A", map[string]any{"x": 1}),
		msg(5, "1", "A", map[string]any{"x": 2}),
		msg(4, "1", "A", map[string]any{"x": 3}),
	}
	cols := sigs(t, "1-A-x")

	_, err := Materialize(context.Background(), NewMemorySource(log), cols, DefaultOptions())
	var oerr *OutOfOrderError
	if !errors.As(err, &oerr) {
		t.Fatalf("expected OutOfOrderError, got %v", err)
	}
	if oerr.Previous != 5 || oerr.Timestamp != 4 {
		t.Errorf("unexpected timestamps %+v", oerr)
	}

	opts := DefaultOptions()
	opts.AllowOutOfOrder = true
	table, err := Materialize(context.Background(), NewMemorySource(log), cols, opts)
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != 3 {
		t.Errorf("expected 3 rows, got %d", table.Len())
	}
}

func TestMaterialize_IgnoresOtherChannelsForOrder(t *testing.T) {
	log := []DecodedMessage{
		msg(5, "1", "A", map[string]any{"x": 1}),
		{Channel: "GPS/fix", Timestamp: 1},
		msg(6, "1", "A", map[string]any{"x": 2}),
	}
	if _, err := Materialize(context.Background(), NewMemorySource(log), sigs(t, "1-A-x"), DefaultOptions()); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

// shrinkingSource drops its last message after the first replay.
type shrinkingSource struct {
	msgs   []DecodedMessage
	passes int
}

func (s *shrinkingSource) Messages(ctx context.Context) iter.Seq2[DecodedMessage, error] {
	msgs := s.msgs
	if s.passes > 0 {
		msgs = msgs[:len(msgs)-1]
	}
	s.passes++
	return NewMemorySource(msgs).Messages(ctx)
}

func TestConvert_SourceExhaustedEarly(t *testing.T) {
	src := &shrinkingSource{msgs: scenarioLog()}
	_, _, err := Convert(context.Background(), src, nil, DefaultOptions())
	if !errors.Is(err, ErrSourceExhaustedEarly) {
		t.Fatalf("expected ErrSourceExhaustedEarly, got %v", err)
	}
	var serr *SourceExhaustedError
	if !errors.As(err, &serr) || serr.Expected != 2 || serr.Got != 1 {
		t.Errorf("unexpected details %v", err)
	}
}

func TestMaterialize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	table, err := Materialize(ctx, NewMemorySource(scenarioLog()), sigs(t, "1-A-x"), DefaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if table != nil {
		t.Error("expected no table after cancellation")
	}
}

func TestTable_ValueAndRecords(t *testing.T) {
	cols := sigs(t, "1-A-x", "1-A-y")
	table, err := Materialize(context.Background(), NewMemorySource(scenarioLog()), cols, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := table.Value(1, cols[1]); !ok || v != 9 {
		t.Errorf("expected 9, got %v (%v)", v, ok)
	}
	if _, ok := table.Value(5, cols[0]); ok {
		t.Error("expected out-of-range row to miss")
	}
	recs := table.Records()
	if recs[0]["timestamp"] != 0.0 || recs[0]["1-A-x"] != 5 || recs[0]["1-A-y"] != nil {
		t.Errorf("unexpected record %v", recs[0])
	}
	if table.Head(1).Len() != 1 {
		t.Error("expected Head(1) to keep one row")
	}
}

func TestBuffer(t *testing.T) {
	buf, err := Buffer(context.Background(), NewMemorySource(scenarioLog()))
	if err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 2 {
		t.Errorf("expected 2 buffered messages, got %d", buf.Len())
	}
}
