package telemetry

// ── Messages ───────────────────────────────────────────────
// Common intermediate format between the log decoders and the
// reconstruction passes. Decoders emit DecodedMessages, the passes
// consume them and never retain them past the current iteration.

// DecodedMessage is one [channel, timestamp, payload] triple from a log.
type DecodedMessage struct {
	Channel   string  `json:"channel"`
	Timestamp float64 `json:"timestamp"`
	Payload   Record  `json:"payload"`
}

// Record is the structured payload of a board message.
// BoardID and MsgType are normalized to strings by the decoder.
type Record struct {
	BoardID string         `json:"board_id"`
	MsgType string         `json:"msg_type"`
	Data    map[string]any `json:"data"`
}

// valid reports whether the record carries everything signature
// derivation needs.
func (r Record) valid() bool {
	return r.BoardID != "" && r.MsgType != "" && r.Data != nil
}

// AsFloat converts any Go numeric type to float64. Decoders hand back
// whichever integer width the wire used.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ── Table ──────────────────────────────────────────────────

// TimestampColumn is the name of the leading column of every table.
const TimestampColumn = "timestamp"

// Row is one snapshot of the reconstruction state.
// Values[i] belongs to the table's Columns[i].
type Row struct {
	Timestamp float64 `json:"timestamp"`
	Values    []any   `json:"values"`
}

// Table is the output of a materialization pass. Rows are append-only
// and never mutated once emitted.
type Table struct {
	Columns []Signature `json:"columns"`
	Rows    []Row       `json:"rows"`

	index map[Signature]int
}

func newTable(columns []Signature) *Table {
	t := &Table{index: make(map[Signature]int, len(columns))}
	for _, c := range columns {
		if _, dup := t.index[c]; dup {
			continue
		}
		t.index[c] = len(t.Columns)
		t.Columns = append(t.Columns, c)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Header returns the column names in output order, timestamp first.
func (t *Table) Header() []string {
	h := make([]string, 0, len(t.Columns)+1)
	h = append(h, TimestampColumn)
	for _, c := range t.Columns {
		h = append(h, c.String())
	}
	return h
}

// ColumnIndex returns the position of sig in Columns.
func (t *Table) ColumnIndex(sig Signature) (int, bool) {
	if t.index == nil {
		for i, c := range t.Columns {
			if c == sig {
				return i, true
			}
		}
		return 0, false
	}
	i, ok := t.index[sig]
	return i, ok
}

// Value returns the value of column sig in row i.
func (t *Table) Value(i int, sig Signature) (any, bool) {
	col, ok := t.ColumnIndex(sig)
	if !ok || i < 0 || i >= len(t.Rows) {
		return nil, false
	}
	return t.Rows[i].Values[col], true
}

// Records returns every row keyed by column name, for document sinks
// and JSON previews.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.Rows))
	for i, r := range t.Rows {
		m := make(map[string]any, len(t.Columns)+1)
		m[TimestampColumn] = r.Timestamp
		for j, c := range t.Columns {
			m[c.String()] = r.Values[j]
		}
		out[i] = m
	}
	return out
}

// Head returns a table holding at most n leading rows of t.
func (t *Table) Head(n int) *Table {
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n], index: t.index}
}
