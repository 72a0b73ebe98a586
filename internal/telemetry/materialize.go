package telemetry

import (
	"context"
	"reflect"
	"slices"
)

// Materialize replays src and builds a forward-filled table over columns.
//
// Every relevant message that changes at least one tracked value emits a
// row holding a copy of the whole state, so untouched columns carry their
// last known value and unseen columns hold opts.Placeholder. Columns the
// log never produces stay at the placeholder.
//
// A message that matches tracked columns but only rewrites values the
// state already holds emits nothing. Set opts.KeepRepeats to get one row
// per matching message instead, as the Parsley logging tools did.
//
// On error the table is discarded; callers never see a partial table.
func Materialize(ctx context.Context, src Source, columns []Signature, opts Options) (*Table, error) {
	table := newTable(columns)
	state := make([]any, len(table.Columns))
	for i := range state {
		state[i] = opts.Placeholder
	}

	deriver := NewDeriver(opts.fields())
	var (
		index    int
		relevant int
		last     float64
		started  bool
	)

	for msg, err := range src.Messages(ctx) {
		if err != nil {
			return nil, err
		}
		i := index
		index++
		if !opts.relevant(msg) {
			continue
		}
		relevant++

		if !opts.AllowOutOfOrder {
			if started && msg.Timestamp < last {
				oerr := &OutOfOrderError{Previous: last, Timestamp: msg.Timestamp}
				if err := opts.fail(i, msg, oerr); err != nil {
					return nil, err
				}
				continue
			}
			last, started = msg.Timestamp, true
		}

		// Derivation fails before any state is touched, so a skipped
		// message leaves the state exactly as it was.
		sigs, err := deriver.Derive(msg.Payload)
		if err != nil {
			if err := opts.fail(i, msg, err); err != nil {
				return nil, err
			}
			continue
		}

		matched, changed := false, false
		for sig, field := range sigs {
			col, ok := table.index[sig]
			if !ok {
				continue
			}
			v := msg.Payload.Data[field]
			matched = true
			if !reflect.DeepEqual(state[col], v) {
				changed = true
			}
			state[col] = v
		}
		if !matched || (!changed && !opts.KeepRepeats) {
			continue
		}
		table.Rows = append(table.Rows, Row{Timestamp: msg.Timestamp, Values: slices.Clone(state)})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.ExpectedMessages > 0 && relevant < opts.ExpectedMessages {
		return nil, &SourceExhaustedError{Expected: opts.ExpectedMessages, Got: relevant}
	}
	return table, nil
}
