package telemetry

import (
	"context"
	"iter"
)

// ── Source ─────────────────────────────────────────────────
// A Source yields decoded messages in delivery order.
// Implementations live in internal/logfile; MemorySource covers tests
// and callers that already hold a decoded log.
//
// Each pass calls Messages once, and every call must replay the same
// messages from the beginning in the same order.

// Source is a replayable sequence of decoded messages.
// A non-nil error ends the sequence.
type Source interface {
	Messages(ctx context.Context) iter.Seq2[DecodedMessage, error]
}

// MemorySource replays a slice of messages.
type MemorySource struct {
	msgs []DecodedMessage
}

// NewMemorySource returns a source over msgs. The slice is not copied.
func NewMemorySource(msgs []DecodedMessage) *MemorySource {
	return &MemorySource{msgs: msgs}
}

// Len returns the number of buffered messages.
func (s *MemorySource) Len() int { return len(s.msgs) }

func (s *MemorySource) Messages(ctx context.Context) iter.Seq2[DecodedMessage, error] {
	return func(yield func(DecodedMessage, error) bool) {
		for _, m := range s.msgs {
			if err := ctx.Err(); err != nil {
				yield(DecodedMessage{}, err)
				return
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

// Buffer reads one full pass of src into memory.
func Buffer(ctx context.Context, src Source) (*MemorySource, error) {
	var msgs []DecodedMessage
	for m, err := range src.Messages(ctx) {
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return NewMemorySource(msgs), nil
}
