package logfile

import (
	"container/heap"
	"context"
	"iter"

	"canlog/internal/telemetry"
)

// Sequenced returns a source that repairs local reordering in src.
//
// Messages are held in a window of at most `window` entries and released
// smallest timestamp first (ties keep arrival order). Producers that run
// fewer than `window` messages behind each other come out sorted;
// anything later still comes out of order, and the materializer's
// timestamp check reports it. A window below 2 returns src unchanged.
func Sequenced(src telemetry.Source, window int) telemetry.Source {
	if window < 2 {
		return src
	}
	return &sequencedSource{src: src, window: window}
}

type sequencedSource struct {
	src    telemetry.Source
	window int
}

func (s *sequencedSource) Messages(ctx context.Context) iter.Seq2[telemetry.DecodedMessage, error] {
	return func(yield func(telemetry.DecodedMessage, error) bool) {
		h := &pending{}
		seq := 0
		for m, err := range s.src.Messages(ctx) {
			if err != nil {
				yield(telemetry.DecodedMessage{}, err)
				return
			}
			heap.Push(h, entry{msg: m, seq: seq})
			seq++
			if h.Len() < s.window {
				continue
			}
			if !yield(heap.Pop(h).(entry).msg, nil) {
				return
			}
		}
		for h.Len() > 0 {
			if !yield(heap.Pop(h).(entry).msg, nil) {
				return
			}
		}
	}
}

type entry struct {
	msg telemetry.DecodedMessage
	seq int
}

// pending is a min-heap on (timestamp, arrival).
type pending []entry

func (p pending) Len() int { return len(p) }
func (p pending) Less(i, j int) bool {
	if p[i].msg.Timestamp != p[j].msg.Timestamp {
		return p[i].msg.Timestamp < p[j].msg.Timestamp
	}
	return p[i].seq < p[j].seq
}
func (p pending) Swap(i, j int) { p[i], p[j] = p[j], p[i] }
func (p *pending) Push(x any)   { *p = append(*p, x.(entry)) }
func (p *pending) Pop() any {
	old := *p
	e := old[len(old)-1]
	*p = old[:len(old)-1]
	return e
}
