package telemetry

import (
	"fmt"
	"iter"
	"slices"
	"strings"
)

// ── Signature ──────────────────────────────────────────────

// Signature identifies one logical signal: a data field of a message type
// sent by a board, optionally qualified by a discriminator value.
//
// Two signatures are the same signal exactly when the structs are equal,
// so Signature is used directly as a map key. The rendered String form is
// the column name in every output.
type Signature struct {
	Board            string `json:"board"`
	MsgType          string `json:"msgType"`
	Discriminator    string `json:"discriminator,omitempty"`
	HasDiscriminator bool   `json:"hasDiscriminator,omitempty"`
	Field            string `json:"field"`
}

// String renders board-msgtype[-discriminator]-field. A '-' or '\'
// inside a component is escaped with '\', so distinct signatures always
// render to distinct names: field "7-v" gives 1-A-7\-v, not 1-A-7-v.
func (s Signature) String() string {
	if s.HasDiscriminator {
		return escapePart(s.Board) + "-" + escapePart(s.MsgType) + "-" +
			escapePart(s.Discriminator) + "-" + escapePart(s.Field)
	}
	return escapePart(s.Board) + "-" + escapePart(s.MsgType) + "-" + escapePart(s.Field)
}

// ParseSignature parses the rendered form of a signature.
// Three parts mean no discriminator, four parts carry one.
func ParseSignature(s string) (Signature, error) {
	parts, ok := splitParts(s)
	if !ok {
		return Signature{}, fmt.Errorf("%w: %q", ErrInvalidSignature, s)
	}
	for _, p := range parts {
		if p == "" {
			return Signature{}, fmt.Errorf("%w: %q", ErrInvalidSignature, s)
		}
	}
	switch len(parts) {
	case 3:
		return Signature{Board: parts[0], MsgType: parts[1], Field: parts[2]}, nil
	case 4:
		return Signature{
			Board:            parts[0],
			MsgType:          parts[1],
			Discriminator:    parts[2],
			HasDiscriminator: true,
			Field:            parts[3],
		}, nil
	default:
		return Signature{}, fmt.Errorf("%w: %q", ErrInvalidSignature, s)
	}
}

func escapePart(p string) string {
	if !strings.ContainsAny(p, `-\`) {
		return p
	}
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		if p[i] == '-' || p[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(p[i])
	}
	return b.String()
}

// splitParts splits on unescaped '-' and removes the escapes. It reports
// false for a dangling or unknown escape.
func splitParts(s string) ([]string, bool) {
	var (
		parts []string
		cur   strings.Builder
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			i++
			if i == len(s) || (s[i] != '-' && s[i] != '\\') {
				return nil, false
			}
			cur.WriteByte(s[i])
		case '-':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(parts, cur.String()), true
}

// ── Reserved fields ────────────────────────────────────────

// Fields names the reserved keys of a record's data map.
type Fields struct {
	// Time is the per-message board clock; never a column.
	Time string `json:"time" yaml:"time_field"`
	// Discriminators are the keys that tell apart several instances
	// sharing one message type. At most one may be present per message.
	Discriminators []string `json:"discriminators" yaml:"discriminators"`
}

// DefaultFields returns the reserved keys used by Parsley CAN logs.
func DefaultFields() Fields {
	return Fields{
		Time:           "time",
		Discriminators: []string{"sensor_id", "state_id", "actuator"},
	}
}

func (f Fields) reserved(name string) bool {
	return name == f.Time || slices.Contains(f.Discriminators, name)
}

// ── Deriver ────────────────────────────────────────────────

type discriminatorKind int

const (
	discriminatorNone discriminatorKind = iota
	discriminatorOne
	discriminatorAmbiguous
)

// discriminator is the result of classifying a data map.
type discriminator struct {
	kind   discriminatorKind
	field  string
	value  string
	fields []string // every reserved key found, set when ambiguous
}

// Deriver maps records to the signatures they update.
type Deriver struct {
	fields Fields
}

// NewDeriver returns a Deriver for the given reserved keys.
func NewDeriver(fields Fields) *Deriver {
	return &Deriver{fields: fields}
}

func (d *Deriver) classify(data map[string]any) discriminator {
	var found []string
	for _, name := range d.fields.Discriminators {
		if _, ok := data[name]; ok {
			found = append(found, name)
		}
	}
	switch len(found) {
	case 0:
		return discriminator{kind: discriminatorNone}
	case 1:
		return discriminator{
			kind:  discriminatorOne,
			field: found[0],
			value: fmt.Sprint(data[found[0]]),
		}
	default:
		return discriminator{kind: discriminatorAmbiguous, fields: found}
	}
}

// Derive returns the (signature, field name) pairs carried by rec.
// The sequence is lazy and visits fields in sorted order, so the same
// record shape always yields the same pairs in the same order.
func (d *Deriver) Derive(rec Record) (iter.Seq2[Signature, string], error) {
	if !rec.valid() {
		return nil, &MalformedRecordError{Board: rec.BoardID, MsgType: rec.MsgType}
	}
	disc := d.classify(rec.Data)
	if disc.kind == discriminatorAmbiguous {
		return nil, &AmbiguousDiscriminatorError{
			Board:   rec.BoardID,
			MsgType: rec.MsgType,
			Fields:  disc.fields,
		}
	}

	names := make([]string, 0, len(rec.Data))
	for name := range rec.Data {
		if !d.fields.reserved(name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	base := Signature{Board: rec.BoardID, MsgType: rec.MsgType}
	if disc.kind == discriminatorOne {
		base.Discriminator = disc.value
		base.HasDiscriminator = true
	}

	return func(yield func(Signature, string) bool) {
		for _, name := range names {
			sig := base
			sig.Field = name
			if !yield(sig, name) {
				return
			}
		}
	}, nil
}
