package telemetry

import (
	"errors"
	"slices"
	"testing"
)

func collect(t *testing.T, d *Deriver, rec Record) []string {
	t.Helper()
	sigs, err := d.Derive(rec)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	var out []string
	for sig, field := range sigs {
		if sig.Field != field {
			t.Fatalf("signature field %q does not match yielded field %q", sig.Field, field)
		}
		out = append(out, sig.String())
	}
	return out
}

func TestDerive_PlainFields(t *testing.T) {
	d := NewDeriver(DefaultFields())
	got := collect(t, d, Record{BoardID: "1", MsgType: "A", Data: map[string]any{"time": 12.5, "y": 9, "x": 5}})
	want := []string{"1-A-x", "1-A-y"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDerive_DiscriminatorSeparatesChannels(t *testing.T) {
	d := NewDeriver(DefaultFields())
	a := collect(t, d, Record{BoardID: "1", MsgType: "A", Data: map[string]any{"sensor_id": 7, "v": 3}})
	b := collect(t, d, Record{BoardID: "1", MsgType: "A", Data: map[string]any{"sensor_id": 8, "v": 4}})

	if !slices.Equal(a, []string{"1-A-7-v"}) {
		t.Errorf("expected [1-A-7-v], got %v", a)
	}
	if !slices.Equal(b, []string{"1-A-8-v"}) {
		t.Errorf("expected [1-A-8-v], got %v", b)
	}
}

func TestDerive_StringDiscriminator(t *testing.T) {
	d := NewDeriver(DefaultFields())
	got := collect(t, d, Record{BoardID: "INJ", MsgType: "ACT", Data: map[string]any{"actuator": "VENT", "state": "OPEN"}})
	if !slices.Equal(got, []string{"INJ-ACT-VENT-state"}) {
		t.Errorf("unexpected signatures %v", got)
	}
}

func TestDerive_AmbiguousDiscriminator(t *testing.T) {
	d := NewDeriver(DefaultFields())
	_, err := d.Derive(Record{BoardID: "1", MsgType: "A", Data: map[string]any{"sensor_id": 1, "actuator": 2, "v": 0}})
	if !errors.Is(err, ErrAmbiguousDiscriminator) {
		t.Fatalf("expected ErrAmbiguousDiscriminator, got %v", err)
	}
	var amb *AmbiguousDiscriminatorError
	if !errors.As(err, &amb) {
		t.Fatalf("expected *AmbiguousDiscriminatorError, got %T", err)
	}
	if !slices.Equal(amb.Fields, []string{"sensor_id", "actuator"}) {
		t.Errorf("unexpected conflicting fields %v", amb.Fields)
	}
}

func TestDerive_MalformedRecord(t *testing.T) {
	d := NewDeriver(DefaultFields())
	cases := []Record{
		{MsgType: "A", Data: map[string]any{"x": 1}},
		{BoardID: "1", Data: map[string]any{"x": 1}},
		{BoardID: "1", MsgType: "A"},
	}
	for _, rec := range cases {
		if _, err := d.Derive(rec); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("record %+v: expected ErrMalformedRecord, got %v", rec, err)
		}
	}
}

func TestDerive_OnlyReservedFields(t *testing.T) {
	d := NewDeriver(DefaultFields())
	got := collect(t, d, Record{BoardID: "1", MsgType: "A", Data: map[string]any{"time": 1, "state_id": 4}})
	if len(got) != 0 {
		t.Errorf("expected no signatures, got %v", got)
	}
}

func TestDerive_StopsEarly(t *testing.T) {
	d := NewDeriver(DefaultFields())
	sigs, err := d.Derive(Record{BoardID: "1", MsgType: "A", Data: map[string]any{"a": 1, "b": 2, "c": 3}})
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for range sigs {
		n++
		break
	}
	if n != 1 {
		t.Errorf("expected to stop after one pair, got %d", n)
	}
}

func TestDerive_CustomFields(t *testing.T) {
	d := NewDeriver(Fields{Time: "ts", Discriminators: []string{"channel"}})
	got := collect(t, d, Record{BoardID: "2", MsgType: "TEMP", Data: map[string]any{"ts": 0, "time": 4, "channel": 3, "temp": 20.5}})
	want := []string{"2-TEMP-3-temp", "2-TEMP-3-time"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParseSignature(t *testing.T) {
	cases := []struct {
		in      string
		want    Signature
		wantErr bool
	}{
		{in: "1-A-x", want: Signature{Board: "1", MsgType: "A", Field: "x"}},
		{in: "1-A-7-v", want: Signature{Board: "1", MsgType: "A", Discriminator: "7", HasDiscriminator: true, Field: "v"}},
		{in: "1-A", wantErr: true},
		{in: "1-A--x", wantErr: true},
		{in: "1-A-b-c-d", wantErr: true},
		{in: `pump-2-A-x`, wantErr: true},
		{in: `pump\-2-A-x`, want: Signature{Board: "pump-2", MsgType: "A", Field: "x"}},
		{in: `1-A-7-in\\out`, want: Signature{Board: "1", MsgType: "A", Discriminator: "7", HasDiscriminator: true, Field: `in\out`}},
		{in: `1-A-x\`, wantErr: true},
		{in: `1-A-\x`, wantErr: true},
	}
	for _, c := range cases {
		got, err := ParseSignature(c.in)
		if c.wantErr {
			if !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("%q: expected ErrInvalidSignature, got %v", c.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("%q: expected %+v, got %+v", c.in, c.want, got)
		}
		if got.String() != c.in {
			t.Errorf("%q: rendered back as %q", c.in, got.String())
		}
	}
}

func TestSignature_NoCollisionAcrossDiscriminator(t *testing.T) {
	withDisc := Signature{Board: "1", MsgType: "A", Discriminator: "7", HasDiscriminator: true, Field: "v"}
	dashed := Signature{Board: "1", MsgType: "A", Field: "7-v"}
	if withDisc.String() == dashed.String() {
		t.Fatalf("distinct signatures render to the same name %q", withDisc.String())
	}
	if got := dashed.String(); got != `1-A-7\-v` {
		t.Errorf("expected escaped dash, got %q", got)
	}
	for _, sig := range []Signature{withDisc, dashed} {
		back, err := ParseSignature(sig.String())
		if err != nil {
			t.Fatalf("%q: %v", sig.String(), err)
		}
		if back != sig {
			t.Errorf("%q: expected %+v, got %+v", sig.String(), sig, back)
		}
	}
}
