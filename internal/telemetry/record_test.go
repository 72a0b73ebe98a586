package telemetry

import "testing"

func TestAsFloat(t *testing.T) {
	for _, v := range []any{int8(3), int16(3), int32(3), int64(3), 3, uint(3), uint8(3), uint16(3), uint32(3), uint64(3), float32(3), 3.0} {
		f, ok := AsFloat(v)
		if !ok || f != 3 {
			t.Errorf("%T: expected 3, got %v (%v)", v, f, ok)
		}
	}
	for _, v := range []any{"3", true, nil, []any{3}} {
		if _, ok := AsFloat(v); ok {
			t.Errorf("%T: expected no conversion", v)
		}
	}
}
