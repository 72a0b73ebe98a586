package logfile

import (
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"canlog/internal/telemetry"
)

// ── MessagePack ────────────────────────────────────────────
// Ground-station logs: consecutive MessagePack arrays, no framing.

type msgpackFormat struct{}

func init() { RegisterFormat(msgpackFormat{}) }

func (msgpackFormat) Spec() FormatSpec {
	return FormatSpec{
		Name:       "msgpack",
		Label:      "MessagePack stream",
		Extensions: []string{".log", ".msgpack", ".mpk"},
	}
}

func (msgpackFormat) NewDecoder(r io.Reader) Decoder {
	dec := msgpack.NewDecoder(r)
	// Integers decode as int64/uint64 and floats as float64 regardless of
	// their wire width, so equal values compare equal across messages.
	dec.UseLooseInterfaceDecoding(true)
	return &msgpackDecoder{dec: dec}
}

func (msgpackFormat) NewEncoder(w io.Writer) Encoder {
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	return &msgpackEncoder{enc: enc}
}

type msgpackDecoder struct {
	dec *msgpack.Decoder
}

func (d *msgpackDecoder) Decode() (telemetry.DecodedMessage, error) {
	v, err := d.dec.DecodeSlice()
	if err != nil {
		return telemetry.DecodedMessage{}, err
	}
	return triple(v)
}

type msgpackEncoder struct {
	enc *msgpack.Encoder
}

func (e *msgpackEncoder) Encode(m telemetry.DecodedMessage) error {
	return e.enc.Encode([]any{m.Channel, m.Timestamp, payload(m.Payload)})
}
