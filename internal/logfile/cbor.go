package logfile

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"canlog/internal/telemetry"
)

// ── CBOR ───────────────────────────────────────────────────
// CBOR sequence (RFC 8742): one array item per message.

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	// Core Deterministic Encoding: sorted map keys, smallest integers.
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("logfile: CBOR encoder initialization failed: " + err.Error())
	}
	// Payload maps land in any-typed slots; map[string]any keeps them
	// usable as record data instead of map[interface{}]interface{}.
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("logfile: CBOR decoder initialization failed: " + err.Error())
	}

	RegisterFormat(cborFormat{})
}

type cborFormat struct{}

func (cborFormat) Spec() FormatSpec {
	return FormatSpec{
		Name:       "cbor",
		Label:      "CBOR sequence",
		Extensions: []string{".cbor", ".cbors"},
	}
}

func (cborFormat) NewDecoder(r io.Reader) Decoder {
	return &cborDecoder{dec: cborDec.NewDecoder(r)}
}

func (cborFormat) NewEncoder(w io.Writer) Encoder {
	return &cborEncoder{enc: cborEnc.NewEncoder(w)}
}

type cborDecoder struct {
	dec *cbor.Decoder
}

func (d *cborDecoder) Decode() (telemetry.DecodedMessage, error) {
	var v []any
	if err := d.dec.Decode(&v); err != nil {
		return telemetry.DecodedMessage{}, err
	}
	return triple(v)
}

type cborEncoder struct {
	enc *cbor.Encoder
}

func (e *cborEncoder) Encode(m telemetry.DecodedMessage) error {
	return e.enc.Encode([]any{m.Channel, m.Timestamp, payload(m.Payload)})
}
