package telemetry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAmbiguousDiscriminator marks a record carrying more than one
	// reserved discriminator field.
	ErrAmbiguousDiscriminator = errors.New("ambiguous discriminator")

	// ErrSourceExhaustedEarly marks a replay that delivered fewer messages
	// than an earlier pass over the same source.
	ErrSourceExhaustedEarly = errors.New("source exhausted early")

	// ErrOutOfOrder marks a message whose timestamp is lower than the
	// previous relevant message's.
	ErrOutOfOrder = errors.New("message out of order")

	// ErrMalformedRecord marks a relevant message without a board id,
	// message type or data map.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrInvalidSignature is returned by ParseSignature.
	ErrInvalidSignature = errors.New("invalid signature")
)

// AmbiguousDiscriminatorError names the conflicting reserved fields.
type AmbiguousDiscriminatorError struct {
	Board   string
	MsgType string
	Fields  []string
}

func (e *AmbiguousDiscriminatorError) Error() string {
	return fmt.Sprintf("board %s msg %s: %s: fields %s",
		e.Board, e.MsgType, ErrAmbiguousDiscriminator, strings.Join(e.Fields, ", "))
}

func (e *AmbiguousDiscriminatorError) Is(target error) bool {
	return target == ErrAmbiguousDiscriminator
}

// MalformedRecordError describes a relevant message that cannot be derived.
type MalformedRecordError struct {
	Board   string
	MsgType string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s: board %q msg %q", ErrMalformedRecord, e.Board, e.MsgType)
}

func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// SourceExhaustedError reports how short a replay fell.
type SourceExhaustedError struct {
	Expected int
	Got      int
}

func (e *SourceExhaustedError) Error() string {
	return fmt.Sprintf("%s: expected %d relevant messages, got %d",
		ErrSourceExhaustedEarly, e.Expected, e.Got)
}

func (e *SourceExhaustedError) Is(target error) bool {
	return target == ErrSourceExhaustedEarly
}

// OutOfOrderError carries the offending timestamps.
type OutOfOrderError struct {
	Previous  float64
	Timestamp float64
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("%s: timestamp %v after %v", ErrOutOfOrder, e.Timestamp, e.Previous)
}

func (e *OutOfOrderError) Is(target error) bool {
	return target == ErrOutOfOrder
}

// MessageError locates a failure at one message of a pass.
// Index counts every message delivered by the source, starting at 0.
type MessageError struct {
	Index     int
	Channel   string
	Timestamp float64
	Err       error
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("message %d (%s @ %v): %v", e.Index, e.Channel, e.Timestamp, e.Err)
}

func (e *MessageError) Unwrap() error { return e.Err }
