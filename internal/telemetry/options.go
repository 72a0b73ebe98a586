package telemetry

import "strings"

// DefaultChannelPrefix marks the CAN sub-stream of a ground-station log.
const DefaultChannelPrefix = "CAN/Parsley"

// Options configures a discovery or materialization pass.
type Options struct {
	// ChannelPrefix selects the relevant messages; others are skipped.
	ChannelPrefix string

	// Fields are the reserved data keys. The zero value means DefaultFields.
	Fields Fields

	// Placeholder fills columns that have not been observed yet.
	Placeholder any

	// AllowOutOfOrder disables the non-decreasing timestamp check.
	AllowOutOfOrder bool

	// KeepRepeats emits a row for every matching message, even when the
	// message only rewrites values the state already holds.
	KeepRepeats bool

	// ExpectedMessages is the relevant message count of an earlier pass
	// over the same source. Zero disables the check.
	ExpectedMessages int

	// OnMessageError decides what happens to a message that cannot be
	// processed. Returning nil skips the message; returning an error
	// aborts the pass with it. A nil hook aborts with the MessageError.
	OnMessageError func(*MessageError) error
}

// DefaultOptions returns the options matching Parsley CAN logs.
func DefaultOptions() Options {
	return Options{
		ChannelPrefix: DefaultChannelPrefix,
		Fields:        DefaultFields(),
	}
}

func (o Options) fields() Fields {
	if o.Fields.Time == "" && o.Fields.Discriminators == nil {
		return DefaultFields()
	}
	return o.Fields
}

func (o Options) relevant(m DecodedMessage) bool {
	return strings.HasPrefix(m.Channel, o.ChannelPrefix)
}

// fail routes a per-message failure through the caller's policy.
// A nil return means the message is skipped.
func (o Options) fail(index int, m DecodedMessage, err error) error {
	merr := &MessageError{Index: index, Channel: m.Channel, Timestamp: m.Timestamp, Err: err}
	if o.OnMessageError == nil {
		return merr
	}
	return o.OnMessageError(merr)
}
