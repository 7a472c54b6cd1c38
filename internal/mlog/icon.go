// Package mlog contains utilities for producing consistent log messages
// about the flow of events through the engine.
package mlog

const (
	// EventIDIcon is the icon shown directly before an event ID. It is an
	// "equals sign", indicating that this event "has exactly" the displayed
	// ID.
	EventIDIcon Icon = "="

	// CausationIDIcon is the icon shown directly before a causation ID. It
	// is the mathematical "because" symbol, indicating that this event
	// happened "because of" the displayed ID.
	CausationIDIcon Icon = "∵"

	// CorrelationIDIcon is the icon shown directly before a correlation ID.
	// It is the mathematical "member of set" symbol, indicating that this
	// event belongs to the set of events that came about because of the
	// displayed ID.
	CorrelationIDIcon Icon = "⋲"

	// TenantIDIcon is the icon shown directly before a tenant ID.
	TenantIDIcon Icon = "◈"

	// ConsumeIcon is the icon shown to indicate that an event is being
	// consumed. It is a downward pointing arrow, as such "inbound" events
	// could be considered as being "downloaded" from the bus.
	ConsumeIcon Icon = "▼"

	// ConsumeErrorIcon is a variant of ConsumeIcon used when there is an
	// error condition. It is a hollow version of the regular consume icon,
	// indicating that the requirement remains "unfulfilled".
	ConsumeErrorIcon Icon = "▽"

	// ProduceIcon is the icon shown to indicate that an event is being
	// produced. It is an upward pointing arrow, as such "outbound" events
	// could be considered as being "uploaded" to the bus.
	ProduceIcon Icon = "▲"

	// RetryIcon is an icon used instead of ConsumeIcon when delivery of an
	// event is being re-attempted. It is an open-circle with an arrow,
	// indicating that the event has "come around again".
	RetryIcon Icon = "↻"

	// AckIcon is the icon shown when an event has been applied and is
	// acknowledged.
	AckIcon Icon = "✓"

	// TerminateIcon is the icon shown when an event is terminated without
	// being handled successfully.
	TerminateIcon Icon = "✖"

	// ErrorIcon is the icon shown when logging information about an error.
	ErrorIcon Icon = "✗"

	// SkipIcon is the icon shown when an event is skipped because it has
	// already been processed.
	SkipIcon Icon = "⏭"

	// SeparatorIcon is an icon used to separate distinct blocks of text
	// within a single log message.
	SeparatorIcon Icon = "●"
)

// Icon is a unicode symbol used as an icon in log messages.
type Icon string

// String returns the icon as a string.
func (i Icon) String() string {
	return string(i)
}

// WithLabel returns the icon, with a text label.
func (i Icon) WithLabel(label string) IconWithLabel {
	return IconWithLabel{i, label}
}

// WithID returns the icon, with an ID as a label.
//
// The ID is shortened for display per FormatID().
func (i Icon) WithID(id string) IconWithLabel {
	return i.WithLabel(FormatID(id))
}

// IconWithLabel is an icon and its associated text label.
type IconWithLabel struct {
	Icon  Icon
	Label string
}

// String returns the icon and its label as a string.
func (i IconWithLabel) String() string {
	return i.Icon.String() + " " + i.Label
}
