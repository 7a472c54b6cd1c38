package bus

import "github.com/stratumhq/stratum/envelope"

// Reason explains why an event was dead-lettered.
type Reason string

const (
	// ReasonTerminated means a consumer explicitly marked the event as
	// permanently unprocessable via Term().
	ReasonTerminated Reason = "terminated"

	// ReasonExhausted means the event reached the consumer's MaxDeliver
	// limit without being acknowledged.
	ReasonExhausted Reason = "exhausted"
)

// DeadLetter describes an event that will never be delivered to a consumer
// again.
type DeadLetter struct {
	// Consumer is the name of the consumer the event was being delivered
	// to.
	Consumer string

	// Subject is the subject the event was published on.
	Subject string

	// Envelope is the event itself.
	Envelope *envelope.Envelope

	// Attempts is the number of delivery attempts that were made.
	Attempts uint

	// Reason explains why the event was dead-lettered.
	Reason Reason
}
