package projector

import (
	"time"

	"github.com/stratumhq/stratum/bus"
)

// Disposition is the outcome of one attempt at applying an event.
type Disposition int

const (
	// Applied means the handler's side effects and the dedup marker were
	// committed.
	Applied Disposition = iota

	// AlreadyProcessed means the consumer has a committed dedup marker for
	// the event, so the handler was not invoked (or its attempt lost a
	// race to a winner that committed).
	AlreadyProcessed

	// PoisonPill means the event can never be applied and must not be
	// redelivered.
	PoisonPill

	// TransientFailure means the attempt failed in a way that may succeed
	// on redelivery.
	TransientFailure
)

// String returns a human-readable name for the disposition.
func (d Disposition) String() string {
	switch d {
	case Applied:
		return "applied"
	case AlreadyProcessed:
		return "already-processed"
	case PoisonPill:
		return "poison-pill"
	default:
		return "transient-failure"
	}
}

// resolve applies the acknowledgment that corresponds to a disposition.
//
// It is a pure mapping: Applied and AlreadyProcessed acknowledge,
// PoisonPill terminates, and TransientFailure requests redelivery after
// the given delay.
func resolve(d *bus.Delivery, disp Disposition, delay time.Duration) {
	switch disp {
	case Applied, AlreadyProcessed:
		d.Ack()
	case PoisonPill:
		d.Term()
	default:
		d.NackDelay(delay)
	}
}
