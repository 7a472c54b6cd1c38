package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/stratumhq/stratum/cursor"
)

// DefaultAckWait is the default duration a delivery may remain outstanding
// before it is assumed to have failed and is redelivered.
const DefaultAckWait = 30 * time.Second

// ConsumerConfig is the configuration of a named durable consumer.
type ConsumerConfig struct {
	// Name uniquely identifies the consumer. It is the identity under which
	// dedup markers are recorded.
	Name string

	// Subject is the subject pattern the consumer receives events from.
	// Patterns support the "*" and ">" wildcards, see MatchSubject().
	Subject string

	// MaxDeliver is the maximum number of times a single event is delivered
	// before it is dead-lettered as exhausted. Zero means no limit.
	MaxDeliver uint

	// AckWait is the duration a delivery may remain outstanding before it
	// is assumed to have failed and is redelivered. If it is zero,
	// DefaultAckWait is used.
	AckWait time.Duration

	// Policy controls where the consumer starts in the event history. The
	// zero-value delivers new events only.
	Policy Policy
}

// Validate returns an error if the configuration is malformed.
func (c ConsumerConfig) Validate() error {
	if c.Name == "" {
		return errors.New("consumer name must not be empty")
	}

	if !validPattern(c.Subject) {
		return fmt.Errorf("consumer %s has a malformed subject pattern: %#v", c.Name, c.Subject)
	}

	if c.AckWait < 0 {
		return fmt.Errorf("consumer %s has a negative ack-wait", c.Name)
	}

	return nil
}

// Policy controls where a consumer starts in the event history.
//
// The zero-value is equivalent to DeliverNew().
type Policy struct {
	kind policyKind
	from cursor.Cursor
}

type policyKind int

const (
	policyNew policyKind = iota
	policyAll
	policyFrom
)

// DeliverNew returns a policy under which the consumer receives only events
// published after it subscribes.
func DeliverNew() Policy {
	return Policy{kind: policyNew}
}

// DeliverAll returns a policy under which the consumer first replays the
// entire event history.
func DeliverAll() Policy {
	return Policy{kind: policyAll}
}

// DeliverFrom returns a policy under which the consumer first replays
// history starting after the position tracked by c.
func DeliverFrom(c cursor.Cursor) Policy {
	return Policy{
		kind: policyFrom,
		from: c,
	}
}

// replayFrom returns the global sequence at which replay begins, or false
// if the policy does not replay history.
func (p Policy) replayFrom() (uint64, bool) {
	switch p.kind {
	case policyAll:
		return 1, true
	case policyFrom:
		return p.from.Next(), true
	default:
		return 0, false
	}
}
