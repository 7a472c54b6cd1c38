package persistence

import (
	"context"
	"fmt"

	"github.com/stratumhq/stratum/envelope"
)

// NoStream is the expected version passed to AppendEvents() when the caller
// expects the aggregate's stream not to exist yet.
const NoStream int64 = -1

// An Event is a single persisted fact in an aggregate's stream.
type Event struct {
	// GlobalSequence is the event's position in the store-wide sequence.
	//
	// It is assigned at append time and increases monotonically across all
	// tenants and aggregates. It is used only for catch-up ordering, never
	// for business logic.
	GlobalSequence uint64

	// StreamID identifies the aggregate's stream. It is derived
	// deterministically from the aggregate type and ID.
	StreamID string

	// AggregateID and AggregateType identify the aggregate that produced
	// the event.
	AggregateID   string
	AggregateType string

	// SequenceNumber is the event's 0-based position within the aggregate's
	// own stream. Sequence numbers are contiguous; there are no gaps.
	SequenceNumber uint64

	// Envelope contains the event body and its propagated meta-data,
	// including the owning tenant.
	Envelope *envelope.Envelope
}

// ID returns the ID of the event.
func (e *Event) ID() string {
	return e.Envelope.EventID
}

// TenantID returns the tenant that owns the event.
func (e *Event) TenantID() string {
	return e.Envelope.TenantID
}

// StreamID derives the stream ID for an aggregate.
func StreamID(aggregateType, aggregateID string) string {
	return aggregateType + ":" + aggregateID
}

// An AppendRequest is an atomic batch of events to be appended to a single
// aggregate's stream.
type AppendRequest struct {
	// TenantID is the tenant that owns the aggregate.
	TenantID string

	// AggregateID and AggregateType identify the aggregate.
	AggregateID   string
	AggregateType string

	// Expected is the aggregate's current highest sequence number as
	// observed by the caller, or NoStream if the caller expects the stream
	// not to exist yet.
	//
	// The appended events are assigned contiguous sequence numbers starting
	// at Expected+1. If another writer has appended in the meantime the
	// store reports a ConflictError and nothing is persisted.
	Expected int64

	// Envelopes contains the events to append, in order.
	Envelopes []*envelope.Envelope
}

// Validate returns a BatchError if the request is malformed.
//
// A malformed request is a programmer error; it is never retryable.
func (r AppendRequest) Validate() error {
	if r.TenantID == "" {
		return BatchError{"append request has an empty tenant ID"}
	}

	if r.AggregateID == "" {
		return BatchError{"append request has an empty aggregate ID"}
	}

	if r.AggregateType == "" {
		return BatchError{"append request has an empty aggregate type"}
	}

	if r.Expected < NoStream {
		return BatchError{
			fmt.Sprintf("append request has an invalid expected version (%d)", r.Expected),
		}
	}

	if len(r.Envelopes) == 0 {
		return BatchError{"append request contains no events"}
	}

	seen := map[string]struct{}{}

	for _, env := range r.Envelopes {
		if err := env.Validate(); err != nil {
			return BatchError{err.Error()}
		}

		if env.TenantID != r.TenantID {
			return BatchError{
				fmt.Sprintf(
					"append request for tenant '%s' contains an event owned by tenant '%s'",
					r.TenantID,
					env.TenantID,
				),
			}
		}

		if _, ok := seen[env.EventID]; ok {
			return BatchError{
				fmt.Sprintf("append request contains event '%s' more than once", env.EventID),
			}
		}
		seen[env.EventID] = struct{}{}
	}

	return nil
}

// EventRepository is an interface for appending and reading events.
type EventRepository interface {
	// AppendEvents atomically appends a batch of events to one aggregate's
	// stream.
	//
	// It validates that the aggregate's current highest sequence number
	// equals r.Expected, then assigns contiguous sequence numbers starting
	// at r.Expected+1 and monotonically increasing global sequences.
	//
	// It returns the global sequences assigned to the events, in order.
	//
	// It returns a ConflictError if another writer has appended since the
	// caller observed r.Expected. This is the only retryable failure; the
	// caller must reload the aggregate and try again.
	AppendEvents(ctx context.Context, r AppendRequest) ([]uint64, error)

	// ReadStream returns the events of a single aggregate in ascending
	// sequence-number order, starting at fromSeq inclusive.
	//
	// The result is empty if the aggregate does not exist.
	ReadStream(ctx context.Context, tenantID, aggregateID string, fromSeq uint64) (EventResult, error)

	// ReadFromGlobal returns up to limit events belonging to one tenant, in
	// ascending global-sequence order, starting at fromGlobal inclusive.
	//
	// It is used by catch-up readers and projection rebuilds.
	ReadFromGlobal(ctx context.Context, tenantID string, fromGlobal uint64, limit int) ([]Event, error)

	// ReadGlobal returns up to limit events across all tenants, in
	// ascending global-sequence order, starting at fromGlobal inclusive.
	//
	// It is engine plumbing for replaying history onto the message bus; it
	// is not part of the tenant-scoped read API.
	ReadGlobal(ctx context.Context, fromGlobal uint64, limit int) ([]Event, error)

	// CurrentVersion returns the aggregate's highest sequence number, or
	// NoStream if the aggregate does not exist.
	CurrentVersion(ctx context.Context, tenantID, aggregateID string) (int64, error)

	// MaxGlobalSequence returns the highest global sequence assigned to any
	// of the tenant's events, or zero if the tenant has none.
	MaxGlobalSequence(ctx context.Context, tenantID string) (uint64, error)
}

// EventResult is the result of a call to ReadStream().
//
// EventResult values are not safe for concurrent use.
type EventResult interface {
	// Next returns the next event in the result.
	//
	// It returns false if there are no more events in the result.
	Next(ctx context.Context) (Event, bool, error)

	// Close closes the cursor.
	Close() error
}
