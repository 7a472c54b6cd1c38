package envelope

import (
	"errors"
	"fmt"
	"time"

	"github.com/stratumhq/stratum/tenantctx"
)

// Wire-stable metadata keys.
//
// These keys are shared by every transport and persistence implementation.
// They must never be renamed.
const (
	// TenantIDKey is the metadata key that carries the tenant ID.
	TenantIDKey = "tenant_id"

	// UserIDKey is the metadata key that carries the acting user's ID, if
	// known.
	UserIDKey = "user_id"

	// CorrelationIDKey is the metadata key that carries the correlation ID.
	CorrelationIDKey = "correlation_id"

	// CausationIDKey is the metadata key that carries the ID of the event
	// that directly caused this one.
	CausationIDKey = "causation_id"

	// EventIDKey is the metadata key that carries the event ID.
	EventIDKey = "event_id"

	// EventTypeKey is the metadata key that carries the event type.
	EventTypeKey = "event_type"

	// TimestampKey is the metadata key that carries the creation time in
	// RFC 3339 format.
	TimestampKey = "timestamp"
)

// An Envelope is the wire representation of a single event and its
// meta-data.
//
// It is produced by a Packer, owned exclusively by the bus until delivered,
// and then by the consumer until acknowledged.
type Envelope struct {
	// EventID uniquely identifies the event, globally. It is the basis of
	// all deduplication and idempotency keys.
	EventID string

	// EventType is the portable name of the event's type.
	EventType string

	// TenantID is the tenant that owns the event.
	TenantID string

	// CreatedAt is the time at which the event was produced, in UTC.
	CreatedAt time.Time

	// Payload is the serialized event body. The engine treats it as opaque.
	Payload []byte

	// Metadata carries the propagated operation context (correlation ID,
	// causation ID, acting user) and any application-supplied entries.
	Metadata map[string]string
}

// CorrelationID returns the correlation ID carried by the envelope.
func (e *Envelope) CorrelationID() string {
	return e.Metadata[CorrelationIDKey]
}

// CausationID returns the ID of the event that caused this one.
func (e *Envelope) CausationID() string {
	return e.Metadata[CausationIDKey]
}

// UserID returns the acting user's ID, or an empty string if it is unknown.
func (e *Envelope) UserID() string {
	return e.Metadata[UserIDKey]
}

// Scope returns the operation scope to be established before a consumer
// handles the event.
func (e *Envelope) Scope() tenantctx.Scope {
	return tenantctx.Scope{
		TenantID:      e.TenantID,
		UserID:        e.UserID(),
		CorrelationID: e.CorrelationID(),
	}
}

// Validate returns an error if the envelope is missing any of the fields
// required to deliver and deduplicate it.
func (e *Envelope) Validate() error {
	if e.EventID == "" {
		return errors.New("envelope has an empty event ID")
	}

	if e.EventType == "" {
		return fmt.Errorf("envelope '%s' has an empty event type", e.EventID)
	}

	if e.TenantID == "" {
		return fmt.Errorf("envelope '%s' has an empty tenant ID", e.EventID)
	}

	if e.CreatedAt.IsZero() {
		return fmt.Errorf("envelope '%s' has no creation time", e.EventID)
	}

	return nil
}
