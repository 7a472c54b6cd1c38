package envelope

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stratumhq/stratum/tenantctx"
)

// Packer puts events into envelopes.
//
// It captures the ambient tenant/user/correlation scope of the producing
// operation and writes it into the envelope metadata, so that the same
// scope can be re-established wherever the event is consumed.
type Packer struct {
	// GenerateID is a function used to generate new event IDs. If it is
	// nil, a UUID is generated.
	GenerateID func() string

	// Now is a function used to get the current time. If it is nil,
	// time.Now() is used.
	Now func() time.Time
}

// Pack returns an envelope containing the given event.
//
// The tenant is taken from the ambient scope of ctx. It panics if no scope
// has been established; producing an event without a tenant is always a
// programming error.
func (p *Packer) Pack(ctx context.Context, eventType string, payload []byte) *Envelope {
	s, ok := tenantctx.FromContext(ctx)
	if !ok {
		panic(fmt.Sprintf(
			"can not pack '%s' event: no tenant scope in context",
			eventType,
		))
	}

	env := p.new(s, eventType, payload)

	if s.CorrelationID != "" {
		env.Metadata[CorrelationIDKey] = s.CorrelationID
	}

	return env
}

// PackChild returns an envelope containing the given event, configured as a
// direct consequence of handling the event in c.
//
// The child inherits c's correlation ID and records c as its cause. The
// tenant is taken from c, not from ctx; a handler can only ever produce
// events for the tenant that owns the event it is handling.
func (p *Packer) PackChild(c *Envelope, eventType string, payload []byte) *Envelope {
	env := p.new(c.Scope(), eventType, payload)

	env.Metadata[CausationIDKey] = c.EventID
	env.Metadata[CorrelationIDKey] = c.CorrelationID()
	if env.Metadata[CorrelationIDKey] == "" {
		env.Metadata[CorrelationIDKey] = c.EventID
	}

	return env
}

// new returns an envelope containing the given event, scoped to s.
func (p *Packer) new(s tenantctx.Scope, eventType string, payload []byte) *Envelope {
	if eventType == "" {
		panic("can not pack an event with an empty type")
	}

	id := p.generateID()

	env := &Envelope{
		EventID:   id,
		EventType: eventType,
		TenantID:  s.TenantID,
		CreatedAt: p.now(),
		Payload:   payload,
		Metadata: map[string]string{
			CorrelationIDKey: id,
			CausationIDKey:   id,
		},
	}

	if s.UserID != "" {
		env.Metadata[UserIDKey] = s.UserID
	}

	return env
}

// now returns the current time in UTC.
func (p *Packer) now() time.Time {
	now := p.Now
	if now == nil {
		now = time.Now
	}

	return now().UTC()
}

// generateID generates a new event ID.
func (p *Packer) generateID() string {
	if p.GenerateID != nil {
		return p.GenerateID()
	}

	return uuid.NewString()
}
