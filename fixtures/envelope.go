// Package fixtures contains test doubles shared by the engine's test
// suites.
package fixtures

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stratumhq/stratum/envelope"
)

// NewEnvelope returns a new envelope for use in tests.
//
// If id is empty, a new UUID is generated. The envelope belongs to tenant
// "<tenant>" unless overridden with WithTenant().
func NewEnvelope(id, eventType string, options ...EnvelopeOption) *envelope.Envelope {
	if id == "" {
		id = uuid.NewString()
	}

	env := &envelope.Envelope{
		EventID:   id,
		EventType: eventType,
		TenantID:  "<tenant>",
		CreatedAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		Payload:   []byte("<payload>"),
		Metadata: map[string]string{
			envelope.CorrelationIDKey: "<correlation>",
			envelope.CausationIDKey:   "<cause>",
		},
	}

	for _, opt := range options {
		opt(env)
	}

	return env
}

// EnvelopeOption alters an envelope produced by NewEnvelope().
type EnvelopeOption func(*envelope.Envelope)

// WithTenant returns an envelope option that sets the owning tenant.
func WithTenant(tenantID string) EnvelopeOption {
	return func(env *envelope.Envelope) {
		env.TenantID = tenantID
	}
}

// WithPayload returns an envelope option that sets the payload.
func WithPayload(payload []byte) EnvelopeOption {
	return func(env *envelope.Envelope) {
		env.Payload = payload
	}
}

// WithMetadata returns an envelope option that sets one metadata entry.
func WithMetadata(k, v string) EnvelopeOption {
	return func(env *envelope.Envelope) {
		env.Metadata[k] = v
	}
}

// NewPacker returns an envelope packer that uses a deterministic ID
// sequence and clock.
//
// Event IDs are a monotonically increasing integer, starting at 0.
// CreatedAt starts at 2000-01-01 00:00:00 UTC and increases by 1 second for
// each event.
func NewPacker() *envelope.Packer {
	var (
		m   sync.Mutex
		id  int64
		now = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	)

	return &envelope.Packer{
		GenerateID: func() string {
			m.Lock()
			defer m.Unlock()

			v := strconv.FormatInt(id, 10)
			id++

			return v
		},
		Now: func() time.Time {
			m.Lock()
			defer m.Unlock()

			v := now
			now = now.Add(1 * time.Second)

			return v
		},
	}
}
