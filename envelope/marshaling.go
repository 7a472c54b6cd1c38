package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireEnvelope is the JSON wire format of an envelope.
//
// The field names are the wire-stable metadata keys; they must never be
// renamed.
type wireEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	TenantID  string            `json:"tenant_id"`
	Timestamp string            `json:"timestamp"`
	Payload   []byte            `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Marshal returns the wire representation of env.
func Marshal(env *Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}

	return json.Marshal(wireEnvelope{
		EventID:   env.EventID,
		EventType: env.EventType,
		TenantID:  env.TenantID,
		Timestamp: env.CreatedAt.Format(time.RFC3339Nano),
		Payload:   env.Payload,
		Metadata:  env.Metadata,
	})
}

// MustMarshal returns the wire representation of env, or panics if it can
// not be marshaled.
func MustMarshal(env *Envelope) []byte {
	data, err := Marshal(env)
	if err != nil {
		panic(err)
	}

	return data
}

// Unmarshal parses the wire representation of an envelope.
//
// A failure to unmarshal is permanent; the same bytes will never succeed on
// retry, so consumers treat it as a poison pill.
func Unmarshal(data []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unable to unmarshal envelope: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return nil, fmt.Errorf(
			"unable to unmarshal envelope '%s': invalid timestamp: %w",
			w.EventID,
			err,
		)
	}

	env := &Envelope{
		EventID:   w.EventID,
		EventType: w.EventType,
		TenantID:  w.TenantID,
		CreatedAt: createdAt,
		Payload:   w.Payload,
		Metadata:  w.Metadata,
	}

	if env.Metadata == nil {
		env.Metadata = map[string]string{}
	}

	if err := env.Validate(); err != nil {
		return nil, err
	}

	return env, nil
}
