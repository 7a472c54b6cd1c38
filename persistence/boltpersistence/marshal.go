package boltpersistence

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/stratumhq/stratum/envelope"
	"github.com/stratumhq/stratum/internal/x/bboltx"
	"github.com/stratumhq/stratum/persistence"
)

// marshalUint64 encodes v as an 8-byte big-endian value, preserving
// lexicographic ordering of keys.
func marshalUint64(v uint64) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, v)
	return data
}

// unmarshalUint64 decodes an 8-byte big-endian value.
//
// It returns zero if data is nil.
func unmarshalUint64(data []byte) uint64 {
	if data == nil {
		return 0
	}

	return binary.BigEndian.Uint64(data)
}

func marshalTime(t time.Time) []byte {
	return []byte(t.Format(time.RFC3339Nano))
}

// eventRecord is the JSON representation of a persisted event's
// stream-positioning fields. The envelope is stored in its own wire format.
type eventRecord struct {
	StreamID       string          `json:"stream_id"`
	AggregateID    string          `json:"aggregate_id"`
	AggregateType  string          `json:"aggregate_type"`
	SequenceNumber uint64          `json:"sequence_number"`
	Envelope       json.RawMessage `json:"envelope"`
}

// marshalEvent encodes an event record, or panics with a sentinel.
func marshalEvent(ev persistence.Event) []byte {
	env, err := envelope.Marshal(ev.Envelope)
	bboltx.Must(err)

	data, err := json.Marshal(eventRecord{
		StreamID:       ev.StreamID,
		AggregateID:    ev.AggregateID,
		AggregateType:  ev.AggregateType,
		SequenceNumber: ev.SequenceNumber,
		Envelope:       env,
	})
	bboltx.Must(err)

	return data
}

// unmarshalEvent decodes an event record, or panics with a sentinel.
func unmarshalEvent(global uint64, data []byte) persistence.Event {
	var rec eventRecord
	bboltx.Must(json.Unmarshal(data, &rec))

	env, err := envelope.Unmarshal(rec.Envelope)
	bboltx.Must(err)

	return persistence.Event{
		GlobalSequence: global,
		StreamID:       rec.StreamID,
		AggregateID:    rec.AggregateID,
		AggregateType:  rec.AggregateType,
		SequenceNumber: rec.SequenceNumber,
		Envelope:       env,
	}
}

// snapshotRecord is the JSON representation of a snapshot.
type snapshotRecord struct {
	TenantID           string    `json:"tenant_id"`
	AggregateID        string    `json:"aggregate_id"`
	LastSequenceNumber uint64    `json:"last_sequence_number"`
	Payload            []byte    `json:"payload"`
	Version            string    `json:"version"`
	CreatedAt          time.Time `json:"created_at"`
}

func marshalSnapshot(s persistence.Snapshot) []byte {
	data, err := json.Marshal(snapshotRecord(s))
	bboltx.Must(err)
	return data
}

func unmarshalSnapshot(data []byte) persistence.Snapshot {
	var rec snapshotRecord
	bboltx.Must(json.Unmarshal(data, &rec))
	return persistence.Snapshot(rec)
}
