package persistence

import (
	"context"
	"time"
)

// A Snapshot is a materialization of an aggregate's state at a specific
// point in its stream.
//
// Snapshots are a pure optimization. The event log remains authoritative; a
// snapshot may be deleted or ignored at any time without correctness loss.
type Snapshot struct {
	// TenantID and AggregateID identify the aggregate the snapshot
	// belongs to. There is at most one snapshot per aggregate.
	TenantID    string
	AggregateID string

	// LastSequenceNumber is the sequence number of the last event reflected
	// in the snapshot. It never exceeds the aggregate's highest persisted
	// sequence number.
	LastSequenceNumber uint64

	// Payload is the serialized aggregate state.
	Payload []byte

	// Version identifies the format of Payload, allowing callers to discard
	// snapshots taken by incompatible older code.
	Version string

	// CreatedAt is the time at which the snapshot was taken, in UTC.
	CreatedAt time.Time
}

// CheckScope returns a SnapshotMismatchError if the snapshot does not
// belong to the aggregate identified by (tenantID, aggregateID).
func (s Snapshot) CheckScope(tenantID, aggregateID string) error {
	if s.TenantID != tenantID || s.AggregateID != aggregateID {
		return SnapshotMismatchError{
			TenantID:            tenantID,
			AggregateID:         aggregateID,
			SnapshotTenantID:    s.TenantID,
			SnapshotAggregateID: s.AggregateID,
		}
	}

	return nil
}

// SnapshotRepository is an interface for storing the latest snapshot of
// each aggregate.
type SnapshotRepository interface {
	// SaveSnapshot creates or replaces the snapshot for the aggregate
	// identified by (tenantID, aggregateID).
	//
	// It returns a SnapshotMismatchError if the identifiers do not match
	// s.TenantID and s.AggregateID.
	SaveSnapshot(ctx context.Context, tenantID, aggregateID string, s Snapshot) error

	// LoadSnapshot returns the snapshot for an aggregate.
	//
	// ok is false if the aggregate has no snapshot. Callers combine the
	// snapshot with ReadStream(..., s.LastSequenceNumber+1) to reconstruct
	// current state without a full replay.
	LoadSnapshot(ctx context.Context, tenantID, aggregateID string) (s Snapshot, ok bool, err error)

	// DeleteSnapshot removes the snapshot for an aggregate, if any.
	DeleteSnapshot(ctx context.Context, tenantID, aggregateID string) error
}
