package persistence

import (
	"errors"
	"fmt"
)

// ErrDataStoreClosed is returned when performing any operation on a
// data-store that has been closed.
var ErrDataStoreClosed = errors.New("data store is closed")

// ConflictError indicates that an append failed its optimistic concurrency
// check because another writer appended to the same aggregate first.
//
// It is a normal, expected control-flow outcome. The caller reloads the
// aggregate and retries; it is the only retryable error produced by
// AppendEvents().
type ConflictError struct {
	TenantID    string
	AggregateID string

	// Expected is the version supplied by the caller; Actual is the
	// aggregate's version as re-read after the conflict was detected.
	Expected int64
	Actual   int64
}

func (e ConflictError) Error() string {
	return fmt.Sprintf(
		"optimistic concurrency conflict appending to aggregate '%s' of tenant '%s': expected version %d, found %d",
		e.AggregateID,
		e.TenantID,
		e.Expected,
		e.Actual,
	)
}

// BatchError indicates that an append request was malformed, such as mixing
// events that belong to more than one (tenant, aggregate) pair.
//
// It is a programmer error and is never retryable.
type BatchError struct {
	Message string
}

func (e BatchError) Error() string {
	return e.Message
}

// SnapshotMismatchError indicates that the scope under which a snapshot was
// saved or loaded disagrees with the snapshot's own fields.
//
// It defends against a misconfigured caller corrupting another tenant's
// snapshot.
type SnapshotMismatchError struct {
	TenantID    string
	AggregateID string

	SnapshotTenantID    string
	SnapshotAggregateID string
}

func (e SnapshotMismatchError) Error() string {
	return fmt.Sprintf(
		"snapshot for aggregate '%s' of tenant '%s' can not be saved under aggregate '%s' of tenant '%s'",
		e.SnapshotAggregateID,
		e.SnapshotTenantID,
		e.AggregateID,
		e.TenantID,
	)
}

// AlreadyProcessedError indicates that a dedup marker for the given
// (consumer, event, tenant) combination already exists.
//
// Under concurrent redelivery two attempts race on the marker insert; the
// loser receives this error, its transaction rolls back, and no duplicate
// side effects are applied.
type AlreadyProcessedError struct {
	ConsumerName string
	EventID      string
	TenantID     string
}

func (e AlreadyProcessedError) Error() string {
	return fmt.Sprintf(
		"event '%s' of tenant '%s' has already been processed by consumer '%s'",
		e.EventID,
		e.TenantID,
		e.ConsumerName,
	)
}
