package persistence

import (
	"context"
)

// A DataStore provides access to the engine's persisted state.
//
// All mutation of shared state flows through the repositories' transactional
// paths; correctness under concurrent writers rests on uniqueness
// constraints, not on advisory locks.
type DataStore interface {
	EventRepository
	SnapshotRepository
	ProcessedEventRepository

	// Begin starts a transaction in which a consumer's side effects and its
	// dedup marker are committed atomically.
	Begin(ctx context.Context) (Transaction, error)

	// Close closes the data store.
	//
	// Any future operation on a closed data-store returns
	// ErrDataStoreClosed.
	Close() error
}

// A Transaction couples a consumer's read-model writes with the dedup
// marker that records the event as processed.
//
// Both commit or both roll back; a side effect without a marker would be
// re-applied on redelivery, a marker without the side effect would silently
// drop the event.
type Transaction interface {
	// MarkProcessed inserts the dedup marker for a (consumer, event,
	// tenant) combination.
	//
	// It returns an AlreadyProcessedError if the marker already exists,
	// including when it was committed by a concurrent attempt after this
	// transaction began. The error may also be deferred until Commit(),
	// depending on the implementation.
	MarkProcessed(ctx context.Context, m ProcessedEvent) error

	// Commit applies the changes performed in the transaction.
	Commit() error

	// Rollback discards the changes performed in the transaction.
	//
	// It is a no-op if the transaction has already been committed, so it is
	// safe to defer unconditionally.
	Rollback() error
}

// A Provider is a source of data stores for a particular persistence
// technology.
type Provider interface {
	// Open returns the data store, creating any schema or on-disk state
	// that does not exist yet.
	Open(ctx context.Context) (DataStore, error)
}
