package memorypersistence

import (
	"context"
	"errors"
	"sync"

	"github.com/stratumhq/stratum/persistence"
)

// streamKey identifies one aggregate's stream.
type streamKey struct {
	tenantID    string
	aggregateID string
}

// markerKey identifies one dedup marker.
type markerKey struct {
	consumerName string
	eventID      string
	tenantID     string
}

// dataStore is an implementation of persistence.DataStore that keeps all
// state in memory.
type dataStore struct {
	m      sync.RWMutex
	closed bool

	// events is the global log; an event's global sequence is its index
	// plus one.
	events    []persistence.Event
	streams   map[streamKey][]int
	snapshots map[streamKey]persistence.Snapshot
	processed map[markerKey]persistence.ProcessedEvent
	maxGlobal map[string]uint64
}

// Begin starts a transaction.
func (ds *dataStore) Begin(ctx context.Context) (persistence.Transaction, error) {
	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.closed {
		return nil, persistence.ErrDataStoreClosed
	}

	return &transaction{ds: ds}, nil
}

// Close closes the data store.
func (ds *dataStore) Close() error {
	ds.m.Lock()
	defer ds.m.Unlock()

	if ds.closed {
		return persistence.ErrDataStoreClosed
	}

	ds.closed = true

	return nil
}

// transaction buffers dedup markers until commit.
//
// The markers are validated again under the store's write lock at commit
// time, so two concurrent attempts at the same marker can not both commit.
type transaction struct {
	ds      *dataStore
	pending []persistence.ProcessedEvent
	done    bool
}

// MarkProcessed inserts the dedup marker for a (consumer, event, tenant)
// combination.
func (tx *transaction) MarkProcessed(ctx context.Context, m persistence.ProcessedEvent) error {
	if tx.done {
		return errors.New("transaction has already been committed or rolled back")
	}

	tx.ds.m.RLock()
	defer tx.ds.m.RUnlock()

	k := markerKey{m.ConsumerName, m.EventID, m.TenantID}

	if _, ok := tx.ds.processed[k]; ok {
		return persistence.AlreadyProcessedError{
			ConsumerName: m.ConsumerName,
			EventID:      m.EventID,
			TenantID:     m.TenantID,
		}
	}

	tx.pending = append(tx.pending, m)

	return nil
}

// Commit applies the changes performed in the transaction.
func (tx *transaction) Commit() error {
	if tx.done {
		return errors.New("transaction has already been committed or rolled back")
	}
	tx.done = true

	tx.ds.m.Lock()
	defer tx.ds.m.Unlock()

	if tx.ds.closed {
		return persistence.ErrDataStoreClosed
	}

	// Re-validate under the write lock; a concurrent transaction may have
	// committed the same marker since MarkProcessed() checked it.
	for _, m := range tx.pending {
		k := markerKey{m.ConsumerName, m.EventID, m.TenantID}

		if _, ok := tx.ds.processed[k]; ok {
			return persistence.AlreadyProcessedError{
				ConsumerName: m.ConsumerName,
				EventID:      m.EventID,
				TenantID:     m.TenantID,
			}
		}
	}

	for _, m := range tx.pending {
		k := markerKey{m.ConsumerName, m.EventID, m.TenantID}
		tx.ds.processed[k] = m
	}

	return nil
}

// Rollback discards the changes performed in the transaction.
func (tx *transaction) Rollback() error {
	tx.done = true
	tx.pending = nil

	return nil
}
