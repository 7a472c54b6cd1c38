package boltpersistence

import (
	"context"
	"sync"

	"github.com/stratumhq/stratum/internal/x/bboltx"
	"github.com/stratumhq/stratum/persistence"
	"go.etcd.io/bbolt"
)

var (
	// eventsBucketKey is the key of the root bucket containing the global
	// event log.
	//
	// The keys are global sequences encoded as 8-byte big-endian values.
	// The values are JSON-encoded event records.
	eventsBucketKey = []byte("events")

	// streamsBucketKey is the key of the root bucket containing one child
	// bucket per tenant, each containing one child bucket per aggregate.
	//
	// The innermost keys are sequence numbers encoded as 8-byte big-endian
	// values; the values are global sequences in the same encoding.
	streamsBucketKey = []byte("streams")

	// tenantMaxBucketKey is the key of the root bucket mapping tenant IDs
	// to the highest global sequence assigned to any of their events.
	tenantMaxBucketKey = []byte("tenantmax")

	// snapshotsBucketKey is the key of the root bucket containing one child
	// bucket per tenant, mapping aggregate IDs to JSON-encoded snapshots.
	snapshotsBucketKey = []byte("snapshots")

	// processedBucketKey is the key of the root bucket containing one child
	// bucket per consumer, each containing one child bucket per tenant,
	// mapping event IDs to RFC 3339 processing times.
	processedBucketKey = []byte("processed")
)

// dataStore is an implementation of persistence.DataStore for BoltDB.
type dataStore struct {
	db    *bbolt.DB
	close func(*bbolt.DB) error

	closeM sync.Mutex
	closed bool
}

func newDataStore(db *bbolt.DB, close func(*bbolt.DB) error) *dataStore {
	return &dataStore{
		db:    db,
		close: close,
	}
}

// Begin starts a transaction.
//
// BoltDB permits a single write transaction at a time; consumers therefore
// apply their events strictly one after another when using this provider.
func (ds *dataStore) Begin(ctx context.Context) (persistence.Transaction, error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	tx, err := ds.db.Begin(true)
	if err != nil {
		return nil, err
	}

	return &transaction{tx: tx}, nil
}

// Close closes the data store.
func (ds *dataStore) Close() error {
	ds.closeM.Lock()
	defer ds.closeM.Unlock()

	if ds.closed {
		return persistence.ErrDataStoreClosed
	}

	ds.closed = true

	return ds.close(ds.db)
}

// checkOpen returns an error if the data-store has been closed.
func (ds *dataStore) checkOpen() error {
	ds.closeM.Lock()
	defer ds.closeM.Unlock()

	if ds.closed {
		return persistence.ErrDataStoreClosed
	}

	return nil
}

// transaction is an implementation of persistence.Transaction for BoltDB.
type transaction struct {
	tx   *bbolt.Tx
	done bool
}

// MarkProcessed inserts the dedup marker for a (consumer, event, tenant)
// combination.
func (tx *transaction) MarkProcessed(
	ctx context.Context,
	m persistence.ProcessedEvent,
) (err error) {
	defer bboltx.Recover(&err)

	b := bboltx.CreateBucketIfNotExists(
		tx.tx,
		processedBucketKey,
		[]byte(m.ConsumerName),
		[]byte(m.TenantID),
	)

	if b.Get([]byte(m.EventID)) != nil {
		return persistence.AlreadyProcessedError{
			ConsumerName: m.ConsumerName,
			EventID:      m.EventID,
			TenantID:     m.TenantID,
		}
	}

	bboltx.Put(
		b,
		[]byte(m.EventID),
		marshalTime(m.ProcessedAt),
	)

	return nil
}

// Commit applies the changes performed in the transaction.
func (tx *transaction) Commit() error {
	tx.done = true
	return tx.tx.Commit()
}

// Rollback discards the changes performed in the transaction.
func (tx *transaction) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true

	return tx.tx.Rollback()
}
