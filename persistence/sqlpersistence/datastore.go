package sqlpersistence

import (
	"context"
	"database/sql"
	"sync"

	"github.com/stratumhq/stratum/persistence"
)

// dataStore is an implementation of persistence.DataStore for SQL databases.
type dataStore struct {
	db     *sql.DB
	driver Driver
	close  func(*sql.DB) error

	closeM sync.Mutex
	closed bool
}

func newDataStore(
	db *sql.DB,
	d Driver,
	close func(*sql.DB) error,
) *dataStore {
	return &dataStore{
		db:     db,
		driver: d,
		close:  close,
	}
}

// Begin starts a transaction.
func (ds *dataStore) Begin(ctx context.Context) (persistence.Transaction, error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	tx, err := ds.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &transaction{
		tx:     tx,
		driver: ds.driver,
	}, nil
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

// transaction is an implementation of persistence.Transaction for SQL
// databases.
type transaction struct {
	tx     *sql.Tx
	driver Driver
	done   bool
}

// MarkProcessed inserts the dedup marker for a (consumer, event, tenant)
// combination.
func (tx *transaction) MarkProcessed(
	ctx context.Context,
	m persistence.ProcessedEvent,
) error {
	return tx.driver.InsertProcessedMarker(ctx, tx.tx, m)
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
