package fixtures

import (
	"context"

	"github.com/stratumhq/stratum/persistence"
)

// DataStoreStub is a test implementation of persistence.DataStore that
// forwards to a real data-store, with hooks for overriding individual
// methods.
type DataStoreStub struct {
	persistence.DataStore

	AppendEventsFunc func(context.Context, persistence.AppendRequest) ([]uint64, error)
	BeginFunc        func(context.Context) (persistence.Transaction, error)
	IsProcessedFunc  func(ctx context.Context, consumerName, eventID, tenantID string) (bool, error)
}

// AppendEvents atomically appends a batch of events to one aggregate's
// stream.
func (ds *DataStoreStub) AppendEvents(
	ctx context.Context,
	r persistence.AppendRequest,
) ([]uint64, error) {
	if ds.AppendEventsFunc != nil {
		return ds.AppendEventsFunc(ctx, r)
	}

	return ds.DataStore.AppendEvents(ctx, r)
}

// Begin starts a transaction.
func (ds *DataStoreStub) Begin(ctx context.Context) (persistence.Transaction, error) {
	if ds.BeginFunc != nil {
		return ds.BeginFunc(ctx)
	}

	return ds.DataStore.Begin(ctx)
}

// IsProcessed returns true if a dedup marker exists for the given
// (consumer, event, tenant) combination.
func (ds *DataStoreStub) IsProcessed(
	ctx context.Context,
	consumerName, eventID, tenantID string,
) (bool, error) {
	if ds.IsProcessedFunc != nil {
		return ds.IsProcessedFunc(ctx, consumerName, eventID, tenantID)
	}

	return ds.DataStore.IsProcessed(ctx, consumerName, eventID, tenantID)
}

// TransactionStub is a test implementation of persistence.Transaction with
// hooks for overriding individual methods.
type TransactionStub struct {
	persistence.Transaction

	MarkProcessedFunc func(context.Context, persistence.ProcessedEvent) error
	CommitFunc        func() error
}

// MarkProcessed inserts the dedup marker for a (consumer, event, tenant)
// combination.
func (tx *TransactionStub) MarkProcessed(
	ctx context.Context,
	m persistence.ProcessedEvent,
) error {
	if tx.MarkProcessedFunc != nil {
		return tx.MarkProcessedFunc(ctx, m)
	}

	return tx.Transaction.MarkProcessed(ctx, m)
}

// Commit applies the changes performed in the transaction.
func (tx *TransactionStub) Commit() error {
	if tx.CommitFunc != nil {
		return tx.CommitFunc()
	}

	return tx.Transaction.Commit()
}
