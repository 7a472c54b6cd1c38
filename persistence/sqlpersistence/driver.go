package sqlpersistence

import (
	"context"
	"database/sql"

	"github.com/stratumhq/stratum/persistence"
)

// Driver is an interface for database-specific SQL. It is implemented by the
// dialect sub-packages.
type Driver interface {
	// AppendEvents appends a batch of events to an aggregate's stream.
	//
	// It returns a persistence.ConflictError if the stream's current
	// version differs from r.Expected at commit time.
	AppendEvents(
		ctx context.Context,
		db *sql.DB,
		r persistence.AppendRequest,
	) ([]uint64, error)

	// SelectStreamEvents selects an aggregate's events with a sequence
	// number of fromSeq or greater, in ascending sequence-number order.
	SelectStreamEvents(
		ctx context.Context,
		db *sql.DB,
		tenantID, aggregateID string,
		fromSeq uint64,
	) (*sql.Rows, error)

	// SelectGlobalEvents selects events with a global sequence of
	// fromGlobal or greater, in ascending global-sequence order.
	//
	// If tenantID is non-empty only that tenant's events are selected. A
	// limit of zero means no limit.
	SelectGlobalEvents(
		ctx context.Context,
		db *sql.DB,
		tenantID string,
		fromGlobal uint64,
		limit int,
	) (*sql.Rows, error)

	// ScanEvent scans the next event from a row-set produced by
	// SelectStreamEvents() or SelectGlobalEvents().
	ScanEvent(rows *sql.Rows) (persistence.Event, error)

	// SelectCurrentVersion returns the aggregate's highest sequence number,
	// or persistence.NoStream if the aggregate has no events.
	SelectCurrentVersion(
		ctx context.Context,
		db *sql.DB,
		tenantID, aggregateID string,
	) (int64, error)

	// SelectMaxGlobalSequence returns the highest global sequence assigned
	// to any of the tenant's events.
	SelectMaxGlobalSequence(
		ctx context.Context,
		db *sql.DB,
		tenantID string,
	) (uint64, error)

	// UpsertSnapshot saves a snapshot, replacing any existing snapshot of
	// the same aggregate.
	UpsertSnapshot(
		ctx context.Context,
		db *sql.DB,
		s persistence.Snapshot,
	) error

	// SelectSnapshot loads the snapshot of an aggregate, if one exists.
	SelectSnapshot(
		ctx context.Context,
		db *sql.DB,
		tenantID, aggregateID string,
	) (persistence.Snapshot, bool, error)

	// DeleteSnapshot removes the snapshot of an aggregate, if one exists.
	DeleteSnapshot(
		ctx context.Context,
		db *sql.DB,
		tenantID, aggregateID string,
	) error

	// InsertProcessedMarker inserts the dedup marker for a
	// (consumer, event, tenant) combination within an existing transaction.
	//
	// It returns a persistence.AlreadyProcessedError if the marker already
	// exists.
	InsertProcessedMarker(
		ctx context.Context,
		tx *sql.Tx,
		m persistence.ProcessedEvent,
	) error

	// SelectIsProcessed returns true if the dedup marker for a
	// (consumer, event, tenant) combination exists.
	SelectIsProcessed(
		ctx context.Context,
		db *sql.DB,
		consumerName, eventID, tenantID string,
	) (bool, error)
}
