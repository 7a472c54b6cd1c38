package sqlpersistence

import (
	"context"
	"database/sql"

	"github.com/stratumhq/stratum/persistence"
)

// AppendEvents atomically appends a batch of events to one aggregate's
// stream.
func (ds *dataStore) AppendEvents(
	ctx context.Context,
	r persistence.AppendRequest,
) ([]uint64, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	return ds.driver.AppendEvents(ctx, ds.db, r)
}

// ReadStream returns the events of a single aggregate in ascending
// sequence-number order, starting at fromSeq inclusive.
func (ds *dataStore) ReadStream(
	ctx context.Context,
	tenantID, aggregateID string,
	fromSeq uint64,
) (persistence.EventResult, error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := ds.driver.SelectStreamEvents(ctx, ds.db, tenantID, aggregateID, fromSeq)
	if err != nil {
		return nil, err
	}

	return &eventResult{
		rows:   rows,
		driver: ds.driver,
	}, nil
}

// eventResult is an implementation of persistence.EventResult that reads
// from a SQL row-set.
type eventResult struct {
	rows   *sql.Rows
	driver Driver
}

// Next returns the next event in the result.
func (r *eventResult) Next(ctx context.Context) (persistence.Event, bool, error) {
	if err := ctx.Err(); err != nil {
		return persistence.Event{}, false, err
	}

	if !r.rows.Next() {
		return persistence.Event{}, false, r.rows.Err()
	}

	ev, err := r.driver.ScanEvent(r.rows)
	if err != nil {
		return persistence.Event{}, false, err
	}

	return ev, true, nil
}

// Close closes the cursor.
func (r *eventResult) Close() error {
	return r.rows.Close()
}

// ReadFromGlobal returns up to limit events belonging to one tenant, in
// ascending global-sequence order, starting at fromGlobal inclusive.
func (ds *dataStore) ReadFromGlobal(
	ctx context.Context,
	tenantID string,
	fromGlobal uint64,
	limit int,
) ([]persistence.Event, error) {
	return ds.readGlobal(ctx, tenantID, fromGlobal, limit)
}

// ReadGlobal returns up to limit events across all tenants, in ascending
// global-sequence order, starting at fromGlobal inclusive.
func (ds *dataStore) ReadGlobal(
	ctx context.Context,
	fromGlobal uint64,
	limit int,
) ([]persistence.Event, error) {
	return ds.readGlobal(ctx, "", fromGlobal, limit)
}

func (ds *dataStore) readGlobal(
	ctx context.Context,
	tenantID string,
	fromGlobal uint64,
	limit int,
) ([]persistence.Event, error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := ds.driver.SelectGlobalEvents(ctx, ds.db, tenantID, fromGlobal, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []persistence.Event

	for rows.Next() {
		ev, err := ds.driver.ScanEvent(rows)
		if err != nil {
			return nil, err
		}

		events = append(events, ev)
	}

	return events, rows.Err()
}

// CurrentVersion returns the aggregate's highest sequence number, or
// NoStream if the aggregate does not exist.
func (ds *dataStore) CurrentVersion(
	ctx context.Context,
	tenantID, aggregateID string,
) (int64, error) {
	if err := ds.checkOpen(); err != nil {
		return 0, err
	}

	return ds.driver.SelectCurrentVersion(ctx, ds.db, tenantID, aggregateID)
}

// MaxGlobalSequence returns the highest global sequence assigned to any of
// the tenant's events.
func (ds *dataStore) MaxGlobalSequence(
	ctx context.Context,
	tenantID string,
) (uint64, error) {
	if err := ds.checkOpen(); err != nil {
		return 0, err
	}

	return ds.driver.SelectMaxGlobalSequence(ctx, ds.db, tenantID)
}
