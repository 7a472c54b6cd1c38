package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/stratumhq/stratum/envelope"
	"github.com/stratumhq/stratum/internal/x/sqlx"
	"github.com/stratumhq/stratum/persistence"
)

// AppendEvents appends a batch of events to an aggregate's stream.
func (d driver) AppendEvents(
	ctx context.Context,
	db *sql.DB,
	r persistence.AppendRequest,
) ([]uint64, error) {
	globals, err := d.appendEvents(ctx, db, r)

	if isUniqueViolation(err) {
		actual, verr := d.SelectCurrentVersion(ctx, db, r.TenantID, r.AggregateID)
		if verr != nil {
			return nil, verr
		}

		return nil, persistence.ConflictError{
			TenantID:    r.TenantID,
			AggregateID: r.AggregateID,
			Expected:    r.Expected,
			Actual:      actual,
		}
	}

	return globals, err
}

func (d driver) appendEvents(
	ctx context.Context,
	db *sql.DB,
	r persistence.AppendRequest,
) (_ []uint64, err error) {
	defer sqlx.Recover(&err)

	tx, err := db.BeginTx(ctx, nil)
	sqlx.Must(err)
	defer tx.Rollback()

	current := currentVersion(ctx, tx, r.TenantID, r.AggregateID)
	if current != r.Expected {
		return nil, persistence.ConflictError{
			TenantID:    r.TenantID,
			AggregateID: r.AggregateID,
			Expected:    r.Expected,
			Actual:      current,
		}
	}

	globals := make([]uint64, 0, len(r.Envelopes))

	for i, env := range r.Envelopes {
		md, merr := json.Marshal(env.Metadata)
		sqlx.Must(merr)

		res := sqlx.Exec(
			ctx,
			tx,
			`INSERT INTO stratum_event (
				tenant_id,
				aggregate_id,
				aggregate_type,
				sequence_number,
				event_id,
				event_type,
				created_at,
				payload,
				metadata
			) VALUES (
				?, ?, ?, ?, ?, ?, ?, ?, ?
			)`,
			r.TenantID,
			r.AggregateID,
			r.AggregateType,
			r.Expected+1+int64(i),
			env.EventID,
			env.EventType,
			env.CreatedAt.Format(time.RFC3339Nano),
			env.Payload,
			md,
		)

		global, gerr := res.LastInsertId()
		sqlx.Must(gerr)

		globals = append(globals, uint64(global))
	}

	sqlx.Must(tx.Commit())

	return globals, nil
}

// currentVersion returns the aggregate's highest sequence number, or
// NoStream if the aggregate has no events.
func currentVersion(
	ctx context.Context,
	db sqlx.DB,
	tenantID, aggregateID string,
) int64 {
	return sqlx.QueryInt64(
		ctx,
		db,
		`SELECT COALESCE(MAX(sequence_number), -1)
		FROM stratum_event
		WHERE tenant_id = ?
		AND aggregate_id = ?`,
		tenantID,
		aggregateID,
	)
}

// SelectCurrentVersion returns the aggregate's highest sequence number, or
// NoStream if the aggregate has no events.
func (d driver) SelectCurrentVersion(
	ctx context.Context,
	db *sql.DB,
	tenantID, aggregateID string,
) (_ int64, err error) {
	defer sqlx.Recover(&err)
	return currentVersion(ctx, db, tenantID, aggregateID), nil
}

// SelectMaxGlobalSequence returns the highest global sequence assigned to
// any of the tenant's events.
func (d driver) SelectMaxGlobalSequence(
	ctx context.Context,
	db *sql.DB,
	tenantID string,
) (_ uint64, err error) {
	defer sqlx.Recover(&err)

	max := sqlx.QueryInt64(
		ctx,
		db,
		`SELECT COALESCE(MAX(global_sequence), 0)
		FROM stratum_event
		WHERE tenant_id = ?`,
		tenantID,
	)

	return uint64(max), nil
}

// SelectStreamEvents selects an aggregate's events with a sequence number of
// fromSeq or greater.
func (d driver) SelectStreamEvents(
	ctx context.Context,
	db *sql.DB,
	tenantID, aggregateID string,
	fromSeq uint64,
) (*sql.Rows, error) {
	return db.QueryContext(
		ctx,
		`SELECT
			global_sequence,
			tenant_id,
			aggregate_id,
			aggregate_type,
			sequence_number,
			event_id,
			event_type,
			created_at,
			payload,
			metadata
		FROM stratum_event
		WHERE tenant_id = ?
		AND aggregate_id = ?
		AND sequence_number >= ?
		ORDER BY sequence_number`,
		tenantID,
		aggregateID,
		int64(fromSeq),
	)
}

// SelectGlobalEvents selects events with a global sequence of fromGlobal or
// greater, optionally filtered by tenant.
func (d driver) SelectGlobalEvents(
	ctx context.Context,
	db *sql.DB,
	tenantID string,
	fromGlobal uint64,
	limit int,
) (*sql.Rows, error) {
	// SQLite treats a negative LIMIT as "no limit".
	lim := int64(-1)
	if limit > 0 {
		lim = int64(limit)
	}

	return db.QueryContext(
		ctx,
		`SELECT
			global_sequence,
			tenant_id,
			aggregate_id,
			aggregate_type,
			sequence_number,
			event_id,
			event_type,
			created_at,
			payload,
			metadata
		FROM stratum_event
		WHERE global_sequence >= ?1
		AND (?2 = '' OR tenant_id = ?2)
		ORDER BY global_sequence
		LIMIT ?3`,
		int64(fromGlobal),
		tenantID,
		lim,
	)
}

// ScanEvent scans the next event from a row-set produced by
// SelectStreamEvents() or SelectGlobalEvents().
func (d driver) ScanEvent(rows *sql.Rows) (persistence.Event, error) {
	var (
		ev        persistence.Event
		env       envelope.Envelope
		createdAt string
		metadata  []byte
	)

	if err := rows.Scan(
		&ev.GlobalSequence,
		&env.TenantID,
		&ev.AggregateID,
		&ev.AggregateType,
		&ev.SequenceNumber,
		&env.EventID,
		&env.EventType,
		&createdAt,
		&env.Payload,
		&metadata,
	); err != nil {
		return persistence.Event{}, err
	}

	var err error
	env.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return persistence.Event{}, err
	}

	if err := json.Unmarshal(metadata, &env.Metadata); err != nil {
		return persistence.Event{}, err
	}

	ev.StreamID = persistence.StreamID(ev.AggregateType, ev.AggregateID)
	ev.Envelope = &env

	return ev, nil
}
