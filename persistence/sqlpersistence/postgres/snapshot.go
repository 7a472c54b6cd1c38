package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/stratumhq/stratum/internal/x/sqlx"
	"github.com/stratumhq/stratum/persistence"
)

// UpsertSnapshot saves a snapshot, replacing any existing snapshot of the
// same aggregate.
func (d driver) UpsertSnapshot(
	ctx context.Context,
	db *sql.DB,
	s persistence.Snapshot,
) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(
		ctx,
		db,
		`INSERT INTO stratum.snapshot (
			tenant_id,
			aggregate_id,
			last_sequence_number,
			payload,
			version,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		) ON CONFLICT (tenant_id, aggregate_id) DO UPDATE SET
			last_sequence_number = excluded.last_sequence_number,
			payload = excluded.payload,
			version = excluded.version,
			created_at = excluded.created_at`,
		s.TenantID,
		s.AggregateID,
		int64(s.LastSequenceNumber),
		s.Payload,
		s.Version,
		s.CreatedAt.Format(time.RFC3339Nano),
	)

	return nil
}

// SelectSnapshot loads the snapshot of an aggregate, if one exists.
func (d driver) SelectSnapshot(
	ctx context.Context,
	db *sql.DB,
	tenantID, aggregateID string,
) (persistence.Snapshot, bool, error) {
	row := db.QueryRowContext(
		ctx,
		`SELECT
			tenant_id,
			aggregate_id,
			last_sequence_number,
			payload,
			version,
			created_at
		FROM stratum.snapshot
		WHERE tenant_id = $1
		AND aggregate_id = $2`,
		tenantID,
		aggregateID,
	)

	var (
		s         persistence.Snapshot
		createdAt string
	)

	err := row.Scan(
		&s.TenantID,
		&s.AggregateID,
		&s.LastSequenceNumber,
		&s.Payload,
		&s.Version,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return persistence.Snapshot{}, false, nil
	}
	if err != nil {
		return persistence.Snapshot{}, false, err
	}

	s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return persistence.Snapshot{}, false, err
	}

	return s, true, nil
}

// DeleteSnapshot removes the snapshot of an aggregate, if one exists.
func (d driver) DeleteSnapshot(
	ctx context.Context,
	db *sql.DB,
	tenantID, aggregateID string,
) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(
		ctx,
		db,
		`DELETE FROM stratum.snapshot
		WHERE tenant_id = $1
		AND aggregate_id = $2`,
		tenantID,
		aggregateID,
	)

	return nil
}
