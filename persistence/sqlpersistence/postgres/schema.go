package postgres

import (
	"context"
	"database/sql"

	"github.com/stratumhq/stratum/internal/x/sqlx"
)

// CreateSchema creates the schema elements used by the PostgreSQL driver.
func CreateSchema(ctx context.Context, db *sql.DB) (err error) {
	defer sqlx.Recover(&err)

	tx, err := db.BeginTx(ctx, nil)
	sqlx.Must(err)
	defer tx.Rollback()

	sqlx.Exec(ctx, tx, `CREATE SCHEMA IF NOT EXISTS stratum`)

	sqlx.Exec(
		ctx,
		tx,
		`CREATE TABLE IF NOT EXISTS stratum.event (
			global_sequence BIGSERIAL PRIMARY KEY,
			tenant_id       TEXT NOT NULL,
			aggregate_id    TEXT NOT NULL,
			aggregate_type  TEXT NOT NULL,
			sequence_number BIGINT NOT NULL,
			event_id        TEXT NOT NULL,
			event_type      TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			payload         BYTEA NOT NULL,
			metadata        BYTEA NOT NULL,

			UNIQUE (tenant_id, aggregate_id, sequence_number)
		)`,
	)

	sqlx.Exec(
		ctx,
		tx,
		`CREATE INDEX IF NOT EXISTS event_by_tenant ON stratum.event (
			tenant_id,
			global_sequence
		)`,
	)

	sqlx.Exec(
		ctx,
		tx,
		`CREATE TABLE IF NOT EXISTS stratum.snapshot (
			tenant_id            TEXT NOT NULL,
			aggregate_id         TEXT NOT NULL,
			last_sequence_number BIGINT NOT NULL,
			payload              BYTEA NOT NULL,
			version              TEXT NOT NULL,
			created_at           TEXT NOT NULL,

			PRIMARY KEY (tenant_id, aggregate_id)
		)`,
	)

	sqlx.Exec(
		ctx,
		tx,
		`CREATE TABLE IF NOT EXISTS stratum.processed_event (
			consumer_name TEXT NOT NULL,
			event_id      TEXT NOT NULL,
			tenant_id     TEXT NOT NULL,
			processed_at  TEXT NOT NULL,

			PRIMARY KEY (consumer_name, event_id, tenant_id)
		)`,
	)

	return tx.Commit()
}

// DropSchema drops the schema elements created by CreateSchema().
func DropSchema(ctx context.Context, db *sql.DB) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(ctx, db, `DROP SCHEMA IF EXISTS stratum CASCADE`)

	return nil
}
