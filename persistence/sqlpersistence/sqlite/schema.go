package sqlite

import (
	"context"
	"database/sql"

	"github.com/stratumhq/stratum/internal/x/sqlx"
)

// CreateSchema creates the schema elements used by the SQLite driver.
func CreateSchema(ctx context.Context, db *sql.DB) (err error) {
	defer sqlx.Recover(&err)

	tx, err := db.BeginTx(ctx, nil)
	sqlx.Must(err)
	defer tx.Rollback()

	sqlx.Exec(
		ctx,
		tx,
		`CREATE TABLE IF NOT EXISTS stratum_event (
			global_sequence INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id       TEXT NOT NULL,
			aggregate_id    TEXT NOT NULL,
			aggregate_type  TEXT NOT NULL,
			sequence_number INTEGER NOT NULL,
			event_id        TEXT NOT NULL,
			event_type      TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			payload         BLOB NOT NULL,
			metadata        BLOB NOT NULL,

			UNIQUE (tenant_id, aggregate_id, sequence_number)
		)`,
	)

	sqlx.Exec(
		ctx,
		tx,
		`CREATE INDEX IF NOT EXISTS stratum_event_by_tenant ON stratum_event (
			tenant_id,
			global_sequence
		)`,
	)

	sqlx.Exec(
		ctx,
		tx,
		`CREATE TABLE IF NOT EXISTS stratum_snapshot (
			tenant_id            TEXT NOT NULL,
			aggregate_id         TEXT NOT NULL,
			last_sequence_number INTEGER NOT NULL,
			payload              BLOB NOT NULL,
			version              TEXT NOT NULL,
			created_at           TEXT NOT NULL,

			PRIMARY KEY (tenant_id, aggregate_id)
		)`,
	)

	sqlx.Exec(
		ctx,
		tx,
		`CREATE TABLE IF NOT EXISTS stratum_processed_event (
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

	sqlx.Exec(ctx, db, `DROP TABLE IF EXISTS stratum_event`)
	sqlx.Exec(ctx, db, `DROP TABLE IF EXISTS stratum_snapshot`)
	sqlx.Exec(ctx, db, `DROP TABLE IF EXISTS stratum_processed_event`)

	return nil
}
