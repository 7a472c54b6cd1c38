package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/stratumhq/stratum/internal/x/sqlx"
	"github.com/stratumhq/stratum/persistence"
)

// InsertProcessedMarker inserts the dedup marker for a (consumer, event,
// tenant) combination within an existing transaction.
func (d driver) InsertProcessedMarker(
	ctx context.Context,
	tx *sql.Tx,
	m persistence.ProcessedEvent,
) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO stratum.processed_event (
			consumer_name,
			event_id,
			tenant_id,
			processed_at
		) VALUES (
			$1, $2, $3, $4
		)`,
		m.ConsumerName,
		m.EventID,
		m.TenantID,
		m.ProcessedAt.Format(time.RFC3339Nano),
	)

	if isUniqueViolation(err) {
		return persistence.AlreadyProcessedError{
			ConsumerName: m.ConsumerName,
			EventID:      m.EventID,
			TenantID:     m.TenantID,
		}
	}

	return err
}

// SelectIsProcessed returns true if the dedup marker for a (consumer,
// event, tenant) combination exists.
func (d driver) SelectIsProcessed(
	ctx context.Context,
	db *sql.DB,
	consumerName, eventID, tenantID string,
) (_ bool, err error) {
	defer sqlx.Recover(&err)

	n := sqlx.QueryInt64(
		ctx,
		db,
		`SELECT COUNT(*)
		FROM stratum.processed_event
		WHERE consumer_name = $1
		AND event_id = $2
		AND tenant_id = $3`,
		consumerName,
		eventID,
		tenantID,
	)

	return n != 0, nil
}
