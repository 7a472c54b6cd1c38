package persistence

import (
	"context"
	"time"
)

// A ProcessedEvent is a dedup marker recording that a specific consumer has
// applied a specific event.
//
// Markers are created exactly once, inside the same transaction as the
// consumer's side effects, and are never updated. They are the sole
// mechanism that turns at-least-once delivery into at-most-once
// application.
type ProcessedEvent struct {
	ConsumerName string
	EventID      string
	TenantID     string
	ProcessedAt  time.Time
}

// ProcessedEventRepository is an interface for reading dedup markers.
type ProcessedEventRepository interface {
	// IsProcessed returns true if a dedup marker exists for the given
	// (consumer, event, tenant) combination.
	IsProcessed(ctx context.Context, consumerName, eventID, tenantID string) (bool, error)
}
