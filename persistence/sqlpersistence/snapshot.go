package sqlpersistence

import (
	"context"

	"github.com/stratumhq/stratum/persistence"
)

// SaveSnapshot stores a snapshot of an aggregate, replacing any existing
// snapshot for the same aggregate.
func (ds *dataStore) SaveSnapshot(
	ctx context.Context,
	tenantID, aggregateID string,
	s persistence.Snapshot,
) error {
	if err := s.CheckScope(tenantID, aggregateID); err != nil {
		return err
	}

	if err := ds.checkOpen(); err != nil {
		return err
	}

	return ds.driver.UpsertSnapshot(ctx, ds.db, s)
}

// LoadSnapshot returns the snapshot of an aggregate, if one exists.
func (ds *dataStore) LoadSnapshot(
	ctx context.Context,
	tenantID, aggregateID string,
) (persistence.Snapshot, bool, error) {
	if err := ds.checkOpen(); err != nil {
		return persistence.Snapshot{}, false, err
	}

	return ds.driver.SelectSnapshot(ctx, ds.db, tenantID, aggregateID)
}

// DeleteSnapshot removes the snapshot of an aggregate, if one exists.
func (ds *dataStore) DeleteSnapshot(
	ctx context.Context,
	tenantID, aggregateID string,
) error {
	if err := ds.checkOpen(); err != nil {
		return err
	}

	return ds.driver.DeleteSnapshot(ctx, ds.db, tenantID, aggregateID)
}
