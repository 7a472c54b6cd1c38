package memorypersistence

import (
	"context"

	"github.com/stratumhq/stratum/persistence"
)

// SaveSnapshot creates or replaces the snapshot for an aggregate.
func (ds *dataStore) SaveSnapshot(
	ctx context.Context,
	tenantID, aggregateID string,
	s persistence.Snapshot,
) error {
	if err := s.CheckScope(tenantID, aggregateID); err != nil {
		return err
	}

	ds.m.Lock()
	defer ds.m.Unlock()

	if ds.closed {
		return persistence.ErrDataStoreClosed
	}

	ds.snapshots[streamKey{tenantID, aggregateID}] = s

	return nil
}

// LoadSnapshot returns the snapshot for an aggregate.
func (ds *dataStore) LoadSnapshot(
	ctx context.Context,
	tenantID, aggregateID string,
) (persistence.Snapshot, bool, error) {
	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.closed {
		return persistence.Snapshot{}, false, persistence.ErrDataStoreClosed
	}

	s, ok := ds.snapshots[streamKey{tenantID, aggregateID}]

	return s, ok, nil
}

// DeleteSnapshot removes the snapshot for an aggregate, if any.
func (ds *dataStore) DeleteSnapshot(
	ctx context.Context,
	tenantID, aggregateID string,
) error {
	ds.m.Lock()
	defer ds.m.Unlock()

	if ds.closed {
		return persistence.ErrDataStoreClosed
	}

	delete(ds.snapshots, streamKey{tenantID, aggregateID})

	return nil
}
