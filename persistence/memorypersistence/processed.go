package memorypersistence

import (
	"context"

	"github.com/stratumhq/stratum/persistence"
)

// IsProcessed returns true if a dedup marker exists for the given
// (consumer, event, tenant) combination.
func (ds *dataStore) IsProcessed(
	ctx context.Context,
	consumerName, eventID, tenantID string,
) (bool, error) {
	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.closed {
		return false, persistence.ErrDataStoreClosed
	}

	_, ok := ds.processed[markerKey{consumerName, eventID, tenantID}]

	return ok, nil
}
