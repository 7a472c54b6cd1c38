package sqlpersistence

import "context"

// IsProcessed returns true if a dedup marker exists for the given
// (consumer, event, tenant) combination.
func (ds *dataStore) IsProcessed(
	ctx context.Context,
	consumerName, eventID, tenantID string,
) (bool, error) {
	if err := ds.checkOpen(); err != nil {
		return false, err
	}

	return ds.driver.SelectIsProcessed(ctx, ds.db, consumerName, eventID, tenantID)
}
