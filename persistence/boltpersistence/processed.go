package boltpersistence

import (
	"context"

	"github.com/stratumhq/stratum/internal/x/bboltx"
	"go.etcd.io/bbolt"
)

// IsProcessed returns true if a dedup marker exists for the given
// (consumer, event, tenant) combination.
func (ds *dataStore) IsProcessed(
	ctx context.Context,
	consumerName, eventID, tenantID string,
) (_ bool, err error) {
	if err := ds.checkOpen(); err != nil {
		return false, err
	}

	defer bboltx.Recover(&err)

	var found bool

	bboltx.View(
		ds.db,
		func(tx *bbolt.Tx) {
			b := bboltx.Bucket(
				tx,
				processedBucketKey,
				[]byte(consumerName),
				[]byte(tenantID),
			)

			found = b != nil && b.Get([]byte(eventID)) != nil
		},
	)

	return found, nil
}
