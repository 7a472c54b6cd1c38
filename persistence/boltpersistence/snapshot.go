package boltpersistence

import (
	"context"

	"github.com/stratumhq/stratum/internal/x/bboltx"
	"github.com/stratumhq/stratum/persistence"
	"go.etcd.io/bbolt"
)

// SaveSnapshot stores a snapshot of an aggregate, replacing any existing
// snapshot for the same aggregate.
func (ds *dataStore) SaveSnapshot(
	ctx context.Context,
	tenantID, aggregateID string,
	s persistence.Snapshot,
) (err error) {
	if err := s.CheckScope(tenantID, aggregateID); err != nil {
		return err
	}

	if err := ds.checkOpen(); err != nil {
		return err
	}

	defer bboltx.Recover(&err)

	bboltx.Update(
		ds.db,
		func(tx *bbolt.Tx) {
			b := bboltx.CreateBucketIfNotExists(
				tx,
				snapshotsBucketKey,
				[]byte(tenantID),
			)

			bboltx.Put(b, []byte(aggregateID), marshalSnapshot(s))
		},
	)

	return nil
}

// LoadSnapshot returns the snapshot of an aggregate, if one exists.
func (ds *dataStore) LoadSnapshot(
	ctx context.Context,
	tenantID, aggregateID string,
) (_ persistence.Snapshot, _ bool, err error) {
	if err := ds.checkOpen(); err != nil {
		return persistence.Snapshot{}, false, err
	}

	defer bboltx.Recover(&err)

	var (
		s     persistence.Snapshot
		found bool
	)

	bboltx.View(
		ds.db,
		func(tx *bbolt.Tx) {
			b := bboltx.Bucket(
				tx,
				snapshotsBucketKey,
				[]byte(tenantID),
			)
			if b == nil {
				return
			}

			data := b.Get([]byte(aggregateID))
			if data == nil {
				return
			}

			s = unmarshalSnapshot(data)
			found = true
		},
	)

	return s, found, nil
}

// DeleteSnapshot removes the snapshot of an aggregate, if one exists.
func (ds *dataStore) DeleteSnapshot(
	ctx context.Context,
	tenantID, aggregateID string,
) (err error) {
	if err := ds.checkOpen(); err != nil {
		return err
	}

	defer bboltx.Recover(&err)

	bboltx.Update(
		ds.db,
		func(tx *bbolt.Tx) {
			b := bboltx.Bucket(
				tx,
				snapshotsBucketKey,
				[]byte(tenantID),
			)
			if b != nil {
				bboltx.Delete(b, []byte(aggregateID))
			}
		},
	)

	return nil
}
