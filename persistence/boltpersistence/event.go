package boltpersistence

import (
	"context"

	"github.com/stratumhq/stratum/internal/x/bboltx"
	"github.com/stratumhq/stratum/persistence"
	"go.etcd.io/bbolt"
)

// AppendEvents atomically appends a batch of events to one aggregate's
// stream.
func (ds *dataStore) AppendEvents(
	ctx context.Context,
	r persistence.AppendRequest,
) (_ []uint64, err error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	defer bboltx.Recover(&err)

	var globals []uint64

	bboltx.Update(
		ds.db,
		func(tx *bbolt.Tx) {
			stream := bboltx.CreateBucketIfNotExists(
				tx,
				streamsBucketKey,
				[]byte(r.TenantID),
				[]byte(r.AggregateID),
			)

			current := currentVersion(stream)
			if current != r.Expected {
				bboltx.Must(persistence.ConflictError{
					TenantID:    r.TenantID,
					AggregateID: r.AggregateID,
					Expected:    r.Expected,
					Actual:      current,
				})
			}

			log := bboltx.CreateBucketIfNotExists(tx, eventsBucketKey)
			max := bboltx.CreateBucketIfNotExists(tx, tenantMaxBucketKey)

			for i, env := range r.Envelopes {
				global, err := log.NextSequence()
				bboltx.Must(err)

				ev := persistence.Event{
					GlobalSequence: global,
					StreamID:       persistence.StreamID(r.AggregateType, r.AggregateID),
					AggregateID:    r.AggregateID,
					AggregateType:  r.AggregateType,
					SequenceNumber: uint64(r.Expected) + 1 + uint64(i),
					Envelope:       env,
				}

				bboltx.Put(log, marshalUint64(global), marshalEvent(ev))
				bboltx.Put(stream, marshalUint64(ev.SequenceNumber), marshalUint64(global))
				bboltx.Put(max, []byte(r.TenantID), marshalUint64(global))

				globals = append(globals, global)
			}
		},
	)

	return globals, nil
}

// currentVersion returns the highest sequence number in a stream bucket, or
// NoStream if the bucket is empty.
func currentVersion(stream *bbolt.Bucket) int64 {
	k, _ := stream.Cursor().Last()
	if k == nil {
		return persistence.NoStream
	}

	return int64(unmarshalUint64(k))
}

// ReadStream returns the events of a single aggregate in ascending
// sequence-number order, starting at fromSeq inclusive.
func (ds *dataStore) ReadStream(
	ctx context.Context,
	tenantID, aggregateID string,
	fromSeq uint64,
) (persistence.EventResult, error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	return &streamResult{
		db:          ds.db,
		tenantID:    tenantID,
		aggregateID: aggregateID,
		seq:         fromSeq,
	}, nil
}

// streamResult is an implementation of persistence.EventResult that reads
// one aggregate's stream.
//
// Each call to Next() uses its own read transaction, so the result observes
// events appended after it was opened.
type streamResult struct {
	db          *bbolt.DB
	tenantID    string
	aggregateID string
	seq         uint64
}

// Next returns the next event in the result.
func (r *streamResult) Next(ctx context.Context) (_ persistence.Event, _ bool, err error) {
	defer bboltx.Recover(&err)

	if err := ctx.Err(); err != nil {
		return persistence.Event{}, false, err
	}

	var (
		ev    persistence.Event
		found bool
	)

	bboltx.View(
		r.db,
		func(tx *bbolt.Tx) {
			stream := bboltx.Bucket(
				tx,
				streamsBucketKey,
				[]byte(r.tenantID),
				[]byte(r.aggregateID),
			)
			if stream == nil {
				return
			}

			global := stream.Get(marshalUint64(r.seq))
			if global == nil {
				return
			}

			log := bboltx.Bucket(tx, eventsBucketKey)
			data := log.Get(global)

			ev = unmarshalEvent(unmarshalUint64(global), data)
			found = true
		},
	)

	if found {
		r.seq++
	}

	return ev, found, nil
}

// Close closes the cursor.
func (r *streamResult) Close() error {
	return nil
}

// ReadFromGlobal returns up to limit events belonging to one tenant, in
// ascending global-sequence order, starting at fromGlobal inclusive.
func (ds *dataStore) ReadFromGlobal(
	ctx context.Context,
	tenantID string,
	fromGlobal uint64,
	limit int,
) ([]persistence.Event, error) {
	return ds.readGlobal(
		fromGlobal,
		limit,
		func(ev persistence.Event) bool {
			return ev.TenantID() == tenantID
		},
	)
}

// ReadGlobal returns up to limit events across all tenants, in ascending
// global-sequence order, starting at fromGlobal inclusive.
func (ds *dataStore) ReadGlobal(
	ctx context.Context,
	fromGlobal uint64,
	limit int,
) ([]persistence.Event, error) {
	return ds.readGlobal(
		fromGlobal,
		limit,
		func(persistence.Event) bool {
			return true
		},
	)
}

func (ds *dataStore) readGlobal(
	fromGlobal uint64,
	limit int,
	pred func(persistence.Event) bool,
) (_ []persistence.Event, err error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	defer bboltx.Recover(&err)

	var events []persistence.Event

	bboltx.View(
		ds.db,
		func(tx *bbolt.Tx) {
			log := bboltx.Bucket(tx, eventsBucketKey)
			if log == nil {
				return
			}

			c := log.Cursor()

			for k, v := c.Seek(marshalUint64(fromGlobal)); k != nil; k, v = c.Next() {
				ev := unmarshalEvent(unmarshalUint64(k), v)

				if !pred(ev) {
					continue
				}

				events = append(events, ev)

				if limit > 0 && len(events) == limit {
					return
				}
			}
		},
	)

	return events, nil
}

// CurrentVersion returns the aggregate's highest sequence number, or
// NoStream if the aggregate does not exist.
func (ds *dataStore) CurrentVersion(
	ctx context.Context,
	tenantID, aggregateID string,
) (_ int64, err error) {
	if err := ds.checkOpen(); err != nil {
		return 0, err
	}

	defer bboltx.Recover(&err)

	version := persistence.NoStream

	bboltx.View(
		ds.db,
		func(tx *bbolt.Tx) {
			stream := bboltx.Bucket(
				tx,
				streamsBucketKey,
				[]byte(tenantID),
				[]byte(aggregateID),
			)
			if stream != nil {
				version = currentVersion(stream)
			}
		},
	)

	return version, nil
}

// MaxGlobalSequence returns the highest global sequence assigned to any of
// the tenant's events.
func (ds *dataStore) MaxGlobalSequence(
	ctx context.Context,
	tenantID string,
) (_ uint64, err error) {
	if err := ds.checkOpen(); err != nil {
		return 0, err
	}

	defer bboltx.Recover(&err)

	var max uint64

	bboltx.View(
		ds.db,
		func(tx *bbolt.Tx) {
			if b := bboltx.Bucket(tx, tenantMaxBucketKey); b != nil {
				max = unmarshalUint64(b.Get([]byte(tenantID)))
			}
		},
	)

	return max, nil
}
