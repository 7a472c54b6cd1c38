package memorypersistence

import (
	"context"

	"github.com/stratumhq/stratum/persistence"
)

// AppendEvents atomically appends a batch of events to one aggregate's
// stream.
func (ds *dataStore) AppendEvents(
	ctx context.Context,
	r persistence.AppendRequest,
) ([]uint64, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	ds.m.Lock()
	defer ds.m.Unlock()

	if ds.closed {
		return nil, persistence.ErrDataStoreClosed
	}

	k := streamKey{r.TenantID, r.AggregateID}

	current := int64(len(ds.streams[k])) - 1
	if current != r.Expected {
		return nil, persistence.ConflictError{
			TenantID:    r.TenantID,
			AggregateID: r.AggregateID,
			Expected:    r.Expected,
			Actual:      current,
		}
	}

	globals := make([]uint64, 0, len(r.Envelopes))

	for i, env := range r.Envelopes {
		global := uint64(len(ds.events)) + 1

		ev := persistence.Event{
			GlobalSequence: global,
			StreamID:       persistence.StreamID(r.AggregateType, r.AggregateID),
			AggregateID:    r.AggregateID,
			AggregateType:  r.AggregateType,
			SequenceNumber: uint64(r.Expected) + 1 + uint64(i),
			Envelope:       env,
		}

		ds.streams[k] = append(ds.streams[k], len(ds.events))
		ds.events = append(ds.events, ev)
		ds.maxGlobal[r.TenantID] = global

		globals = append(globals, global)
	}

	return globals, nil
}

// ReadStream returns the events of a single aggregate in ascending
// sequence-number order, starting at fromSeq inclusive.
func (ds *dataStore) ReadStream(
	ctx context.Context,
	tenantID, aggregateID string,
	fromSeq uint64,
) (persistence.EventResult, error) {
	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.closed {
		return nil, persistence.ErrDataStoreClosed
	}

	k := streamKey{tenantID, aggregateID}

	var events []persistence.Event
	for _, idx := range ds.streams[k] {
		ev := ds.events[idx]
		if ev.SequenceNumber >= fromSeq {
			events = append(events, ev)
		}
	}

	return &eventResult{events: events}, nil
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
) ([]persistence.Event, error) {
	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.closed {
		return nil, persistence.ErrDataStoreClosed
	}

	var events []persistence.Event

	for _, ev := range ds.events {
		if ev.GlobalSequence < fromGlobal || !pred(ev) {
			continue
		}

		events = append(events, ev)

		if limit > 0 && len(events) == limit {
			break
		}
	}

	return events, nil
}

// CurrentVersion returns the aggregate's highest sequence number, or
// NoStream if the aggregate does not exist.
func (ds *dataStore) CurrentVersion(
	ctx context.Context,
	tenantID, aggregateID string,
) (int64, error) {
	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.closed {
		return 0, persistence.ErrDataStoreClosed
	}

	return int64(len(ds.streams[streamKey{tenantID, aggregateID}])) - 1, nil
}

// MaxGlobalSequence returns the highest global sequence assigned to any of
// the tenant's events.
func (ds *dataStore) MaxGlobalSequence(
	ctx context.Context,
	tenantID string,
) (uint64, error) {
	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.closed {
		return 0, persistence.ErrDataStoreClosed
	}

	return ds.maxGlobal[tenantID], nil
}

// eventResult is an implementation of persistence.EventResult over an
// in-memory slice.
type eventResult struct {
	events []persistence.Event
}

// Next returns the next event in the result.
func (r *eventResult) Next(ctx context.Context) (persistence.Event, bool, error) {
	if err := ctx.Err(); err != nil {
		return persistence.Event{}, false, err
	}

	if len(r.events) == 0 {
		return persistence.Event{}, false, nil
	}

	ev := r.events[0]
	r.events = r.events[1:]

	return ev, true, nil
}

// Close closes the cursor.
func (r *eventResult) Close() error {
	return nil
}
