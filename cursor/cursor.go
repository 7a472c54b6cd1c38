package cursor

import "fmt"

// A Cursor is an opaque, resumable position in the global event sequence.
//
// Cursors are pure values. They are advanced by catch-up readers as events
// are observed, and compared to decide whether one reader's position
// subsumes another's. They are never persisted by this package; a consumer
// that needs a durable resume position stores it alongside its own state.
type Cursor struct {
	seq uint64
}

// Initial returns a cursor positioned before the first event in the global
// sequence.
func Initial() Cursor {
	return Cursor{}
}

// Head returns a cursor positioned at the current end of the global
// sequence.
//
// max is the highest global sequence that has been assigned, as reported by
// the event repository.
func Head(max uint64) Cursor {
	return Cursor{seq: max}
}

// At returns a cursor positioned at a specific global sequence.
func At(seq uint64) Cursor {
	return Cursor{seq: seq}
}

// Next returns the global sequence of the next event to be read when
// resuming from this cursor.
func (c Cursor) Next() uint64 {
	return c.seq + 1
}

// Seq returns the global sequence of the last event covered by this cursor,
// or zero if the cursor is at its initial position.
func (c Cursor) Seq() uint64 {
	return c.seq
}

// IsInitial returns true if the cursor is at its initial position, that is,
// no event has been observed through it.
func (c Cursor) IsInitial() bool {
	return c.seq == 0
}

// Covers returns true if c is at or past o.
//
// A cursor that covers another has observed at least every event the other
// has observed.
func (c Cursor) Covers(o Cursor) bool {
	return c.seq >= o.seq
}

// AdvanceTo returns a cursor positioned at seq.
//
// It panics if seq is not ahead of the cursor's current position. A cursor
// only ever moves forward, and only as a result of successfully processing
// an event with a greater global sequence.
func (c Cursor) AdvanceTo(seq uint64) Cursor {
	if seq <= c.seq {
		panic(fmt.Sprintf(
			"can not advance cursor from %d to %d",
			c.seq,
			seq,
		))
	}

	return Cursor{seq: seq}
}

// UpperBound returns the furthest ahead of the two cursors.
//
// It is used to merge the positions of parallel segments of the same
// logical consumer.
func UpperBound(a, b Cursor) Cursor {
	if a.Covers(b) {
		return a
	}

	return b
}

// LowerBound returns the furthest behind of the two cursors.
//
// Resuming from the lower bound of a set of parallel segments never skips
// an event, at the cost of possibly re-observing some.
func LowerBound(a, b Cursor) Cursor {
	if a.Covers(b) {
		return b
	}

	return a
}

// String returns a human-readable representation of the cursor.
func (c Cursor) String() string {
	return fmt.Sprintf("cursor<%d>", c.seq)
}
