// Package bboltx provides panic-based error handling helpers for BoltDB,
// allowing persistence code to be written without explicit error checks on
// every bucket operation.
package bboltx

import "go.etcd.io/bbolt"

// PanicSentinel is a wrapper value used to identify panics that are caused
// by the Must() function.
type PanicSentinel struct {
	// Cause is the error that caused the panic.
	Cause error
}

// Must panics if err is non-nil.
func Must(err error) {
	if err != nil {
		panic(PanicSentinel{err})
	}
}

// Recover recovers from a panic caused by Must().
//
// It is intended to be used in a defer statement. The error that caused the
// panic is assigned to *err.
func Recover(err *error) {
	if err == nil {
		panic("err must be a non-nil pointer")
	}

	switch v := recover().(type) {
	case PanicSentinel:
		*err = v.Cause
	case nil:
	default:
		panic(v)
	}
}

// View executes a read-only transaction.
func View(db *bbolt.DB, fn func(*bbolt.Tx)) {
	Must(db.View(
		func(tx *bbolt.Tx) error {
			fn(tx)
			return nil
		},
	))
}

// Update executes a read/write transaction.
func Update(db *bbolt.DB, fn func(*bbolt.Tx)) {
	Must(db.Update(
		func(tx *bbolt.Tx) error {
			fn(tx)
			return nil
		},
	))
}
