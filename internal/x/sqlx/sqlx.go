// Package sqlx provides panic-based error handling helpers for
// database/sql, allowing driver code to be written without explicit error
// checks on every statement.
package sqlx

import (
	"context"
	"database/sql"
)

// DB is an interface satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

var (
	_ DB = (*sql.DB)(nil)
	_ DB = (*sql.Tx)(nil)
	_ DB = (*sql.Conn)(nil)
)

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

// Exec executes a statement on the given DB.
func Exec(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) sql.Result {
	res, err := db.ExecContext(ctx, query, args...)
	Must(err)
	return res
}

// Query executes a query on the given DB.
func Query(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) *sql.Rows {
	rows, err := db.QueryContext(ctx, query, args...)
	Must(err)
	return rows
}

// QueryInt64 executes a single-column, single-row query on the given DB and
// returns the result as an int64.
func QueryInt64(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) int64 {
	row := db.QueryRowContext(ctx, query, args...)

	var v int64
	Must(row.Scan(&v))

	return v
}

// TryQueryInt64 executes a single-column, single-row query on the given DB
// and returns the result as an int64.
//
// It returns false if the query produces no rows.
func TryQueryInt64(
	ctx context.Context,
	db DB,
	query string,
	args ...interface{},
) (int64, bool) {
	row := db.QueryRowContext(ctx, query, args...)

	var v int64
	err := row.Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false
	}
	Must(err)

	return v, true
}
