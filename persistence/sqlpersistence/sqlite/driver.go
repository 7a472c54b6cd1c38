// Package sqlite provides the SQLite driver for SQL persistence.
//
// SQLite permits a single writer at a time. Open the database with the
// "_txlock=immediate" and "_busy_timeout" DSN options so that concurrent
// writers queue for the write lock instead of failing with SQLITE_BUSY.
package sqlite

import (
	"errors"

	"github.com/mattn/go-sqlite3"
	"github.com/stratumhq/stratum/persistence/sqlpersistence"
)

// Driver is an implementation of sqlpersistence.Driver for SQLite.
var Driver sqlpersistence.Driver = driver{}

type driver struct{}

// isUniqueViolation returns true if err represents a SQLite
// unique-constraint violation.
func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}

	return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
