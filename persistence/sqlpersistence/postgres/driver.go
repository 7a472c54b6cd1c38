// Package postgres provides the PostgreSQL driver for SQL persistence.
package postgres

import (
	"errors"

	"github.com/lib/pq"
	"github.com/stratumhq/stratum/persistence/sqlpersistence"
)

// Driver is an implementation of sqlpersistence.Driver for PostgreSQL.
var Driver sqlpersistence.Driver = driver{}

type driver struct{}

// uniqueViolation is the PostgreSQL error code for a unique-constraint
// violation.
const uniqueViolation = "23505"

// isUniqueViolation returns true if err represents a PostgreSQL
// unique-constraint violation.
func isUniqueViolation(err error) bool {
	var perr *pq.Error
	return errors.As(err, &perr) && perr.Code == uniqueViolation
}
