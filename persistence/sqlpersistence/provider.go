// Package sqlpersistence implements the persistence interfaces using SQL
// databases.
//
// Database-specific behavior lives behind the Driver interface; the postgres
// and sqlite sub-packages provide implementations. Schema creation is
// explicit and separate from opening a data store, see the CreateSchema()
// function in the dialect packages.
package sqlpersistence

import (
	"context"
	"database/sql"

	"github.com/stratumhq/stratum/persistence"
)

// Provider is an implementation of persistence.Provider that uses an
// existing open database pool.
type Provider struct {
	// DB is the database to use.
	DB *sql.DB

	// Driver is the database-specific driver.
	Driver Driver
}

// Open returns the data store.
func (p *Provider) Open(ctx context.Context) (persistence.DataStore, error) {
	return newDataStore(
		p.DB,
		p.Driver,
		func(db *sql.DB) error {
			// Don't actually close the database, since we didn't open it.
			return nil
		},
	), nil
}

// DSNProvider is an implementation of persistence.Provider that opens a
// database pool from a DSN.
type DSNProvider struct {
	// DriverName is the name of the database/sql driver to use.
	DriverName string

	// DSN is the data-source name to open.
	DSN string

	// Driver is the database-specific driver.
	Driver Driver
}

// Open returns the data store.
func (p *DSNProvider) Open(ctx context.Context) (persistence.DataStore, error) {
	db, err := sql.Open(p.DriverName, p.DSN)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return newDataStore(db, p.Driver, (*sql.DB).Close), nil
}
