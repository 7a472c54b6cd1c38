// Package boltpersistence implements the persistence interfaces using
// BoltDB.
//
// BoltDB serializes write transactions internally, so the append path's
// optimistic concurrency check is race-free by construction: a writer that
// lost the race observes the winner's events and reports a conflict.
package boltpersistence

import (
	"context"
	"os"

	"github.com/stratumhq/stratum/persistence"
	"go.etcd.io/bbolt"
)

// Provider is an implementation of persistence.Provider for BoltDB that
// uses an existing open database.
type Provider struct {
	// DB is the BoltDB database to use.
	DB *bbolt.DB
}

// Open returns the data store.
func (p *Provider) Open(ctx context.Context) (persistence.DataStore, error) {
	return newDataStore(
		p.DB,
		func(db *bbolt.DB) error {
			// Don't actually close the database, since we didn't open it.
			return nil
		},
	), nil
}

// FileProvider is an implementation of persistence.Provider for BoltDB that
// opens a database file.
type FileProvider struct {
	// Path is the path to the BoltDB database file.
	Path string

	// Mode is the file mode for the database file. If it is zero, 0600 is
	// used.
	Mode os.FileMode
}

// Open returns the data store, creating the database file if it does not
// exist.
func (p *FileProvider) Open(ctx context.Context) (persistence.DataStore, error) {
	mode := p.Mode
	if mode == 0 {
		mode = 0600
	}

	db, err := bbolt.Open(p.Path, mode, nil)
	if err != nil {
		return nil, err
	}

	return newDataStore(db, (*bbolt.DB).Close), nil
}
