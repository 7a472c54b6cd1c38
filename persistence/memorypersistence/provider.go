// Package memorypersistence implements the persistence interfaces with
// in-memory state.
//
// It is intended for tests and examples. The data-store honors the same
// optimistic-concurrency and dedup semantics as the durable
// implementations, so it can stand in for them in any test.
package memorypersistence

import (
	"context"

	"github.com/stratumhq/stratum/persistence"
)

// Provider is an implementation of persistence.Provider for in-memory
// persistence.
//
// Every call to Open() returns a new, empty data-store. Closing one store
// has no effect on the others.
type Provider struct{}

// Open returns a new data store.
func (p *Provider) Open(ctx context.Context) (persistence.DataStore, error) {
	return &dataStore{
		streams:   map[streamKey][]int{},
		snapshots: map[streamKey]persistence.Snapshot{},
		processed: map[markerKey]persistence.ProcessedEvent{},
		maxGlobal: map[string]uint64{},
	}, nil
}
