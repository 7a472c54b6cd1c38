package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/stratumhq/stratum/persistence"
	"github.com/stratumhq/stratum/persistence/boltpersistence"
	"github.com/stratumhq/stratum/persistence/memorypersistence"
	"github.com/stratumhq/stratum/persistence/sqlpersistence"
	"github.com/stratumhq/stratum/persistence/sqlpersistence/postgres"
	"github.com/stratumhq/stratum/persistence/sqlpersistence/sqlite"
)

// config is the daemon's configuration, read from the environment.
type config struct {
	// Driver selects the persistence backend, one of "boltdb", "sqlite",
	// "postgres" or "memory".
	Driver string `env:"STRATUM_PERSISTENCE_DRIVER" envDefault:"boltdb"`

	// BoltPath is the path to the BoltDB file used by the "boltdb" driver.
	BoltPath string `env:"STRATUM_BOLTDB_PATH" envDefault:"/var/run/stratum.boltdb"`

	// DSN is the data source name used by the "sqlite" and "postgres"
	// drivers.
	DSN string `env:"STRATUM_PERSISTENCE_DSN"`

	// Debug controls whether debug-level log messages are written.
	Debug bool `env:"STRATUM_DEBUG"`
}

// loadConfig reads the daemon's configuration from the environment.
func loadConfig() (config, error) {
	var cfg config

	if err := env.Parse(&cfg); err != nil {
		return config{}, err
	}

	return cfg, nil
}

// provider returns the persistence provider selected by the configuration,
// creating the SQL schema if the backend requires one.
func (c config) provider(ctx context.Context) (persistence.Provider, error) {
	switch c.Driver {
	case "boltdb":
		return &boltpersistence.FileProvider{
			Path: c.BoltPath,
		}, nil

	case "sqlite":
		return c.sqlProvider(ctx, "sqlite3", sqlite.Driver, sqlite.CreateSchema)

	case "postgres":
		return c.sqlProvider(ctx, "postgres", postgres.Driver, postgres.CreateSchema)

	case "memory":
		return &memorypersistence.Provider{}, nil

	default:
		return nil, fmt.Errorf("unrecognized persistence driver: %s", c.Driver)
	}
}

func (c config) sqlProvider(
	ctx context.Context,
	name string,
	d sqlpersistence.Driver,
	createSchema func(context.Context, *sql.DB) error,
) (persistence.Provider, error) {
	if c.DSN == "" {
		return nil, fmt.Errorf("the %s driver requires STRATUM_PERSISTENCE_DSN", c.Driver)
	}

	db, err := sql.Open(name, c.DSN)
	if err != nil {
		return nil, err
	}

	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqlpersistence.Provider{
		DB:     db,
		Driver: d,
	}, nil
}
