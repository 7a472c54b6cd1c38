package sqlite_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/gomega"
	"github.com/stratumhq/stratum/internal/testing/providertest"
	"github.com/stratumhq/stratum/persistence/sqlpersistence"
	"github.com/stratumhq/stratum/persistence/sqlpersistence/sqlite"

	_ "github.com/mattn/go-sqlite3"
)

var _ = Describe("type Driver", func() {
	var (
		dir string
		db  *sql.DB
	)

	providertest.Declare(
		func(ctx context.Context) providertest.Out {
			var err error
			dir, err = os.MkdirTemp("", "stratum-sqlite-*")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			// An immediate transaction lock makes concurrent writers queue
			// for the database instead of failing with SQLITE_BUSY.
			dsn := "file:" + filepath.Join(dir, "stratum.db") +
				"?_busy_timeout=10000&_txlock=immediate"

			db, err = sql.Open("sqlite3", dsn)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = sqlite.CreateSchema(ctx, db)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			return providertest.Out{
				Provider: &sqlpersistence.Provider{
					DB:     db,
					Driver: sqlite.Driver,
				},
			}
		},
		func() {
			if db != nil {
				db.Close()
				db = nil
			}

			if dir != "" {
				os.RemoveAll(dir)
				dir = ""
			}
		},
	)
})
