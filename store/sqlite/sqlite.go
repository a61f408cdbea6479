/*
Package sqlite opens the CIG store on SQLite.

PURPOSE:
  Supplies the SQLite dialect to store/sqldb and the driver wiring for two
  drivers:
    DriverCGO  ("sqlite3"): github.com/mattn/go-sqlite3, the default
    DriverPure ("sqlite"):  modernc.org/sqlite, for CGO_ENABLED=0 builds

CONCURRENCY:
  SQLite has a single writer. The pool is capped at one connection, so every
  transaction is serialized by database/sql itself and no key lock is needed.
  It also keeps ":memory:" databases alive for the life of the Store.

WAL MODE:
  File databases are opened with WAL and foreign keys on:
  - Multiple readers don't block
  - Single writer at a time
  - ON DELETE CASCADE / SET NULL are enforced

USAGE:
  store, err := sqlite.New(ctx, "./data/cig.db")
  if err != nil {
      return err
  }
  defer store.Close()

SEE ALSO:
  - store/sqldb: Queries and schema
  - store/postgres: Multi-writer deployment
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/agrilink/cig-engine/store/sqldb"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	DriverCGO  = "sqlite3"
	DriverPure = "sqlite"
)

// Dialect returns the SQLite dialect for sqldb.
func Dialect() sqldb.Dialect {
	return sqldb.Dialect{
		Name:                  "sqlite",
		Schema:                sqldb.Schema("INTEGER PRIMARY KEY AUTOINCREMENT"),
		IsUniqueViolation:     isUniqueConstraintError,
		IsForeignKeyViolation: isForeignKeyError,
	}
}

// New opens dbPath with the cgo driver. Use ":memory:" for an in-memory database.
func New(ctx context.Context, dbPath string, opts ...sqldb.Option) (*sqldb.Store, error) {
	return Open(ctx, DriverCGO, dbPath, opts...)
}

// Open opens dbPath with the named driver.
func Open(ctx context.Context, driver, dbPath string, opts ...sqldb.Option) (*sqldb.Store, error) {
	dsn, err := DSN(driver, dbPath)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := sqldb.Open(ctx, db, Dialect(), opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// DSN builds the connection string for driver.
func DSN(driver, dbPath string) (string, error) {
	switch driver {
	case DriverCGO:
		return dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", nil
	case DriverPure:
		name := dbPath
		if name == ":memory:" {
			name = "file::memory:"
		} else if !strings.HasPrefix(name, "file:") {
			name = "file:" + name
		}
		return name + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	}
	return "", fmt.Errorf("unknown sqlite driver %q", driver)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
