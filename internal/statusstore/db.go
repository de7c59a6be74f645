package statusstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the store schema migrations
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// DB wraps sql.DB with the driver it was opened with
type DB struct {
	*sql.DB
	driver string
}

// Config holds status store connection configuration
type Config struct {
	Driver          string        `toml:"driver"`
	DSN             string        `toml:"dsn"`
	TestingDSN      string        `toml:"testing_dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

// Standard errors
var (
	ErrStoreConnection = errors.New("statusstore: store unreachable")
	ErrWindowRequired  = errors.New("statusstore: query window is required")
	ErrMalformedRecord = errors.New("statusstore: malformed record")
)

// ConnectionError reports that the backing store could not be reached.
// It is fatal for a reconciliation pass.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("statusstore: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrStoreConnection
}

// Open connects to the store and verifies the connection
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &ConnectionError{Op: "open", Err: err}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &ConnectionError{Op: "ping", Err: err}
	}

	return &DB{
		DB:     db,
		driver: driver,
	}, nil
}

// OpenWithConfig opens the production or testing endpoint and applies pool settings
func OpenWithConfig(ctx context.Context, config Config, testing bool) (*DB, error) {
	dsn := config.DSN
	if testing {
		dsn = config.TestingDSN
	}

	db, err := Open(ctx, config.Driver, dsn)
	if err != nil {
		return nil, err
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	return db, nil
}

// Driver returns the database driver name
func (db *DB) Driver() string {
	return db.driver
}

// rebind rewrites ? placeholders into the driver's bind syntax
func (db *DB) rebind(query string) string {
	if db.driver != "postgres" && db.driver != "postgresql" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsConnectionError checks if err is pass-fatal store unavailability
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrStoreConnection)
}
