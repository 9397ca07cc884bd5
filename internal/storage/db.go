// Package storage provides the SQLite-backed key-value store that holds the
// blocker's persisted state.
//
// Every value is a JSON document stored under a well-known key (see keys.go).
// Collections such as the whitelist or the blocked-domain map are stored in
// array form. The schema is versioned with golang-migrate; every write bumps
// a global version counter via triggers.
package storage

import (
	"bytes"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/jroosing/hydrablock/internal/pool"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a SQLite database connection with thread-safe operations.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
	bufs *pool.Pool[*bytes.Buffer]
}

// Open opens or creates a SQLite database at the given path and applies any
// pending migrations. Use ":memory:" for a throwaway database.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	if path == ":memory:" {
		dsn = ":memory:"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{conn: conn, bufs: pool.NewBufferPool()}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}

// migrate applies embedded migrations up to the latest version.
func (db *DB) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	drv, err := migratesqlite.WithInstance(db.conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (db *DB) SchemaVersion() (uint, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var version uint
	err := db.conn.QueryRow("SELECT version FROM schema_migrations LIMIT 1").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetVersion returns the data version. It increments on every write.
func (db *DB) GetVersion() (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var version int64
	err := db.conn.QueryRow("SELECT version FROM kv_version WHERE id = 1").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get data version: %w", err)
	}
	return version, nil
}

// Health checks database connectivity.
func (db *DB) Health() error {
	return db.conn.Ping()
}
