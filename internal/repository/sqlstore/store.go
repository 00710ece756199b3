// Package sqlstore implements the repository interfaces on database/sql.
//
// One code path serves three databases; the dialect (dialect.go) is
// chosen from the DATABASE_URL scheme:
//
//   - SQLite via modernc.org/sqlite (pure Go, no CGo), the default
//   - PostgreSQL via github.com/lib/pq
//   - MySQL via github.com/go-sql-driver/mysql
//
// The driver packages are imported by name in dialect.go; their init()
// functions register "sqlite", "postgres" and "mysql" with database/sql.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB:   a connection pool (NOT a single connection!)
//   - sql.Tx:   a transaction pinned to one pooled connection
//   - sql.Rows: multiple result rows (must be closed!)
//
// Every statement borrows a connection from the pool for its duration
// and returns it afterwards; read-modify-write operations borrow one
// for the whole transaction (see withTx).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const pingTimeout = 5 * time.Second

// DB is the shared handle. Users() and Tasks() expose the two
// repositories over the same pool.
type DB struct {
	conn    *sql.DB
	dialect dialect
}

// Open connects to databaseURL, verifies the connection and runs the
// idempotent schema migration.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	d, dsn, err := parseDatabaseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: %w", err)
	}

	if d.name == "sqlite" {
		if err := ensureDir(dsn); err != nil {
			return nil, fmt.Errorf("sqlstore: %w", err)
		}
	}

	conn, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening %s database: %w", d.name, err)
	}

	// SQLite allows a single writer, and each connection to ":memory:"
	// is a separate database, so the pool is pinned to one connection.
	if d.singleConn {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(25)
		conn.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: pinging %s database: %w", d.name, err)
	}

	db := &DB{conn: conn, dialect: d}

	for _, stmt := range d.setup {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlstore: %s: %w", stmt, err)
		}
	}

	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}

	return db, nil
}

// Dialect reports which database is behind the pool: sqlite, postgres or mysql.
func (db *DB) Dialect() string {
	return db.dialect.name
}

// Ping checks the database is reachable. Used by the readiness check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the tables if they do not exist yet.
// CREATE TABLE IF NOT EXISTS is safe to run on every start.
func (db *DB) migrate(ctx context.Context) error {
	for _, stmt := range db.dialect.schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// withTx runs fn in a transaction. The deferred Rollback releases the
// connection on every exit path, error and panic included; after a
// successful Commit it is a no-op.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// now is the store clock. Timestamps are UTC with microsecond precision,
// the finest resolution all three databases keep.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// nextTimestamp returns a timestamp strictly after prev, normally the
// current time. Two writes inside the same microsecond still produce
// increasing updated_at values.
func nextTimestamp(prev time.Time) time.Time {
	t := now()
	if !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}

// ensureDir creates the parent directory of a SQLite file path.
func ensureDir(dsn string) error {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" || strings.HasPrefix(path, ":") {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}
