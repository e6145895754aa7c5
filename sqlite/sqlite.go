// Package sqlite provides SQLite-based storage implementations for smartcrawl services.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB represents a SQLite database connection.
type DB struct {
	db   *sql.DB
	path string
}

// NewDB creates a new DB instance with the given path.
// Use ":memory:" for an in-memory database.
func NewDB(path string) *DB {
	return &DB{path: path}
}

// pragmas are applied to every new database connection in order.
var pragmas = []struct {
	stmt     string
	onDisk   bool
	errLabel string
}{
	{"PRAGMA busy_timeout = 5000", false, "set busy timeout"},
	{"PRAGMA journal_mode = WAL", true, "enable WAL mode"},
	{"PRAGMA synchronous = NORMAL", true, "relax synchronous mode"},
	{"PRAGMA foreign_keys = ON", false, "enable foreign keys"},
}

// Open opens the database connection and creates the schema if needed.
// A single connection serialises writers; the crawl engine writes every
// frontier transition through it.
func (db *DB) Open() error {
	conn, err := sql.Open("sqlite3", db.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	inMemory := db.path == ":memory:"
	for _, p := range pragmas {
		if p.onDisk && inMemory {
			continue
		}
		if _, err := conn.Exec(p.stmt); err != nil {
			conn.Close()
			return fmt.Errorf("failed to %s: %w", p.errLabel, err)
		}
	}

	db.db = conn
	if err := db.createSchema(); err != nil {
		conn.Close()
		db.db = nil
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// QueryRowContext executes a query that returns a single row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// ExecContext executes a statement that doesn't return rows.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return db.db.BeginTx(ctx, opts)
}

// createSchema creates the database tables if they don't exist.
func (db *DB) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			seeds TEXT NOT NULL DEFAULT '[]',
			policy TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			discovered INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			blocked INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			retried INTEGER NOT NULL DEFAULT 0,
			stop_requested INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			started_at TEXT NOT NULL DEFAULT '',
			finished_at TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

		CREATE TABLE IF NOT EXISTS frontier_entries (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			dedup_key TEXT NOT NULL,
			parent_url TEXT NOT NULL DEFAULT '',
			depth INTEGER NOT NULL DEFAULT 0,
			source TEXT NOT NULL,
			page INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			seq INTEGER NOT NULL,
			excluded_proxies TEXT NOT NULL DEFAULT '[]',
			ready_at TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (session_id, dedup_key)
		);

		CREATE INDEX IF NOT EXISTS idx_frontier_entries_session_state ON frontier_entries(session_id, state);

		CREATE TABLE IF NOT EXISTS fetch_outcomes (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			entry_id TEXT NOT NULL REFERENCES frontier_entries(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			status TEXT NOT NULL,
			terminal INTEGER NOT NULL DEFAULT 0,
			status_code INTEGER NOT NULL DEFAULT 0,
			duration INTEGER NOT NULL DEFAULT 0,
			proxy_id TEXT NOT NULL DEFAULT '',
			classification TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_fetch_outcomes_entry_id ON fetch_outcomes(entry_id);

		CREATE TABLE IF NOT EXISTS proxies (
			id TEXT PRIMARY KEY,
			endpoint TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL DEFAULT '',
			protocols TEXT NOT NULL DEFAULT '[]',
			country TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS proxy_performance (
			proxy_id TEXT PRIMARY KEY REFERENCES proxies(id) ON DELETE CASCADE,
			total_requests INTEGER NOT NULL DEFAULT 0,
			failed_requests INTEGER NOT NULL DEFAULT 0,
			consecutive_failures INTEGER NOT NULL DEFAULT 0,
			total_response_time INTEGER NOT NULL DEFAULT 0,
			average_response_time INTEGER NOT NULL DEFAULT 0,
			success_rate REAL NOT NULL DEFAULT 0,
			last_success_at TEXT NOT NULL DEFAULT '',
			last_failure_at TEXT NOT NULL DEFAULT ''
		);
	`

	_, err := db.db.Exec(schema)
	return err
}
