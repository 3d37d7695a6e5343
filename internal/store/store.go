// Package store provides embedded SQLite persistence for keel.
//
// The database runs in embedded mode using the ncruces/go-sqlite3 driver
// with WAL for concurrency support.
//
// Architecture:
//   - Database file: .keel/keel.db (configurable)
//   - WAL mode: concurrent readers during writes
//   - Schema: tasks, file_links, pruned_files, activity_log tables
//   - Indexes: optimized for status-cohort scans used by the completion
//     detector (project_id, status)
//
// All task mutations happen inside transactions. Callers that need a
// read-check-write sequence atomic with respect to other writers (status
// transitions, pruning) use WithTx; single-statement operations use the
// Store methods directly.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a task, link, or pruned-file row does not
// exist. Check with errors.Is().
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite database connection.
type Store struct {
	conn *sql.DB
	path string
}

// Tx is a transaction-scoped view of the store. It exposes the same query
// surface as Store for operations that must share a transaction, such as
// prune-then-transition sequences.
type Tx struct {
	tx *sql.Tx
}

// dbtx is the common query surface of *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates a new database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the database doesn't exist it is created; call InitSchema afterwards.
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn: conn,
		path: path,
	}

	// Enable WAL mode for concurrent reads
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Wait out transient lock contention instead of failing immediately
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := s.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return s, nil
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent - safe to call multiple times.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		acceptance_criteria TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'todo',
		priority INTEGER NOT NULL DEFAULT 2,
		assigned_agent TEXT NOT NULL DEFAULT '',
		layer TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',  -- JSON array
		created_at INTEGER NOT NULL,      -- epoch seconds
		updated_at INTEGER NOT NULL       -- epoch seconds
	);

	CREATE TABLE IF NOT EXISTS file_links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		task_id INTEGER NOT NULL,
		file_path TEXT NOT NULL,
		action TEXT NOT NULL DEFAULT 'edit',  -- create, edit, delete (informational)
		created_at INTEGER NOT NULL,
		UNIQUE (project_id, task_id, file_path),
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	-- Append-only audit of links removed because the file vanished from disk.
	-- Rows are immutable except decision_id, settable exactly once from NULL.
	CREATE TABLE IF NOT EXISTS pruned_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		task_id INTEGER NOT NULL,
		file_path TEXT NOT NULL,
		pruned_at INTEGER NOT NULL,
		decision_id INTEGER,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	-- The only audit mechanism for status history.
	CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL,
		old_status TEXT NOT NULL,
		new_status TEXT NOT NULL,
		agent TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_project_status ON tasks(project_id, status);
	CREATE INDEX IF NOT EXISTS idx_tasks_assigned ON tasks(assigned_agent);
	CREATE INDEX IF NOT EXISTS idx_links_task ON file_links(task_id);
	CREATE INDEX IF NOT EXISTS idx_links_project ON file_links(project_id);
	CREATE INDEX IF NOT EXISTS idx_pruned_task ON pruned_files(task_id);
	CREATE INDEX IF NOT EXISTS idx_activity_task ON activity_log(task_id);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// WithTx runs fn inside a transaction. The transaction is rolled back if
// fn returns an error or panics, and committed otherwise. Rollback on
// failure leaves no partial state, so transient errors are safe to retry
// at the caller layer.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
