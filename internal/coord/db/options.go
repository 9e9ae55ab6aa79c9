// Package db provides the embedded SQLite options store used by the sync coordinator.
//
// The host site keeps all of its settings in a generic key-value "options"
// table: opaque serialized values keyed by name, with get/update/delete
// semantics and no schema beyond that. This package implements that table
// on an embedded SQLite database.
//
// Architecture:
//   - Database file: .cdsync/options.db (configurable)
//   - WAL mode: concurrent readers during writes
//   - Schema: a single options table keyed by name
//   - Writes: full replace per key, last writer wins
//
// No locking is layered on top: SQLite serializes writes, and the
// coordinator tolerates losing a concurrently-written value.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection that backs the options table.
type DB struct {
	conn *sql.DB
	path string
}

// Option is one row of the options table.
type Option struct {
	Name      string
	Value     string
	Autoload  bool
	UpdatedAt time.Time
}

// Open creates a new database connection at the specified path.
//
// The database is opened in WAL mode with a busy timeout. The schema is
// created if it does not exist yet.
//
// The caller MUST call Close() when done to ensure proper cleanup.
//
// Example:
//
//	database, err := db.Open(".cdsync/options.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
func Open(path string) (*DB, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext opens the database with context support.
func OpenContext(ctx context.Context, path string) (*DB, error) {
	path = strings.TrimPrefix(path, "file:")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := db.conn.ExecContext(ctx, p.stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to %s: %w", p.what, err)
		}
	}

	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchemaContext creates the options table if it doesn't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS options (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		autoload INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_options_autoload ON options(autoload);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// GetOption returns the stored value for name.
// found is false (with a nil error) when the option does not exist.
func (db *DB) GetOption(name string) (value string, found bool, err error) {
	return db.GetOptionContext(context.Background(), name)
}

// GetOptionContext returns the stored value with context support.
func (db *DB) GetOptionContext(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM options WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get option %s: %w", name, err)
	}
	return value, true, nil
}

// UpdateOption inserts or replaces the value for name.
// The whole value is replaced, never merged.
func (db *DB) UpdateOption(name, value string) error {
	return db.UpdateOptionContext(context.Background(), name, value)
}

// UpdateOptionContext inserts or replaces the value with context support.
func (db *DB) UpdateOptionContext(ctx context.Context, name, value string) error {
	if name == "" {
		return fmt.Errorf("option name is required")
	}

	query := `
	INSERT INTO options (name, value, autoload, updated_at)
	VALUES (?, ?, 1, ?)
	ON CONFLICT(name) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query, name, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to update option %s: %w", name, err)
	}
	return nil
}

// DeleteOption removes name.
// Returns nil if the option doesn't exist (idempotent).
func (db *DB) DeleteOption(name string) error {
	return db.DeleteOptionContext(context.Background(), name)
}

// DeleteOptionContext removes an option with context support.
func (db *DB) DeleteOptionContext(ctx context.Context, name string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM options WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete option %s: %w", name, err)
	}
	return nil
}

// ListOptions returns all options whose name starts with prefix.
func (db *DB) ListOptions(prefix string) ([]Option, error) {
	return db.ListOptionsContext(context.Background(), prefix)
}

// ListOptionsContext returns all options whose name starts with prefix,
// ordered by name. An empty prefix lists everything.
func (db *DB) ListOptionsContext(ctx context.Context, prefix string) ([]Option, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT name, value, autoload, updated_at FROM options WHERE name LIKE ? ESCAPE '\' ORDER BY name`,
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list options: %w", err)
	}
	defer rows.Close()

	var opts []Option
	for rows.Next() {
		var (
			o         Option
			autoload  int
			updatedAt string
		)
		if err := rows.Scan(&o.Name, &o.Value, &autoload, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		o.Autoload = autoload != 0
		if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			o.UpdatedAt = t
		}
		opts = append(opts, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating options: %w", err)
	}
	return opts, nil
}

// GetOptionCount returns the number of stored options.
func (db *DB) GetOptionCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM options`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count options: %w", err)
	}
	return count, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
