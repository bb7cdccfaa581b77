// Package state implements the StateStore: the versioned PersistedState
// JSON file (state.go, migrate.go) plus the embedded autonoma.db SQL store
// for memories, the human-queue, retry contexts, and the full-text index
// over task and memory text (db.go).
package state

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// DB wraps the embedded autonoma.db connection pair: a single write
// connection (SQLite permits only one writer) and a pooled read-only
// connection, so status queries never block behind an in-flight write.
type DB struct {
	mu     sync.Mutex
	write  *sql.DB
	read   *sql.DB
	maxRetries int
	baseWait   time.Duration
}

// Open creates or opens the autonoma.db file under dbPath, in WAL mode
// with a busy timeout, and runs pending migrations.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	write, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening write connection: %w", err)
	}
	write.SetMaxOpenConns(1)
	write.SetMaxIdleConns(1)

	read, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&mode=ro&_pragma=busy_timeout(1000)")
	if err != nil {
		_ = write.Close()
		return nil, fmt.Errorf("opening read connection: %w", err)
	}
	read.SetMaxOpenConns(8)
	read.SetMaxIdleConns(4)

	db := &DB{write: write, read: read, maxRetries: 5, baseWait: 100 * time.Millisecond}
	if err := db.migrate(); err != nil {
		_ = write.Close()
		_ = read.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// Close closes both connections.
func (db *DB) Close() error {
	if err := db.read.Close(); err != nil {
		return err
	}
	return db.write.Close()
}

func (db *DB) migrate() error {
	var version int
	err := db.write.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		version = 0
	}
	if version < 1 {
		if _, err := db.write.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
		if _, err := db.write.Exec("INSERT INTO schema_migrations (version) VALUES (1)"); err != nil {
			return fmt.Errorf("recording migration v1: %w", err)
		}
	}
	return nil
}

// retryWrite retries a write operation on SQLITE_BUSY/SQLITE_LOCKED with
// exponential backoff, the same idiom the teacher's sqlite adapter uses
// since SQLite's single-writer model makes transient lock contention
// routine rather than exceptional.
func (db *DB) retryWrite(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= db.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		lastErr = err
		if attempt == db.maxRetries {
			break
		}
		wait := db.baseWait * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w (last error: %v)", operation, ctx.Err(), lastErr)
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s: max retries exceeded: %w", operation, lastErr)
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "SQLITE_BUSY") ||
		strings.Contains(s, "SQLITE_LOCKED")
}
