package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// ErrLocked reports that another reshelve process holds the state directory.
var ErrLocked = errors.New("state store locked by another process")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    name       TEXT PRIMARY KEY,
    content    TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS file_items (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    group_key        TEXT NOT NULL,
    ordinal          INTEGER NOT NULL,
    original_key     TEXT NOT NULL UNIQUE,
    original_name    TEXT NOT NULL,
    original_size    INTEGER NOT NULL DEFAULT 0,
    new_key          TEXT NOT NULL DEFAULT '',
    new_name         TEXT NOT NULL DEFAULT '',
    new_size         INTEGER NOT NULL DEFAULT 0,
    new_hash         TEXT NOT NULL DEFAULT '',
    new_content_type TEXT NOT NULL DEFAULT '',
    catalog_id       INTEGER NOT NULL,
    platform         TEXT NOT NULL,
    status           TEXT NOT NULL,
    skipped_reason   TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_file_items_group ON file_items(group_key, ordinal);
CREATE INDEX IF NOT EXISTS idx_file_items_status ON file_items(status);
`

// Store wraps the SQLite database holding migration state. A process-level
// flock on the state directory keeps concurrent writers out.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

// Open creates or opens the state database under dir and acquires the writer
// lock. It returns ErrLocked when another process already holds the lock.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, "reshelve.lock"))
	held, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire state lock: %w", err)
	}
	if !held {
		return nil, ErrLocked
	}

	dbPath := filepath.Join(dir, "reshelve.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open state database: %w", err)
	}

	store := &Store{db: db, path: dbPath, lock: lock}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("configure state database: %w", err)
		}
	}
	if err := store.initSchema(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the database handle and the writer lock.
func (s *Store) Close() error {
	var dbErr error
	if s.db != nil {
		dbErr = s.db.Close()
		s.db = nil
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil && dbErr == nil {
			dbErr = err
		}
		s.lock = nil
	}
	return dbErr
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(fn func() error) error {
	delay := busyRetryInitialBackoff
	var err error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		err = fn()
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
		time.Sleep(delay)
		delay *= 2
		if delay > busyRetryMaxBackoff {
			delay = busyRetryMaxBackoff
		}
	}
	return err
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var result sql.Result
	err := retryOnBusy(func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return result, err
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
