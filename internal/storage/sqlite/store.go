// Package sqlite is the default Store backend: a single embedded
// relational database file under the user's data directory, using the
// pure-Go, CGO-free ncruces/go-sqlite3 driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/byteowlz/hstry/internal/types"
)

// Store is the sqlite-backed Storage implementation.
type Store struct {
	db *sql.DB

	// reconnectMu guards against a reconnect closing the handle out
	// from under an in-flight query.
	reconnectMu sync.RWMutex

	path string
}

// Open opens (creating if needed) the database file at path, applying
// pragmas and running the forward-only migration. The migration takes
// no exclusive lock: the version check and the schema apply run as
// separate statements.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: set WAL: %v", types.ErrStoreCorrupt, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable FK: %v", types.ErrStoreCorrupt, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("%w: reading schema version: %v", types.ErrStoreCorrupt, err)
	}

	switch {
	case version == 0:
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("%w: applying schema: %v", types.ErrStoreCorrupt, err)
		}
		return nil
	case version == schemaVersion:
		return nil
	case version > schemaVersion:
		return fmt.Errorf("%w: database is at version %d, binary supports %d", types.ErrStoreVersionMismatch, version, schemaVersion)
	default:
		// Forward-only migrations would be appended here as the schema
		// grows past version 1; there are none yet.
		return fmt.Errorf("%w: no migration path from version %d to %d", types.ErrStoreVersionMismatch, version, schemaVersion)
	}
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()
	return s.db.Close()
}

// withRetry retries fn on a transient write conflict with exponential
// backoff, surfacing types.ErrStoreBusy once retries are exhausted.
func withRetry(ctx context.Context, fn func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if isBusyErr(lastErr) {
			return lastErr // retryable
		}
		return backoff.Permanent(lastErr)
	}, b)
	if err != nil {
		if isBusyErr(lastErr) {
			return fmt.Errorf("%w: %v", types.ErrStoreBusy, lastErr)
		}
		return lastErr
	}
	return nil
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy") || strings.Contains(msg, "SQLITE_BUSY")
}

// now returns epoch milliseconds.
func now() int64 { return time.Now().UnixMilli() }

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
