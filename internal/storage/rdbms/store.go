package rdbms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/byteowlz/hstry/internal/types"
)

// Store is the Storage implementation shared by the dolt and mysql
// backends. The caller (internal/storage/dolt, internal/storage/mysql)
// is responsible for sql.Open-ing the right driver/DSN and handing the
// *sql.DB to Wrap.
type Store struct {
	db *sql.DB

	reconnectMu sync.RWMutex
}

// Wrap runs the forward-only migration against an already-open db and
// returns a Store backed by it. db's connection pool is left as the
// caller configured it (server-mode MySQL/Dolt wants more than one
// connection, unlike the single-writer sqlite backend).
func Wrap(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_meta (id INT PRIMARY KEY, version INT NOT NULL)"); err != nil {
		return fmt.Errorf("%w: creating schema_meta: %v", types.ErrStoreCorrupt, err)
	}

	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_meta WHERE id = 1").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		version = 0
	case err != nil:
		return fmt.Errorf("%w: reading schema version: %v", types.ErrStoreCorrupt, err)
	}

	switch {
	case version == 0:
		for _, stmt := range schemaStatements() {
			if strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS schema_meta") {
				continue // already applied above
			}
			if _, err := s.db.ExecContext(ctx, stmt); err != nil && !isDuplicateSchemaObjectErr(err) {
				return fmt.Errorf("%w: applying schema (%q): %v", types.ErrStoreCorrupt, firstWords(stmt, 6), err)
			}
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_meta (id, version) VALUES (1, ?)", schemaVersion); err != nil {
			return fmt.Errorf("%w: recording schema version: %v", types.ErrStoreCorrupt, err)
		}
		return nil
	case version == schemaVersion:
		return nil
	case version > schemaVersion:
		return fmt.Errorf("%w: database is at version %d, binary supports %d", types.ErrStoreVersionMismatch, version, schemaVersion)
	default:
		return fmt.Errorf("%w: no migration path from version %d to %d", types.ErrStoreVersionMismatch, version, schemaVersion)
	}
}

// isDuplicateSchemaObjectErr tolerates re-running CREATE INDEX (which,
// unlike CREATE TABLE, has no portable IF NOT EXISTS across MySQL/Dolt)
// against a database another process already migrated concurrently.
func isDuplicateSchemaObjectErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key name") || strings.Contains(msg, "already exists")
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()
	return s.db.Close()
}

// withRetry retries fn on a transient write conflict (deadlock, lock
// wait timeout) with exponential backoff, surfacing types.ErrStoreBusy
// once retries are exhausted, matching the sqlite
// backend's withRetry.
func withRetry(ctx context.Context, fn func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if isBusyErr(lastErr) {
			return lastErr
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

// isBusyErr recognizes MySQL/Dolt's transient-conflict error text:
// 1213 (deadlock), 1205 (lock wait timeout), plus Dolt's own
// "could not acquire lock" style messages.
func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Deadlock found") ||
		strings.Contains(msg, "Lock wait timeout") ||
		strings.Contains(msg, "1213") ||
		strings.Contains(msg, "1205") ||
		strings.Contains(msg, "could not acquire lock")
}

func now() int64 { return time.Now().UnixMilli() }

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
