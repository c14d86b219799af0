// Package index is the dual-mode full-text search index: a
// natural-language table (porter-stemmed) and a code table
// (token-preserving), batch-maintained from the Store's message rows
// and queried through a small planner that classifies a query as
// natural, code, or mixed. It lives in its own database file so it
// works the same way no matter which Storage backend is active.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/byteowlz/hstry/internal/types"
)

// DefaultBatchSize is the drain batch size Open configures.
const DefaultBatchSize = 500

// Index owns the fts_natural/fts_code tables and the batch-drain
// cursor into the Store's message rowid stream.
type Index struct {
	db          *sql.DB
	reconnectMu sync.RWMutex

	// BatchSize bounds how many messages a single Drain call tokenizes.
	// Zero uses DefaultBatchSize.
	BatchSize int
}

// Open opens (creating if needed) the index database at path.
func Open(ctx context.Context, path string) (*Index, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("index: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("index: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: set WAL: %v", types.ErrIndexCorrupt, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: set busy_timeout: %w", err)
	}

	idx := &Index{db: db, BatchSize: DefaultBatchSize}
	if err := idx.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) migrate(ctx context.Context) error {
	var version int
	if err := idx.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("%w: reading schema version: %v", types.ErrIndexCorrupt, err)
	}
	switch {
	case version == 0:
		if _, err := idx.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("%w: applying schema: %v", types.ErrIndexCorrupt, err)
		}
		return nil
	case version == schemaVersion:
		return nil
	default:
		return fmt.Errorf("%w: index at version %d, binary supports %d", types.ErrIndexCorrupt, version, schemaVersion)
	}
}

// Close closes the index's database handle.
func (idx *Index) Close() error {
	idx.reconnectMu.Lock()
	defer idx.reconnectMu.Unlock()
	return idx.db.Close()
}

// Rebuild drops and recreates both FTS tables and resets the drain
// cursor to zero, so the next Drain re-tokenizes every message from
// the Store. Used on persistent Index↔Store divergence.
func (idx *Index) Rebuild(ctx context.Context) error {
	idx.reconnectMu.Lock()
	defer idx.reconnectMu.Unlock()

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin rebuild: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{
		`DELETE FROM fts_natural`,
		`DELETE FROM fts_code`,
		`UPDATE index_cursor SET last_row_id = 0 WHERE id = 1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("index: rebuild step %q: %w", stmt, err)
		}
	}
	return tx.Commit()
}

// Sweep deletes FTS rows whose message_id is not present in liveIDs,
// left behind when a conversation replace raced the batch writer.
// Orphan cleanup lives here rather than in the Store, since this index
// owns the fts_natural/fts_code tables regardless of which Storage
// backend is in use.
func (idx *Index) Sweep(ctx context.Context, liveIDs map[string]struct{}) (int64, error) {
	idx.reconnectMu.Lock()
	defer idx.reconnectMu.Unlock()

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("index: begin sweep: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var removed int64
	for _, table := range []string{"fts_natural", "fts_code"} {
		rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT message_id FROM %s", table))
		if err != nil {
			return removed, fmt.Errorf("index: sweep scan %s: %w", table, err)
		}
		var orphans []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return removed, fmt.Errorf("index: sweep scan %s: %w", table, err)
			}
			if _, ok := liveIDs[id]; !ok {
				orphans = append(orphans, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return removed, fmt.Errorf("index: sweep scan %s: %w", table, err)
		}

		for _, id := range orphans {
			res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE message_id = ?", table), id)
			if err != nil {
				return removed, fmt.Errorf("index: sweep delete %s: %w", table, err)
			}
			n, _ := res.RowsAffected()
			removed += n
		}
	}

	if err := tx.Commit(); err != nil {
		return removed, fmt.Errorf("index: commit sweep: %w", err)
	}
	return removed, nil
}
