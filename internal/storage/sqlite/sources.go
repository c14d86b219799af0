package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/byteowlz/hstry/internal/types"
)

// CreateSource inserts a newly configured source.
func (s *Store) CreateSource(ctx context.Context, src *types.Source) error {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (id, adapter, path, workspace, enabled, last_sync, cursor, remote_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, src.ID, src.Adapter, src.Path, src.Workspace, boolToInt(src.Enabled), src.LastSync.UnixMilli(), src.Cursor, src.RemoteName)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	return nil
}

func (s *Store) GetSource(ctx context.Context, id string) (*types.Source, error) {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, adapter, path, workspace, enabled, last_sync, cursor, remote_name
		FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

func (s *Store) ListSources(ctx context.Context) ([]*types.Source, error) {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, adapter, path, workspace, enabled, last_sync, cursor, remote_name
		FROM sources ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []*types.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSource(ctx context.Context, src *types.Source) error {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE sources SET adapter=?, path=?, workspace=?, enabled=?, last_sync=?, cursor=?, remote_name=?
		WHERE id = ?
	`, src.Adapter, src.Path, src.Workspace, boolToInt(src.Enabled), src.LastSync.UnixMilli(), src.Cursor, src.RemoteName, src.ID)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// RemoveSource deletes a source. Removal cascades to owned conversations
// (ON DELETE CASCADE) unless preserveOrphans is set, in which case
// conversations are re-parented to a sentinel "orphaned" source.
func (s *Store) RemoveSource(ctx context.Context, id string, preserveOrphans bool) error {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	if preserveOrphans {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		const orphanSourceID = "orphaned"
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO sources (id, adapter, path, enabled, last_sync)
			VALUES (?, 'none', '', 0, 0)`, orphanSourceID); err != nil {
			return fmt.Errorf("ensure orphan sentinel source: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE conversations SET source_id=? WHERE source_id=?`, orphanSourceID, id); err != nil {
			return fmt.Errorf("reparent conversations to orphan source: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id=?`, id); err != nil {
			return fmt.Errorf("delete source: %w", err)
		}
		return tx.Commit()
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove source: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

func scanSource(row scanner) (*types.Source, error) {
	var src types.Source
	var enabled int
	var lastSyncMs int64
	if err := row.Scan(&src.ID, &src.Adapter, &src.Path, &src.Workspace, &enabled, &lastSyncMs, &src.Cursor, &src.RemoteName); err != nil {
		return nil, err
	}
	src.Enabled = enabled != 0
	src.LastSync = msToTime(lastSyncMs)
	return &src, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
