package rdbms

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/byteowlz/hstry/internal/types"
)

func (s *Store) UpsertRemote(ctx context.Context, r *types.Remote) error {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO remotes (name, connection_str, last_fetch, snapshot_path, enabled)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			connection_str=VALUES(connection_str), last_fetch=VALUES(last_fetch),
			snapshot_path=VALUES(snapshot_path), enabled=VALUES(enabled)
	`, r.Name, r.ConnectionStr, r.LastFetch.UnixMilli(), r.SnapshotPath, boolToInt(r.Enabled))
	if err != nil {
		return fmt.Errorf("upsert remote: %w", err)
	}
	return nil
}

func (s *Store) GetRemote(ctx context.Context, name string) (*types.Remote, error) {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT name, connection_str, last_fetch, snapshot_path, enabled FROM remotes WHERE name = ?`, name)
	r, err := scanRemote(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get remote: %w", err)
	}
	return r, nil
}

func (s *Store) ListRemotes(ctx context.Context) ([]*types.Remote, error) {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, connection_str, last_fetch, snapshot_path, enabled FROM remotes ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list remotes: %w", err)
	}
	defer rows.Close()

	var out []*types.Remote
	for rows.Next() {
		r, err := scanRemote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan remote: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) RemoveRemote(ctx context.Context, name string) error {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM remotes WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("remove remote: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

func scanRemote(row scanner) (*types.Remote, error) {
	var r types.Remote
	var lastFetchMs int64
	var enabled int
	if err := row.Scan(&r.Name, &r.ConnectionStr, &lastFetchMs, &r.SnapshotPath, &enabled); err != nil {
		return nil, err
	}
	r.LastFetch = msToTime(lastFetchMs)
	r.Enabled = enabled != 0
	return &r, nil
}
