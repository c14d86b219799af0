package rdbms

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/byteowlz/hstry/internal/types"
)

func (s *Store) GetSourceCursor(ctx context.Context, sourceID string) ([]byte, error) {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	var cursor []byte
	err := s.db.QueryRowContext(ctx, `SELECT cursor FROM sources WHERE id = ?`, sourceID).Scan(&cursor)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source cursor: %w", err)
	}
	return cursor, nil
}

func (s *Store) PutSourceCursor(ctx context.Context, sourceID string, cursor []byte) error {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	res, err := s.db.ExecContext(ctx, `UPDATE sources SET cursor = ?, last_sync = ? WHERE id = ?`, cursor, now(), sourceID)
	if err != nil {
		return fmt.Errorf("put source cursor: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}
