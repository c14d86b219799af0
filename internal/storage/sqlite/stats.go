package sqlite

import (
	"context"
	"fmt"

	"github.com/byteowlz/hstry/internal/types"
)

// Stats returns global counts plus a per-source breakdown.
func (s *Store) Stats(ctx context.Context) (*types.Stats, error) {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	st := &types.Stats{BySource: map[string]types.SourceStats{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&st.Sources); err != nil {
		return nil, fmt.Errorf("count sources: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&st.Conversations); err != nil {
		return nil, fmt.Errorf("count conversations: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&st.Messages); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT src.id, src.adapter, src.last_sync,
		       COUNT(DISTINCT c.id) AS conv_count,
		       COUNT(m.conversation_id) AS msg_count
		FROM sources src
		LEFT JOIN conversations c ON c.source_id = src.id
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY src.id, src.adapter, src.last_sync
	`)
	if err != nil {
		return nil, fmt.Errorf("per-source stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var ss types.SourceStats
		var lastSyncMs int64
		if err := rows.Scan(&id, &ss.Adapter, &lastSyncMs, &ss.Conversations, &ss.Messages); err != nil {
			return nil, fmt.Errorf("scan source stats: %w", err)
		}
		ss.LastSync = msToTime(lastSyncMs)
		st.BySource[id] = ss
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return st, nil
}
