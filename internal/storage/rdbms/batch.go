package rdbms

import (
	"context"
	"fmt"

	"github.com/byteowlz/hstry/internal/types"
)

// CommitBatch mirrors sqlite.Store.CommitBatch: every conversation
// upsert and the cursor advance happen in one transaction.
func (s *Store) CommitBatch(ctx context.Context, sourceID string, convs []*types.Conversation, cursor []byte) ([]*types.UpsertResult, error) {
	var results []*types.UpsertResult
	err := withRetry(ctx, func() error {
		s.reconnectMu.RLock()
		defer s.reconnectMu.RUnlock()

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		results = make([]*types.UpsertResult, 0, len(convs))
		for i, conv := range convs {
			r, err := upsertConversationTx(ctx, tx, conv)
			if err != nil {
				return fmt.Errorf("upsert conversation %d: %w", i, err)
			}
			results = append(results, r)
		}

		res, err := tx.ExecContext(ctx, `UPDATE sources SET cursor = ?, last_sync = ? WHERE id = ?`, cursor, now(), sourceID)
		if err != nil {
			return fmt.Errorf("advance cursor: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return types.ErrNotFound
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
