package index

import (
	"context"
	"fmt"

	"github.com/byteowlz/hstry/internal/types"
)

// MessageSource is the subset of storage.Storage the batch writer
// needs; narrowed so the index package doesn't import storage and
// create a dependency cycle back to it.
type MessageSource interface {
	MessagesByRowIDRange(ctx context.Context, afterRowID int64, limit int) ([]types.IndexedMessage, error)
}

// Drain pulls up to BatchSize messages past the last drained rowid
// from src and tokenizes them into both fts_natural and fts_code in
// one transaction, advancing index_cursor only on success. Returns the
// number of messages drained; callers loop until it returns 0.
func (idx *Index) Drain(ctx context.Context, src MessageSource) (int, error) {
	idx.reconnectMu.Lock()
	defer idx.reconnectMu.Unlock()

	var lastRowID int64
	if err := idx.db.QueryRowContext(ctx, `SELECT last_row_id FROM index_cursor WHERE id = 1`).Scan(&lastRowID); err != nil {
		return 0, fmt.Errorf("index: read drain cursor: %w", err)
	}

	limit := idx.BatchSize
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	batch, err := src.MessagesByRowIDRange(ctx, lastRowID, limit)
	if err != nil {
		return 0, fmt.Errorf("index: fetch batch: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("index: begin drain tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	maxRowID := lastRowID
	for _, m := range batch {
		if _, err := tx.ExecContext(ctx, `INSERT INTO fts_natural (message_id, conversation_id, content) VALUES (?, ?, ?)`,
			m.MessageID, m.ConversationID, m.Content); err != nil {
			return 0, fmt.Errorf("index: write natural row for %s: %w", m.MessageID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO fts_code (message_id, conversation_id, content) VALUES (?, ?, ?)`,
			m.MessageID, m.ConversationID, m.Content); err != nil {
			return 0, fmt.Errorf("index: write code row for %s: %w", m.MessageID, err)
		}
		if m.RowID > maxRowID {
			maxRowID = m.RowID
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE index_cursor SET last_row_id = ? WHERE id = 1`, maxRowID); err != nil {
		return 0, fmt.Errorf("index: advance drain cursor: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("index: commit drain batch: %w", err)
	}
	return len(batch), nil
}

// DrainAll repeatedly calls Drain until the Store has no more
// unindexed messages, returning the total number drained. Used by the
// `index` CLI operation (after an optional Rebuild), by the Ingestor
// after each committed batch, and by the Remote Gateway's federated
// search over a fetched snapshot.
func (idx *Index) DrainAll(ctx context.Context, src MessageSource) (int, error) {
	total := 0
	for {
		n, err := idx.Drain(ctx, src)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

// Forget removes every indexed row for messageID from both tables,
// used when the Store repairs a stale reference lazily.
func (idx *Index) Forget(ctx context.Context, messageID string) error {
	idx.reconnectMu.Lock()
	defer idx.reconnectMu.Unlock()

	if _, err := idx.db.ExecContext(ctx, `DELETE FROM fts_natural WHERE message_id = ?`, messageID); err != nil {
		return fmt.Errorf("index: forget natural row: %w", err)
	}
	if _, err := idx.db.ExecContext(ctx, `DELETE FROM fts_code WHERE message_id = ?`, messageID); err != nil {
		return fmt.Errorf("index: forget code row: %w", err)
	}
	return nil
}
