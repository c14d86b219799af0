package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/byteowlz/hstry/internal/idgen"
	"github.com/byteowlz/hstry/internal/types"
)

// UpsertConversation is atomic: it replaces message rows for the
// conversation's identity key and never partially applies. Identity is
// (source, external_id) when external_id is present, otherwise
// (source, content-hash).
func (s *Store) UpsertConversation(ctx context.Context, conv *types.Conversation) (*types.UpsertResult, error) {
	if len(conv.Messages) == 0 {
		return nil, types.ErrEmptyConversation
	}
	if conv.ContentHash == "" {
		conv.ContentHash = types.ComputeContentHash(conv.Messages)
	}

	var result *types.UpsertResult
	err := withRetry(ctx, func() error {
		s.reconnectMu.RLock()
		defer s.reconnectMu.RUnlock()

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		result, err = upsertConversationTx(ctx, tx, conv)
		if err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// upsertConversationTx performs the insert-or-replace within an
// already-open transaction, so the caller can bundle it with sibling
// upserts and a cursor advance into one atomic batch (CommitBatch).
func upsertConversationTx(ctx context.Context, tx *sql.Tx, conv *types.Conversation) (*types.UpsertResult, error) {
	if len(conv.Messages) == 0 {
		return nil, types.ErrEmptyConversation
	}
	if conv.ContentHash == "" {
		conv.ContentHash = types.ComputeContentHash(conv.Messages)
	}

	existingID, err := findExistingID(ctx, tx, conv)
	if err != nil {
		return nil, err
	}

	outcome := types.Inserted
	if existingID != "" {
		conv.ID = existingID
		outcome = types.Updated
	} else if conv.ID == "" {
		_, key := conv.Identity()
		conv.ID = idgen.ConversationID(conv.SourceID, key, 0)
	}

	metaJSON, err := json.Marshal(conv.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal conversation metadata: %w", err)
	}

	var extID any
	if conv.ExternalID != "" {
		extID = conv.ExternalID
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, external_id, source_id, workspace, title, created_at, updated_at, content_hash, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			external_id=excluded.external_id, workspace=excluded.workspace, title=excluded.title,
			updated_at=excluded.updated_at, content_hash=excluded.content_hash, metadata=excluded.metadata
	`, conv.ID, extID, conv.SourceID, conv.Workspace, conv.Title, conv.CreatedAt, conv.UpdatedAt, conv.ContentHash, string(metaJSON))
	if err != nil {
		return nil, fmt.Errorf("upsert conversation row: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conv.ID); err != nil {
		return nil, fmt.Errorf("clear prior messages: %w", err)
	}

	for i, m := range conv.Messages {
		m.ConversationID = conv.ID
		m.Seq = i
		partsJSON, err := json.Marshal(m.Parts)
		if err != nil {
			return nil, fmt.Errorf("marshal message parts: %w", err)
		}
		metaJSON, err := json.Marshal(m.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal message metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, seq, role, content, parts, created_at, model, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ConversationID, m.Seq, string(m.Role), m.Content, string(partsJSON), m.CreatedAt, m.Model, string(metaJSON))
		if err != nil {
			return nil, fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	return &types.UpsertResult{Outcome: outcome, ID: conv.ID}, nil
}

func findExistingID(ctx context.Context, tx *sql.Tx, conv *types.Conversation) (string, error) {
	if conv.ExternalID != "" {
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM conversations WHERE source_id = ? AND external_id = ?`,
			conv.SourceID, conv.ExternalID).Scan(&id)
		if err == sql.ErrNoRows {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("lookup by external id: %w", err)
		}
		return id, nil
	}

	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM conversations WHERE source_id = ? AND external_id IS NULL AND content_hash = ?`,
		conv.SourceID, conv.ContentHash).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup by content hash: %w", err)
	}
	return id, nil
}

// GetConversation returns a conversation with its messages in sequence
// order, or types.ErrNotFound.
func (s *Store) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, source_id, workspace, title, created_at, updated_at, content_hash, metadata
		FROM conversations WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	msgs, err := s.messagesFor(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	return conv, nil
}

func (s *Store) messagesFor(ctx context.Context, conversationID string) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, role, content, parts, created_at, model, metadata
		FROM messages WHERE conversation_id = ? ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		var m types.Message
		var role, partsJSON, metaJSON string
		m.ConversationID = conversationID
		if err := rows.Scan(&m.Seq, &role, &m.Content, &partsJSON, &m.CreatedAt, &m.Model, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = types.Role(role)
		_ = json.Unmarshal([]byte(partsJSON), &m.Parts)
		_ = json.Unmarshal([]byte(metaJSON), &m.Metadata)
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*types.Conversation, error) {
	var c types.Conversation
	var extID sql.NullString
	var metaJSON string
	if err := row.Scan(&c.ID, &extID, &c.SourceID, &c.Workspace, &c.Title, &c.CreatedAt, &c.UpdatedAt, &c.ContentHash, &metaJSON); err != nil {
		return nil, err
	}
	c.ExternalID = extID.String
	_ = json.Unmarshal([]byte(metaJSON), &c.Metadata)
	return &c, nil
}

// ListConversations applies the search-side filters as a dynamic WHERE
// clause: a growing []string of clauses and a parallel []any of bound
// args, never string-interpolated values.
func (s *Store) ListConversations(ctx context.Context, filter types.Filter, paging types.Paging) ([]*types.Conversation, error) {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	where, args := buildWhere(filter)

	query := `SELECT id, external_id, source_id, workspace, title, created_at, updated_at, content_hash, metadata
		FROM conversations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"

	if paging.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, paging.Limit)
		if paging.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, paging.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*types.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if filter.Dedup {
		out = dedupByContentHash(out)
	}
	return out, nil
}

func buildWhere(filter types.Filter) ([]string, []any) {
	var where []string
	var args []any

	if filter.SourceID != "" {
		where = append(where, "source_id = ?")
		args = append(args, filter.SourceID)
	}
	if filter.Workspace != "" {
		where = append(where, "workspace LIKE ?")
		args = append(args, "%"+filter.Workspace+"%")
	}
	if filter.CreatedAfter > 0 {
		where = append(where, "created_at >= ?")
		args = append(args, filter.CreatedAfter)
	}
	if filter.CreatedBefore > 0 {
		where = append(where, "created_at <= ?")
		args = append(args, filter.CreatedBefore)
	}
	if filter.Role != "" {
		where = append(where, `id IN (SELECT conversation_id FROM messages WHERE role = ?)`)
		args = append(args, string(filter.Role))
	}
	if !filter.IncludeSystem {
		where = append(where, `id NOT IN (SELECT conversation_id FROM messages WHERE role = 'system' GROUP BY conversation_id HAVING COUNT(*) = (SELECT COUNT(*) FROM messages m2 WHERE m2.conversation_id = messages.conversation_id))`)
	}
	return where, args
}

func dedupByContentHash(in []*types.Conversation) []*types.Conversation {
	seen := make(map[string]bool, len(in))
	out := make([]*types.Conversation, 0, len(in))
	for _, c := range in {
		if seen[c.ContentHash] {
			continue
		}
		seen[c.ContentHash] = true
		out = append(out, c)
	}
	return out
}

// DeleteConversation removes a conversation and its messages (cascade).
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// MessagesByRowIDRange feeds the Index's batched maintenance.
func (s *Store) MessagesByRowIDRange(ctx context.Context, afterRowID int64, limit int) ([]types.IndexedMessage, error) {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, conversation_id, seq, role, content, created_at
		FROM messages WHERE rowid > ? ORDER BY rowid ASC LIMIT ?`, afterRowID, limit)
	if err != nil {
		return nil, fmt.Errorf("scan message range: %w", err)
	}
	defer rows.Close()

	var out []types.IndexedMessage
	for rows.Next() {
		var im types.IndexedMessage
		var seq int
		var role string
		if err := rows.Scan(&im.RowID, &im.ConversationID, &seq, &role, &im.Content, &im.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan indexed message: %w", err)
		}
		im.Role = types.Role(role)
		im.MessageID = fmt.Sprintf("%s:%d", im.ConversationID, seq)
		out = append(out, im)
	}
	return out, rows.Err()
}

// MarkAliases records non-canonical conversations as merged into
// canonicalID.
func (s *Store) MarkAliases(ctx context.Context, canonicalID string, aliasIDs []string) error {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, aliasID := range aliasIDs {
		if aliasID == canonicalID {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE conversations SET canonical_id = ? WHERE id = ?`, canonicalID, aliasID); err != nil {
			return fmt.Errorf("mark alias %s: %w", aliasID, err)
		}
	}
	return tx.Commit()
}

// CanonicalID returns the canonical conversation id for id, which is id
// itself if it is not an alias of another conversation.
func (s *Store) CanonicalID(ctx context.Context, conversationID string) (string, error) {
	s.reconnectMu.RLock()
	defer s.reconnectMu.RUnlock()

	var canonical sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT canonical_id FROM conversations WHERE id = ?`, conversationID).Scan(&canonical)
	if err == sql.ErrNoRows {
		return "", types.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("canonical id lookup: %w", err)
	}
	if canonical.Valid && canonical.String != "" {
		return canonical.String, nil
	}
	return conversationID, nil
}
