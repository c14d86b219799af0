// Package storage defines the Storage contract implemented by each
// backend (sqlite, dolt, mysql) and used by every component above the
// Store.
package storage

import (
	"context"

	"github.com/byteowlz/hstry/internal/types"
)

// Storage is the Store's public contract. Every mutating
// method is atomic: it either fully applies or leaves no trace.
type Storage interface {
	// UpsertConversation replaces the conversation and its messages in
	// one transaction, keyed by (source, external_id) if present,
	// otherwise (source, content-hash).
	UpsertConversation(ctx context.Context, conv *types.Conversation) (*types.UpsertResult, error)

	// CommitBatch upserts every conversation in convs and advances
	// sourceID's cursor to cursor, all within one transaction.
	// On any error the whole batch rolls back and the cursor is not
	// advanced.
	CommitBatch(ctx context.Context, sourceID string, convs []*types.Conversation, cursor []byte) ([]*types.UpsertResult, error)

	GetConversation(ctx context.Context, id string) (*types.Conversation, error)
	ListConversations(ctx context.Context, filter types.Filter, paging types.Paging) ([]*types.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	// GetSourceCursor reads the cursor the Ingestor hands the adapter. A
	// batch's cursor advance happens inside CommitBatch's transaction;
	// PutSourceCursor is a standalone write, used by the Ingestor when a
	// run commits no conversations (a reset to nil or a cursor-only
	// advance).
	GetSourceCursor(ctx context.Context, sourceID string) ([]byte, error)
	PutSourceCursor(ctx context.Context, sourceID string, cursor []byte) error

	CreateSource(ctx context.Context, src *types.Source) error
	GetSource(ctx context.Context, id string) (*types.Source, error)
	ListSources(ctx context.Context) ([]*types.Source, error)
	UpdateSource(ctx context.Context, src *types.Source) error
	RemoveSource(ctx context.Context, id string, preserveOrphans bool) error

	UpsertRemote(ctx context.Context, r *types.Remote) error
	GetRemote(ctx context.Context, name string) (*types.Remote, error)
	ListRemotes(ctx context.Context) ([]*types.Remote, error)
	RemoveRemote(ctx context.Context, name string) error

	// MessagesByRowIDRange supports the Index's batched maintenance: it
	// returns up to limit messages with rowid > afterRowID, in rowid
	// order, for (re)tokenization.
	MessagesByRowIDRange(ctx context.Context, afterRowID int64, limit int) ([]types.IndexedMessage, error)

	// MarkAliases records non-canonical conversation ids as aliases of
	// a canonical one.
	MarkAliases(ctx context.Context, canonicalID string, aliasIDs []string) error
	CanonicalID(ctx context.Context, conversationID string) (string, error)

	Stats(ctx context.Context) (*types.Stats, error)

	// Compact runs backend-appropriate maintenance (VACUUM on sqlite,
	// OPTIMIZE TABLE on dolt/mysql). Orphaned full-text rows live in the
	// Index and are swept by index.Index.Sweep, not here.
	Compact(ctx context.Context) error

	Close() error
}
