package sqlite

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/byteowlz/hstry/internal/types"
)

func newBatchTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.CreateSource(ctx, &types.Source{ID: "s1", Adapter: "fixture", Path: "/x", Enabled: true}); err != nil {
		t.Fatalf("create source: %v", err)
	}
	return store
}

func batchConv(externalID, content string) *types.Conversation {
	return &types.Conversation{
		ExternalID: externalID,
		SourceID:   "s1",
		CreatedAt:  1,
		UpdatedAt:  1,
		Messages:   []types.Message{{Role: types.RoleUser, Content: content}},
	}
}

// countMessages reads the raw message rows so assertions see exactly
// what a rollback left behind, not what a higher-level accessor infers.
func countMessages(t *testing.T, store *Store) int {
	t.Helper()
	var n int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return n
}

// A batch whose cursor update targets a source that doesn't exist fails
// after every message row has already been inserted inside the
// transaction. The whole batch must roll back: no conversation or
// message rows survive, and the failed commit never advances a cursor.
func TestCommitBatchRollsBackWhenCursorUpdateFails(t *testing.T) {
	ctx := context.Background()
	store := newBatchTestStore(t)

	seed := []byte("cursor-a")
	if _, err := store.CommitBatch(ctx, "s1", []*types.Conversation{batchConv("c1", "one")}, seed); err != nil {
		t.Fatalf("seed batch: %v", err)
	}

	_, err := store.CommitBatch(ctx, "ghost", []*types.Conversation{batchConv("c2", "two")}, []byte("cursor-b"))
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown source, got %v", err)
	}

	convs, err := store.ListConversations(ctx, types.Filter{}, types.Paging{})
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 1 || convs[0].ExternalID != "c1" {
		t.Fatalf("expected only the seeded conversation to survive, got %+v", convs)
	}
	if n := countMessages(t, store); n != 1 {
		t.Fatalf("expected 1 message row after rollback, got %d", n)
	}

	cursor, err := store.GetSourceCursor(ctx, "s1")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if !bytes.Equal(cursor, seed) {
		t.Fatalf("cursor advanced past a failed commit: got %q, want %q", cursor, seed)
	}
}

// A zero-message conversation midway through a batch faults the
// transaction after an earlier conversation in the same batch was fully
// inserted. The earlier conversation's rows must roll back with it and
// the cursor must stay at its pre-batch value.
func TestCommitBatchRollsBackEarlierConversationsOnFault(t *testing.T) {
	ctx := context.Background()
	store := newBatchTestStore(t)

	seed := []byte("cursor-a")
	if _, err := store.CommitBatch(ctx, "s1", []*types.Conversation{batchConv("c1", "one")}, seed); err != nil {
		t.Fatalf("seed batch: %v", err)
	}

	bad := &types.Conversation{ExternalID: "c3", SourceID: "s1", CreatedAt: 3, UpdatedAt: 3}
	_, err := store.CommitBatch(ctx, "s1", []*types.Conversation{batchConv("c2", "two"), bad}, []byte("cursor-b"))
	if !errors.Is(err, types.ErrEmptyConversation) {
		t.Fatalf("expected ErrEmptyConversation, got %v", err)
	}

	convs, err := store.ListConversations(ctx, types.Filter{}, types.Paging{})
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 1 || convs[0].ExternalID != "c1" {
		t.Fatalf("expected c2 rolled back with the failed batch, got %+v", convs)
	}
	if n := countMessages(t, store); n != 1 {
		t.Fatalf("expected pre-batch message count 1, got %d", n)
	}

	cursor, err := store.GetSourceCursor(ctx, "s1")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if !bytes.Equal(cursor, seed) {
		t.Fatalf("cursor advanced past a failed commit: got %q, want %q", cursor, seed)
	}
}

// Re-committing the same batch replaces message rows in place rather
// than appending, and each successful commit carries its cursor.
func TestCommitBatchReplacesMessagesAndAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	store := newBatchTestStore(t)

	if _, err := store.CommitBatch(ctx, "s1", []*types.Conversation{batchConv("c1", "first wording")}, []byte("cursor-a")); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	results, err := store.CommitBatch(ctx, "s1", []*types.Conversation{batchConv("c1", "second wording")}, []byte("cursor-b"))
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if len(results) != 1 || results[0].Outcome != types.Updated {
		t.Fatalf("expected one Updated result, got %+v", results)
	}

	if n := countMessages(t, store); n != 1 {
		t.Fatalf("expected message rows replaced, not appended: got %d", n)
	}

	conv, err := store.GetConversation(ctx, results[0].ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Content != "second wording" {
		t.Fatalf("expected replaced message content, got %+v", conv.Messages)
	}

	cursor, err := store.GetSourceCursor(ctx, "s1")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if !bytes.Equal(cursor, []byte("cursor-b")) {
		t.Fatalf("expected cursor-b after second commit, got %q", cursor)
	}
}
