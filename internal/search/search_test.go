package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/byteowlz/hstry/internal/index"
	"github.com/byteowlz/hstry/internal/storage/sqlite"
	"github.com/byteowlz/hstry/internal/types"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, err := index.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func seedConversation(t *testing.T, ctx context.Context, store *sqlite.Store, conv *types.Conversation) {
	t.Helper()
	if _, err := store.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("seed conversation %s: %v", conv.ID, err)
	}
}

func TestSearchAppliesSourceFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	idx := newTestIndex(t)

	if err := store.CreateSource(ctx, &types.Source{ID: "src-a", Adapter: "claude", Enabled: true}); err != nil {
		t.Fatalf("create source a: %v", err)
	}
	if err := store.CreateSource(ctx, &types.Source{ID: "src-b", Adapter: "codex", Enabled: true}); err != nil {
		t.Fatalf("create source b: %v", err)
	}

	seedConversation(t, ctx, store, &types.Conversation{
		ID: "c1", SourceID: "src-a", Workspace: "repo-one", CreatedAt: 100, UpdatedAt: 100,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "how do I parse json config files"},
			{Role: types.RoleAssistant, Content: "use encoding/json"},
		},
	})
	seedConversation(t, ctx, store, &types.Conversation{
		ID: "c2", SourceID: "src-b", Workspace: "repo-two", CreatedAt: 200, UpdatedAt: 200,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "how do I parse json over there too"},
		},
	})

	if _, err := idx.DrainAll(ctx, store); err != nil {
		t.Fatalf("DrainAll: %v", err)
	}

	res, err := Search(ctx, idx, store, Request{Query: "parse json", Filter: types.Filter{SourceID: "src-a"}, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].Conversation.ID != "c1" {
		t.Fatalf("Search with SourceID filter = %+v, want only c1", res.Hits)
	}

	res, err = Search(ctx, idx, store, Request{Query: "parse json", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 2 {
		t.Fatalf("unfiltered search returned %d hits, want 2", len(res.Hits))
	}
}

func TestSearchExcludesSystemOnlyByDefault(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	idx := newTestIndex(t)

	if err := store.CreateSource(ctx, &types.Source{ID: "src-a", Adapter: "claude", Enabled: true}); err != nil {
		t.Fatalf("create source: %v", err)
	}
	seedConversation(t, ctx, store, &types.Conversation{
		ID: "sys1", SourceID: "src-a", CreatedAt: 100, UpdatedAt: 100,
		Messages: []types.Message{{Role: types.RoleSystem, Content: "you are a helpful assistant"}},
	})
	if _, err := idx.DrainAll(ctx, store); err != nil {
		t.Fatalf("DrainAll: %v", err)
	}

	res, err := Search(ctx, idx, store, Request{Query: "helpful assistant", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 0 {
		t.Fatalf("expected system-only conversation excluded by default, got %+v", res.Hits)
	}

	res, err = Search(ctx, idx, store, Request{Query: "helpful assistant", Filter: types.Filter{IncludeSystem: true}, Limit: 10})
	if err != nil {
		t.Fatalf("Search with IncludeSystem: %v", err)
	}
	if len(res.Hits) != 1 {
		t.Fatalf("expected system-only conversation included, got %+v", res.Hits)
	}
}
