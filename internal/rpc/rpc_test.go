package rpc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/byteowlz/hstry/internal/index"
	"github.com/byteowlz/hstry/internal/storage/sqlite"
	"github.com/byteowlz/hstry/internal/types"
)

func newTestServer(t *testing.T) (*Server, *sqlite.Store, *index.Index, string) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	idx, err := index.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })

	if err := store.CreateSource(ctx, &types.Source{ID: "s1", Adapter: "fixture", Path: "/x", Enabled: true}); err != nil {
		t.Fatalf("create source: %v", err)
	}
	if _, err := store.UpsertConversation(ctx, &types.Conversation{
		SourceID: "s1", ExternalID: "c1", CreatedAt: 1, UpdatedAt: 1,
		Messages: []types.Message{{Role: types.RoleUser, Content: "hello world"}},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := idx.DrainAll(ctx, store); err != nil {
		t.Fatalf("drain: %v", err)
	}

	srv := NewServer(store, idx)
	sockPath := filepath.Join(t.TempDir(), "hstry.sock")
	l, err := Listen(sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	ctx2, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Serve(ctx2, l) }()

	return srv, store, idx, sockPath
}

func dialTest(t *testing.T, sockPath string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), sockPath, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientSearchGetListStats(t *testing.T) {
	_, _, _, sockPath := newTestServer(t)
	c := dialTest(t, sockPath)
	ctx := context.Background()

	hits, truncated, err := c.Search(ctx, SearchRequestPayload{Query: "hello"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if truncated {
		t.Fatalf("expected not truncated")
	}
	if len(hits) != 1 || hits[0].Conversation.ExternalID != "c1" {
		t.Fatalf("expected one hit for c1, got %+v", hits)
	}

	conv, err := c.Get(ctx, hits[0].Conversation.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.ExternalID != "c1" {
		t.Fatalf("expected c1, got %s", conv.ExternalID)
	}

	convs, err := c.List(ctx, types.Filter{}, types.Paging{Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Conversations != 1 || stats.Messages != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestClientGetMutationsOnlyReturnsNewer(t *testing.T) {
	_, _, _, sockPath := newTestServer(t)
	c := dialTest(t, sockPath)
	ctx := context.Background()

	none, err := c.GetMutations(ctx, 1000)
	if err != nil {
		t.Fatalf("get mutations: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no mutations after 1000ms, got %d", len(none))
	}

	all, err := c.GetMutations(ctx, 0)
	if err != nil {
		t.Fatalf("get mutations: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 mutation since 0, got %d", len(all))
	}
}

func TestClientListWatchWakesOnNotify(t *testing.T) {
	srv, store, _, sockPath := newTestServer(t)
	c := dialTest(t, sockPath)
	ctx := context.Background()

	done := make(chan struct{})
	var gotErr error
	var got []*types.Conversation
	go func() {
		got, gotErr = c.ListWatch(ctx, types.Filter{}, time.Now().UnixMilli(), 2*time.Second)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if _, err := store.UpsertConversation(ctx, &types.Conversation{
		SourceID: "s1", ExternalID: "c2", CreatedAt: 2, UpdatedAt: time.Now().UnixMilli() + 1000,
		Messages: []types.Message{{Role: types.RoleUser, Content: "second"}},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	srv.NotifyMutation(time.Now().UnixMilli())

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("ListWatch did not return after notify")
	}
	if gotErr != nil {
		t.Fatalf("list watch: %v", gotErr)
	}
	if len(got) != 1 || got[0].ExternalID != "c2" {
		t.Fatalf("expected to observe c2, got %+v", got)
	}
}

func TestDialMissingSocketReturnsDaemonUnavailable(t *testing.T) {
	_, err := Dial(context.Background(), filepath.Join(os.TempDir(), "hstry-does-not-exist.sock"), time.Second)
	if err != ErrDaemonUnavailable {
		t.Fatalf("expected ErrDaemonUnavailable, got %v", err)
	}
}
