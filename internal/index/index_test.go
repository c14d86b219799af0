package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/byteowlz/hstry/internal/types"
)

// fakeSource is an in-memory MessageSource for exercising Drain without
// a real Store.
type fakeSource struct {
	rows []types.IndexedMessage
}

func (f *fakeSource) MessagesByRowIDRange(_ context.Context, afterRowID int64, limit int) ([]types.IndexedMessage, error) {
	var out []types.IndexedMessage
	for _, r := range f.rows {
		if r.RowID > afterRowID {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestDrainAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	src := &fakeSource{rows: []types.IndexedMessage{
		{RowID: 1, MessageID: "c1:0", ConversationID: "c1", Content: "function parseJson(input: string)", Role: types.RoleAssistant},
		{RowID: 2, MessageID: "c2:0", ConversationID: "c2", Content: "how do I parse json in go", Role: types.RoleUser},
	}}

	n, err := idx.DrainAll(ctx, src)
	if err != nil {
		t.Fatalf("DrainAll: %v", err)
	}
	if n != 2 {
		t.Fatalf("DrainAll drained %d, want 2", n)
	}

	// Draining again with nothing new returns 0.
	n, err = idx.DrainAll(ctx, src)
	if err != nil {
		t.Fatalf("second DrainAll: %v", err)
	}
	if n != 0 {
		t.Fatalf("second DrainAll drained %d, want 0", n)
	}

	codeHits, err := idx.Search(ctx, "parseJson", ModeCode, 10)
	if err != nil {
		t.Fatalf("code search: %v", err)
	}
	if len(codeHits) != 1 || codeHits[0].ConversationID != "c1" {
		t.Fatalf("code search = %+v, want one hit for c1", codeHits)
	}

	naturalHits, err := idx.Search(ctx, "parse", ModeNatural, 10)
	if err != nil {
		t.Fatalf("natural search: %v", err)
	}
	if len(naturalHits) == 0 {
		t.Fatal("expected stemmed natural search for 'parse' to match 'parsed/parsing/parse'-like content")
	}
}

func TestRebuildResetsDrainCursor(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	src := &fakeSource{rows: []types.IndexedMessage{
		{RowID: 1, MessageID: "c1:0", ConversationID: "c1", Content: "hello world", Role: types.RoleUser},
	}}

	if _, err := idx.DrainAll(ctx, src); err != nil {
		t.Fatalf("DrainAll: %v", err)
	}

	if err := idx.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	hits, err := idx.Search(ctx, "hello", ModeNatural, 10)
	if err != nil {
		t.Fatalf("search after rebuild: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected empty index after rebuild, got %d hits", len(hits))
	}

	n, err := idx.DrainAll(ctx, src)
	if err != nil {
		t.Fatalf("DrainAll after rebuild: %v", err)
	}
	if n != 1 {
		t.Fatalf("DrainAll after rebuild = %d, want 1 (re-indexed)", n)
	}
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	src := &fakeSource{rows: []types.IndexedMessage{
		{RowID: 1, MessageID: "c1:0", ConversationID: "c1", Content: "unique_token_xyz", Role: types.RoleUser},
	}}
	if _, err := idx.DrainAll(ctx, src); err != nil {
		t.Fatalf("DrainAll: %v", err)
	}

	if err := idx.Forget(ctx, "c1:0"); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	hits, err := idx.Search(ctx, "unique_token_xyz", ModeCode, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits after Forget, got %d", len(hits))
	}
}

func TestSweepRemovesOrphans(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	src := &fakeSource{rows: []types.IndexedMessage{
		{RowID: 1, MessageID: "c1:0", ConversationID: "c1", Content: "alpha bravo", Role: types.RoleUser},
		{RowID: 2, MessageID: "c2:0", ConversationID: "c2", Content: "charlie delta", Role: types.RoleUser},
	}}
	if _, err := idx.DrainAll(ctx, src); err != nil {
		t.Fatalf("DrainAll: %v", err)
	}

	removed, err := idx.Sweep(ctx, map[string]struct{}{"c1:0": {}})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 2 { // one row per FTS table for c2:0
		t.Fatalf("Sweep removed %d rows, want 2", removed)
	}

	hits, err := idx.Search(ctx, "charlie", ModeNatural, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected c2's rows swept, got %d hits", len(hits))
	}

	hits, err = idx.Search(ctx, "alpha", ModeNatural, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected c1's rows to survive sweep, got %d hits", len(hits))
	}
}
