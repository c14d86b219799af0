package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/byteowlz/hstry/internal/adapter/registry"
	"github.com/byteowlz/hstry/internal/storage/sqlite"
	"github.com/byteowlz/hstry/internal/types"
)

// writeFixtureAdapter installs a manifest + shell-script adapter in dir
// that pages three conversations across two batches of two, so Run's
// Parsing→Committing loop and the Store's cursor
// persistence get exercised against a real subprocess without depending
// on node/deno/bun being installed.
func writeFixtureAdapter(t *testing.T, dir string, confidence float64) {
	t.Helper()
	manifest := `{"name":"fixture","displayName":"Fixture","version":"1.0","scriptHost":"sh"}`
	if err := os.WriteFile(filepath.Join(dir, "fixture.manifest.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	script := `#!/bin/sh
read req
case "$req" in
  *'"op":"detect"'*)
    echo '{"confidence":` + formatFloat(confidence) + `}'
    ;;
  *'"cursor":"Yg=="'*)
    echo '{"done":true}'
    ;;
  *'"cursor":"YQ=="'*)
    cat <<'EOF'
{"conversation":{"externalId":"c3","createdAt":3,"messages":[{"role":"user","content":"three"}]}}
{"cursor":"Yg=="}
{"done":true}
EOF
    ;;
  *)
    cat <<'EOF'
{"conversation":{"externalId":"c1","createdAt":1,"messages":[{"role":"user","content":"one"}]}}
{"conversation":{"externalId":"c2","createdAt":2,"messages":[{"role":"assistant","content":"two"}]}}
{"cursor":"YQ=="}
{"done":true}
EOF
    ;;
esac
`
	if err := os.WriteFile(filepath.Join(dir, "fixture.sh"), []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
}

func formatFloat(f float64) string {
	if f == 0.9 {
		return "0.9"
	}
	return "0.1"
}

func newTestIngestor(t *testing.T, confidence float64) (*Ingestor, *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	dir := t.TempDir()
	writeFixtureAdapter(t, dir, confidence)
	reg := &registry.Registry{Dirs: []string{dir}}

	ig := New(store, nil, reg)
	ig.BatchSize = 2
	return ig, store
}

func testSource() *types.Source {
	return &types.Source{ID: "s1", Adapter: "fixture", Path: "/fake/path", Enabled: true}
}

func TestIngestorRunPagesAcrossBatches(t *testing.T) {
	ig, store := newTestIngestor(t, 0.9)
	ctx := context.Background()
	src := testSource()
	if err := store.CreateSource(ctx, src); err != nil {
		t.Fatalf("create source: %v", err)
	}

	rep := ig.Run(ctx, src)
	if rep.Err != nil {
		t.Fatalf("Run: %v", rep.Err)
	}
	if rep.State != StateIdle {
		t.Fatalf("expected StateIdle, got %s", rep.State)
	}
	if rep.BatchesCommitted != 2 {
		t.Fatalf("expected 2 batches committed, got %d", rep.BatchesCommitted)
	}
	if rep.ConversationsUpserted != 3 {
		t.Fatalf("expected 3 conversations upserted, got %d", rep.ConversationsUpserted)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Conversations != 3 {
		t.Fatalf("expected 3 stored conversations, got %d", stats.Conversations)
	}
}

// A second run against an exhausted source commits no new conversations
// and leaves the message count unchanged.
func TestIngestorRunTwiceIsIdempotent(t *testing.T) {
	ig, store := newTestIngestor(t, 0.9)
	ctx := context.Background()
	src := testSource()
	if err := store.CreateSource(ctx, src); err != nil {
		t.Fatalf("create source: %v", err)
	}

	first := ig.Run(ctx, src)
	if first.Err != nil {
		t.Fatalf("first run: %v", first.Err)
	}

	statsBefore, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	second := ig.Run(ctx, src)
	if second.Err != nil {
		t.Fatalf("second run: %v", second.Err)
	}
	if second.ConversationsUpserted != 0 {
		t.Fatalf("expected second run to commit nothing new, got %d", second.ConversationsUpserted)
	}

	statsAfter, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if statsAfter.Conversations != statsBefore.Conversations || statsAfter.Messages != statsBefore.Messages {
		t.Fatalf("expected unchanged counts, before=%+v after=%+v", statsBefore, statsAfter)
	}
}

func TestIngestorRunBelowDetectThresholdStaysIdle(t *testing.T) {
	ig, store := newTestIngestor(t, 0.1)
	ctx := context.Background()
	src := testSource()
	if err := store.CreateSource(ctx, src); err != nil {
		t.Fatalf("create source: %v", err)
	}

	rep := ig.Run(ctx, src)
	if rep.Err != nil {
		t.Fatalf("Run: %v", rep.Err)
	}
	if rep.State != StateIdle {
		t.Fatalf("expected StateIdle below threshold, got %s", rep.State)
	}
	if rep.BatchesCommitted != 0 {
		t.Fatalf("expected no batches committed below threshold, got %d", rep.BatchesCommitted)
	}
}
