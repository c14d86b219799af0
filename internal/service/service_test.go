package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/byteowlz/hstry/internal/adapter/registry"
	"github.com/byteowlz/hstry/internal/index"
	"github.com/byteowlz/hstry/internal/rpc"
	"github.com/byteowlz/hstry/internal/storage/sqlite"
	"github.com/byteowlz/hstry/internal/types"
)

func TestServiceRunServesRPCAndReleasesLockOnCancel(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

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

	svc := &Service{
		Store:        store,
		Index:        idx,
		Registry:     &registry.Registry{},
		PollInterval: time.Hour, // don't race the poll loop during the test
		StorePath:    ":memory:",
		Version:      "test",
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()

	var client *rpc.Client
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		client, err = rpc.Dial(ctx, SocketPath(), 200*time.Millisecond)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if client == nil {
		t.Fatalf("never connected to service socket: %v", err)
	}
	defer client.Close()

	if !IsRunning() {
		t.Fatalf("expected IsRunning true while service is up")
	}

	if _, err := client.Stats(ctx); err != nil {
		t.Fatalf("stats via rpc: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("service did not shut down after cancel")
	}
}

// A systemic Store failure must fail the watcher (so the service exits
// non-zero for its supervisor); a per-source adapter failure must not.
func TestStoreUnreachableClassification(t *testing.T) {
	for _, err := range []error{
		types.ErrStoreBusy,
		types.ErrStoreCorrupt,
		types.ErrStoreVersionMismatch,
		fmt.Errorf("ingest: commit batch: %w", types.ErrStoreBusy),
	} {
		if !storeUnreachable(err) {
			t.Errorf("storeUnreachable(%v) = false, want true", err)
		}
	}
	for _, err := range []error{
		nil,
		types.ErrAdapterTimeout,
		types.ErrAdapterProtocol,
		fmt.Errorf("adapter: fixture: no response line: %w", types.ErrAdapterProtocol),
		context.Canceled,
	} {
		if storeUnreachable(err) {
			t.Errorf("storeUnreachable(%v) = true, want false", err)
		}
	}
}

func TestAcquireLockRejectsSecondInstance(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	first, err := acquireLock("/tmp/a.db", "test")
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer first.Close()

	if _, err := acquireLock("/tmp/a.db", "test"); err == nil {
		t.Fatalf("expected second lock attempt to fail")
	}
}
