package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/byteowlz/hstry/internal/search"
	"github.com/byteowlz/hstry/internal/storage/sqlite"
	"github.com/byteowlz/hstry/internal/types"
)

// writeFakeSSH installs a shell script standing in for the real `ssh`
// binary: it runs the given remote command through the local shell
// instead of actually connecting anywhere, so Fetch/Test/SyncPull can be
// exercised without a real sshd.
func writeFakeSSH(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "fake-ssh.sh")
	script := "#!/bin/sh\nshift\nsh -c \"$1\"\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ssh: %v", err)
	}
	return path
}

// writeFakeRemoteBinary installs a script standing in for the `hstry`
// binary on the remote host, used only by Test's `--version` handshake.
func writeFakeRemoteBinary(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "fake-hstry.sh")
	script := "#!/bin/sh\necho 'hstry-test 0.1.0'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake remote binary: %v", err)
	}
	return path
}

// buildRemoteSnapshot creates a real sqlite store file at
// <remoteDataDir>/hstry.db with one source and one conversation, so
// Fetch has real bytes to stream.
func buildRemoteSnapshot(t *testing.T, remoteDataDir string) {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(remoteDataDir, "hstry.db")
	store, err := sqlite.Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("open remote store: %v", err)
	}
	defer store.Close()

	if err := store.CreateSource(ctx, &types.Source{ID: "local1", Adapter: "fixture", Path: "/x", Enabled: true}); err != nil {
		t.Fatalf("create remote source: %v", err)
	}
	if _, err := store.UpsertConversation(ctx, &types.Conversation{
		SourceID: "local1", ExternalID: "r1", CreatedAt: 1, UpdatedAt: 1,
		Messages: []types.Message{{Role: types.RoleUser, Content: "remote hello"}},
	}); err != nil {
		t.Fatalf("upsert remote conversation: %v", err)
	}
}

func newTestGateway(t *testing.T) (*Gateway, *sqlite.Store, string) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	scratch := t.TempDir()
	remoteDataDir := filepath.Join(scratch, "remote-data")
	if err := os.MkdirAll(remoteDataDir, 0o755); err != nil {
		t.Fatalf("mkdir remote data dir: %v", err)
	}
	buildRemoteSnapshot(t, remoteDataDir)

	gw := &Gateway{
		Store:        store,
		CacheDir:     filepath.Join(scratch, "cache"),
		SSHBin:       writeFakeSSH(t, scratch),
		RemoteBinary: writeFakeRemoteBinary(t, scratch),
	}
	return gw, store, remoteDataDir
}

func TestGatewayTestHandshake(t *testing.T) {
	gw, _, remoteDataDir := newTestGateway(t)
	r := &types.Remote{Name: "r1", ConnectionStr: fmt.Sprintf("fakehost:%s", remoteDataDir), Enabled: true}
	if err := gw.Test(context.Background(), r); err != nil {
		t.Fatalf("Test: %v", err)
	}
}

func TestGatewayFetchWritesSnapshotAtomically(t *testing.T) {
	gw, store, remoteDataDir := newTestGateway(t)
	ctx := context.Background()
	r := &types.Remote{Name: "r1", ConnectionStr: fmt.Sprintf("fakehost:%s", remoteDataDir), Enabled: true}

	path, err := gw.Fetch(ctx, r)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected snapshot file to exist: %v", err)
	}

	stored, err := store.GetRemote(ctx, "r1")
	if err != nil {
		t.Fatalf("get remote: %v", err)
	}
	if stored.SnapshotPath != path {
		t.Fatalf("expected persisted snapshot path %s, got %s", path, stored.SnapshotPath)
	}
}

func TestGatewaySyncPullNamespacesSourceAndMergesConversations(t *testing.T) {
	gw, store, remoteDataDir := newTestGateway(t)
	ctx := context.Background()
	r := &types.Remote{Name: "r1", ConnectionStr: fmt.Sprintf("fakehost:%s", remoteDataDir), Enabled: true}

	res, err := gw.SyncPull(ctx, r)
	if err != nil {
		t.Fatalf("SyncPull: %v", err)
	}
	if res.SourcesMerged != 1 || res.ConversationsMerged != 1 {
		t.Fatalf("unexpected pull result: %+v", res)
	}

	src, err := store.GetSource(ctx, "r1:local1")
	if err != nil {
		t.Fatalf("expected namespaced source r1:local1, got err: %v", err)
	}
	if src.RemoteName != "r1" {
		t.Fatalf("expected remote name r1, got %s", src.RemoteName)
	}

	convs, err := store.ListConversations(ctx, types.Filter{SourceID: "r1:local1"}, types.Paging{Limit: 10})
	if err != nil {
		t.Fatalf("list merged conversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected 1 merged conversation, got %d", len(convs))
	}
}

func TestGatewayFederatedSearchTagsRemoteHits(t *testing.T) {
	gw, _, remoteDataDir := newTestGateway(t)
	ctx := context.Background()
	r := &types.Remote{Name: "r1", ConnectionStr: fmt.Sprintf("fakehost:%s", remoteDataDir), Enabled: true}

	local := &search.Result{}
	merged, err := gw.FederatedSearch(ctx, search.Request{Query: "hello", Limit: 10}, local, []*types.Remote{r}, 0)
	if err != nil {
		t.Fatalf("FederatedSearch: %v", err)
	}
	if len(merged.Hits) != 1 {
		t.Fatalf("expected 1 federated hit, got %d", len(merged.Hits))
	}
	if merged.Hits[0].Remote != "r1" {
		t.Fatalf("expected hit tagged with remote r1, got %q", merged.Hits[0].Remote)
	}
}
