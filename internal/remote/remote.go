// Package remote implements the Remote Gateway: it invokes the same
// `hstry` binary on a peer host over SSH, streams a store snapshot into
// a local per-remote cache, merges its rows into the local Store
// with remote-name namespacing, and fans federated searches out across
// cached snapshots. Unlike the Adapter Runtime's line-delimited JSON
// protocol against an untrusted adapter script, the peer here is
// another instance of this same binary, so the transport is a plain
// byte stream over `ssh` rather than a wire protocol of its own; there
// is no custom daemon.
package remote

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/byteowlz/hstry/internal/config"
	"github.com/byteowlz/hstry/internal/storage"
	"github.com/byteowlz/hstry/internal/storage/sqlite"
	"github.com/byteowlz/hstry/internal/types"
)

// DefaultSSHTimeout bounds one SSH round trip.
const DefaultSSHTimeout = 30 * time.Second

// Gateway drives remote operations against the local Store.
type Gateway struct {
	Store storage.Storage

	// CacheDir holds one remotes/<name>/snapshot.db per remote.
	CacheDir string

	// SSHBin and RemoteBinary are overridable for testing without a
	// real sshd; production defaults are "ssh" and "hstry".
	SSHBin       string
	RemoteBinary string

	Timeout time.Duration
}

// NewGateway builds a Gateway with production defaults.
func NewGateway(store storage.Storage) *Gateway {
	return &Gateway{
		Store:        store,
		CacheDir:     filepath.Join(config.DataDir(), "remotes"),
		SSHBin:       "ssh",
		RemoteBinary: "hstry",
		Timeout:      DefaultSSHTimeout,
	}
}

// target is a parsed Remote.ConnectionStr ("user@host:/path/to/.hstry").
type target struct {
	sshTarget string // "user@host"
	remoteDir string // "/path/to/.hstry"
}

func parseConnectionStr(s string) (target, error) {
	i := strings.Index(s, ":")
	if i <= 0 || i == len(s)-1 {
		return target{}, fmt.Errorf("%w: malformed connection string %q, want user@host:/path", types.ErrConfig, s)
	}
	return target{sshTarget: s[:i], remoteDir: s[i+1:]}, nil
}

func (g *Gateway) timeout() time.Duration {
	if g.Timeout <= 0 {
		return DefaultSSHTimeout
	}
	return g.Timeout
}

func (g *Gateway) sshBin() string {
	if g.SSHBin == "" {
		return "ssh"
	}
	return g.SSHBin
}

func (g *Gateway) remoteBinary() string {
	if g.RemoteBinary == "" {
		return "hstry"
	}
	return g.RemoteBinary
}

// runSSH execs `ssh <target> <remoteCommand>` with ctx's deadline
// shortened to g.timeout(), returning stdout. Any non-zero exit or
// connection failure is wrapped as ErrRemoteUnreachable.
func (g *Gateway) runSSH(ctx context.Context, tgt target, remoteCommand string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, g.sshBin(), tgt.sshTarget, remoteCommand)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ssh %s %q: %v", types.ErrRemoteUnreachable, tgt.sshTarget, remoteCommand, err)
	}
	return out, nil
}

// Test verifies a remote is reachable and running a compatible binary.
func (g *Gateway) Test(ctx context.Context, r *types.Remote) error {
	tgt, err := parseConnectionStr(r.ConnectionStr)
	if err != nil {
		return err
	}
	out, err := g.runSSH(ctx, tgt, fmt.Sprintf("%s --version", g.remoteBinary()))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(out))) == 0 {
		return fmt.Errorf("%w: %s: empty --version output", types.ErrRemoteVersionMismatch, r.Name)
	}
	return nil
}

// Fetch streams the remote store file to CacheDir/<name>/snapshot.db
// through a randomly named temporary file and an atomic rename, so a
// reader never observes a partially-written snapshot. Neither the
// temporary nor the snapshot is named by content hash; each fetch
// replaces the previous snapshot.
func (g *Gateway) Fetch(ctx context.Context, r *types.Remote) (string, error) {
	tgt, err := parseConnectionStr(r.ConnectionStr)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(g.CacheDir, r.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("remote: create cache dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, g.sshBin(), tgt.sshTarget, fmt.Sprintf("cat %s", quoteRemotePath(filepath.Join(tgt.remoteDir, "hstry.db"))))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("remote: stdout pipe: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return "", fmt.Errorf("remote: create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if err := cmd.Start(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: ssh start: %v", types.ErrRemoteUnreachable, err)
	}

	w := bufio.NewWriter(tmp)
	n, copyErr := io.Copy(w, stdout)
	flushErr := w.Flush()
	closeErr := tmp.Close()
	waitErr := cmd.Wait()

	if waitErr != nil {
		return "", fmt.Errorf("%w: ssh fetch: %v", types.ErrRemoteUnreachable, waitErr)
	}
	if copyErr != nil {
		return "", fmt.Errorf("remote: copy snapshot: %w", copyErr)
	}
	if flushErr != nil {
		return "", flushErr
	}
	if closeErr != nil {
		return "", closeErr
	}
	if n == 0 {
		return "", fmt.Errorf("%w: empty snapshot from %s", types.ErrRemoteUnreachable, r.Name)
	}

	snapshotPath := filepath.Join(dir, "snapshot.db")
	if err := os.Rename(tmpPath, snapshotPath); err != nil {
		return "", fmt.Errorf("remote: atomic rename snapshot: %w", err)
	}

	r.LastFetch = time.Now()
	r.SnapshotPath = snapshotPath
	if err := g.Store.UpsertRemote(ctx, r); err != nil {
		return "", fmt.Errorf("remote: persist fetch metadata: %w", err)
	}
	return snapshotPath, nil
}

// quoteRemotePath wraps path in single quotes for the remote shell,
// escaping any embedded single quote.
func quoteRemotePath(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

// openSnapshot opens a fetched snapshot read-only-in-practice: the
// Gateway only ever queries it, never writes, but sqlite.Open doesn't
// expose a read-only mode of its own, so callers are trusted not to
// mutate it.
func openSnapshot(ctx context.Context, path string) (*sqlite.Store, error) {
	return sqlite.Open(ctx, path)
}
