package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/byteowlz/hstry/internal/adapter/registry"
	"github.com/byteowlz/hstry/internal/types"
)

// scriptSandbox writes body as an executable shell script and returns a
// Sandbox whose ScriptHost is "sh", so tests exercise a real subprocess
// without depending on node/deno/bun being installed.
func scriptSandbox(t *testing.T, body string) *Sandbox {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "adapter.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	resolved := &registry.Resolved{
		ScriptPath: path,
		ScriptHost: "sh",
		Manifest:   registry.Manifest{Name: "fixture"},
	}
	return New(resolved, Limits{WallClock: 5 * time.Second, RecordTimeout: 2 * time.Second})
}

func TestSandboxInfo(t *testing.T) {
	s := scriptSandbox(t, `cat <<'EOF'
{"manifest":{"name":"fixture","displayName":"Fixture","version":"1.0"}}
EOF
`)
	info, err := s.Info(context.Background())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Name != "fixture" {
		t.Errorf("expected name fixture, got %q", info.Name)
	}
}

func TestSandboxDetect(t *testing.T) {
	s := scriptSandbox(t, `echo '{"confidence":0.9}'`)
	conf, err := s.Detect(context.Background(), "/some/path")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if conf != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", conf)
	}
}

func TestSandboxOneShotError(t *testing.T) {
	s := scriptSandbox(t, `echo '{"error":{"code":"bad_path","message":"no such file"}}'`)
	_, err := s.Detect(context.Background(), "/nope")
	if !errors.Is(err, types.ErrAdapterProtocol) {
		t.Fatalf("expected ErrAdapterProtocol, got %v", err)
	}
}

func TestSandboxParseStreamsRecords(t *testing.T) {
	s := scriptSandbox(t, `cat <<'EOF'
{"conversation":{"externalId":"c1","createdAt":1,"messages":[{"role":"user","content":"hi"}]}}
{"conversation":{"externalId":"c2","createdAt":2,"messages":[{"role":"assistant","content":"hey"}]}}
{"cursor":"AAE="}
{"done":true}
EOF
`)
	var got []string
	cursor, err := s.Parse(context.Background(), "/some/path", RequestOptions{}, func(c *ConversationWire) error {
		got = append(got, c.ExternalID)
		return nil
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 2 || got[0] != "c1" || got[1] != "c2" {
		t.Fatalf("unexpected records: %v", got)
	}
	if len(cursor) == 0 {
		t.Fatalf("expected non-empty cursor")
	}
}

func TestSandboxParseMidStreamError(t *testing.T) {
	s := scriptSandbox(t, `cat <<'EOF'
{"conversation":{"externalId":"c1","createdAt":1,"messages":[{"role":"user","content":"hi"}]}}
{"error":{"code":"parse_failed","message":"corrupt record"}}
EOF
`)
	_, err := s.Parse(context.Background(), "/some/path", RequestOptions{}, func(*ConversationWire) error { return nil })
	if !errors.Is(err, types.ErrAdapterProtocol) {
		t.Fatalf("expected ErrAdapterProtocol, got %v", err)
	}
}

func TestSandboxParseDropsMalformedLinesUpToThreshold(t *testing.T) {
	s := scriptSandbox(t, `cat <<'EOF'
not json
{"conversation":{"externalId":"c1","createdAt":1,"messages":[{"role":"user","content":"hi"}]}}
{"done":true}
EOF
`)
	var count int
	_, err := s.Parse(context.Background(), "/some/path", RequestOptions{}, func(*ConversationWire) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}
}

func TestSandboxParseExceedsDropThreshold(t *testing.T) {
	s := New(&registry.Resolved{ScriptPath: "", ScriptHost: "sh", Manifest: registry.Manifest{Name: "fixture"}}, Limits{MaxDropped: 1, WallClock: 5 * time.Second, RecordTimeout: 2 * time.Second})
	dir := t.TempDir()
	path := filepath.Join(dir, "adapter.sh")
	script := "#!/bin/sh\ncat <<'EOF'\nnope\nnope\nnope\nEOF\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	s.Resolved.ScriptPath = path

	_, err := s.Parse(context.Background(), "/some/path", RequestOptions{}, func(*ConversationWire) error { return nil })
	if !errors.Is(err, types.ErrAdapterProtocol) {
		t.Fatalf("expected ErrAdapterProtocol, got %v", err)
	}
}

func TestSandboxWallClockTimeout(t *testing.T) {
	s := scriptSandbox(t, `sleep 5`)
	s.Limits.WallClock = 200 * time.Millisecond
	s.Limits.RecordTimeout = 5 * time.Second
	_, err := s.Parse(context.Background(), "/some/path", RequestOptions{}, func(*ConversationWire) error { return nil })
	if !errors.Is(err, types.ErrAdapterTimeout) {
		t.Fatalf("expected ErrAdapterTimeout, got %v", err)
	}
}
