// Script tests drive the built hstry binary through its CLI surface
// the way a user or another process would, asserting on
// stdout and exit codes instead of calling package internals directly.
package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// buildHstry compiles the hstry binary once per test run and returns
// its directory, so `exec hstry` inside script files resolves it via
// PATH.
func buildHstry(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping script tests in short mode")
	}

	bin := filepath.Join(t.TempDir(), "hstry")
	cmd := exec.Command("go", "build", "-o", bin, ".")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build ./cmd/hstry: %v\n%s", err, out)
	}
	return filepath.Dir(bin)
}

// TestScripts runs every testdata/script/*.txt file against the
// compiled hstry binary. Each script runs in its own $WORK directory
// and points HOME/XDG_* under it with its own env lines, so
// sources/config never leak between scripts.
func TestScripts(t *testing.T) {
	binDir := buildHstry(t)

	env := append(os.Environ(),
		"PATH="+binDir+string(os.PathListSeparator)+os.Getenv("PATH"),
		"HSTRY_NO_SERVICE=1",
	)

	newEngine := func() *script.Engine {
		return &script.Engine{
			Cmds:  script.DefaultCmds(),
			Conds: script.DefaultConds(),
			Quiet: !testing.Verbose(),
		}
	}

	scripttest.Test(t, context.Background(), newEngine(), env, "testdata/script/*.txt")
}
