package registry

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/byteowlz/hstry/internal/config"
	"github.com/byteowlz/hstry/internal/types"
)

// Entry is a discovered adapter: its manifest plus the resolved paths
// needed to run it.
type Entry struct {
	Manifest   Manifest
	ScriptPath string
}

// scriptHostCandidates lists the external scripting runtimes the
// registry will auto-detect on PATH, in preference order.
var scriptHostCandidates = []string{"bun", "deno", "node"}

// Registry discovers adapters from a precedence-ordered list of
// directories and resolves the scripting host to run them with.
type Registry struct {
	// Dirs is searched in order; earlier directories take precedence
	// when the same adapter name appears in more than one.
	Dirs []string

	// ConfiguredHost overrides auto-detection when non-empty.
	ConfiguredHost string
}

// New builds a Registry from cfg's adapter_paths and scripting-host
// selection.
func New(cfg *config.Config) *Registry {
	host := cfg.ScriptHost
	if host == "auto" {
		host = ""
	}
	return &Registry{Dirs: cfg.AdapterPaths, ConfiguredHost: host}
}

// Discover walks Dirs in precedence order and returns one Entry per
// adapter name, the first directory to define a name winning over
// later ones.
func (r *Registry) Discover() ([]Entry, error) {
	seen := map[string]bool{}
	var out []Entry

	for _, dir := range r.Dirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("registry: reading %s: %w", dir, err)
		}

		for _, e := range entries {
			if e.IsDir() || strings.HasSuffix(e.Name(), manifestSuffix) {
				continue
			}
			scriptPath := filepath.Join(dir, e.Name())
			m, err := loadManifest(scriptPath)
			if err != nil {
				continue // not every file in the dir is necessarily an adapter script
			}
			if seen[m.Name] {
				continue
			}
			seen[m.Name] = true
			out = append(out, Entry{Manifest: *m, ScriptPath: scriptPath})
		}
	}
	return out, nil
}

// Resolved is what Resolve returns: everything the Adapter Runtime
// needs to spawn an invocation.
type Resolved struct {
	ScriptPath string
	Manifest   Manifest
	ScriptHost string
}

// Resolve finds adapterName across Dirs and picks its scripting host.
func (r *Registry) Resolve(adapterName string) (*Resolved, error) {
	entries, err := r.Discover()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Manifest.Name != adapterName {
			continue
		}
		host, err := r.resolveHost(e.Manifest)
		if err != nil {
			return nil, err
		}
		return &Resolved{ScriptPath: e.ScriptPath, Manifest: e.Manifest, ScriptHost: host}, nil
	}
	return nil, fmt.Errorf("%w: %s", types.ErrAdapterNotFound, adapterName)
}

// resolveHost picks the scripting runtime for m: an explicit manifest
// override, then the registry's configured host, then the first
// candidate found on PATH.
func (r *Registry) resolveHost(m Manifest) (string, error) {
	if m.ScriptHost != "" {
		return m.ScriptHost, nil
	}
	if r.ConfiguredHost != "" {
		return r.ConfiguredHost, nil
	}
	for _, candidate := range scriptHostCandidates {
		if _, err := exec.LookPath(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no scripting host found on PATH (tried %s)", types.ErrAdapterHostUnavailable, strings.Join(scriptHostCandidates, ", "))
}
