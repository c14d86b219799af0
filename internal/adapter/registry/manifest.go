// Package registry discovers adapter scripts and their manifests from
// configured directories, and resolves a scripting host to run them
// with.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Manifest describes one adapter script.
type Manifest struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"displayName"`
	Version      string   `json:"version"`
	DefaultPaths []string `json:"defaultPaths,omitempty"`
	ScriptHost   string   `json:"scriptHost,omitempty"` // explicit override, "" means auto
	Enabled      bool     `json:"-"`                    // never read from the manifest file and not set by Discover; enablement is config.EnabledAdapter
}

// manifestSuffix names the sidecar file read next to each adapter
// script: <adapter>.manifest.json.
const manifestSuffix = ".manifest.json"

// loadManifest reads and validates the manifest sidecar for scriptPath.
func loadManifest(scriptPath string) (*Manifest, error) {
	manifestPath := scriptPath[:len(scriptPath)-len(filepath.Ext(scriptPath))] + manifestSuffix
	data, err := os.ReadFile(manifestPath) // #nosec G304 -- manifestPath is derived from a configured adapter directory, not external input
	if err != nil {
		return nil, fmt.Errorf("registry: reading manifest %s: %w", manifestPath, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("registry: parsing manifest %s: %w", manifestPath, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("registry: manifest %s has no name", manifestPath)
	}
	return &m, nil
}
