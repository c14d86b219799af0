// Package config loads and edits the engine's TOML config file and
// resolves the XDG directories the engine persists into.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Environment variables recognized by the engine.
const (
	EnvNoService = "HSTRY_NO_SERVICE" // forces direct Store access
	EnvAPIURL    = "HSTRY_API_URL"    // overrides the HTTP facade
	EnvNoAPI     = "HSTRY_NO_API"     // disables the HTTP facade
)

// AdapterEntry is one row of the per-adapter config table.
type AdapterEntry struct {
	Name    string `toml:"name"`
	Enabled bool   `toml:"enabled"`
}

// ServiceConfig is the `[service]` table.
type ServiceConfig struct {
	Enabled          bool `toml:"enabled"`
	PollIntervalSecs int  `toml:"poll_interval_secs"`
	SearchAPI        bool `toml:"search_api"`
	SearchPort       int  `toml:"search_port,omitempty"`
}

// SearchConfig is the `[search]` table.
type SearchConfig struct {
	IndexPath      string `toml:"index_path,omitempty"`
	IndexBatchSize int    `toml:"index_batch_size"`
}

// DedupConfig is the `[dedup]` table: the user-ordered source
// precedence that tie-breaks which member of a duplicate group becomes
// canonical when created-at ties.
type DedupConfig struct {
	SourcePrecedence []string `toml:"source_precedence,omitempty"`
}

// Backend names accepted by StoreConfig.Backend and the factory registry.
const (
	BackendSQLite = "sqlite"
	BackendDolt   = "dolt"
	BackendMySQL  = "mysql"
)

// StoreConfig selects the storage backend and its connection details.
// Path is used by the file-based backends (sqlite, dolt); ServerHost/
// ServerPort/Database/DSN are used when pointing at a running Dolt SQL
// server or a MySQL instance.
type StoreConfig struct {
	Backend    string `toml:"backend"` // sqlite (default), dolt, mysql
	Path       string `toml:"path,omitempty"`
	DSN        string `toml:"dsn,omitempty"`
	ServerHost string `toml:"server_host,omitempty"`
	ServerPort int    `toml:"server_port,omitempty"`
	Database   string `toml:"database_name,omitempty"`
}

// Config is the parsed form of config.toml.
type Config struct {
	Database     string         `toml:"database"`
	AdapterPaths []string       `toml:"adapter_paths"`
	ScriptHost   string         `toml:"script_host"` // "auto" or a named runtime
	Adapter      []AdapterEntry `toml:"adapter"`
	Service      ServiceConfig  `toml:"service"`
	Search       SearchConfig   `toml:"search"`
	Store        StoreConfig    `toml:"store"`
	Dedup        DedupConfig    `toml:"dedup"`
}

// FileName is the config file's name within ConfigDir().
const FileName = "config.toml"

// Default returns a Config populated with the engine's defaults.
func Default() *Config {
	return &Config{
		Database:     filepath.Join(DataDir(), "hstry.db"),
		AdapterPaths: []string{filepath.Join(ConfigDir(), "adapters")},
		ScriptHost:   "auto",
		Service: ServiceConfig{
			Enabled:          false,
			PollIntervalSecs: 60,
			SearchAPI:        false,
		},
		Search: SearchConfig{
			IndexBatchSize: 500,
		},
		Store: StoreConfig{
			Backend: BackendSQLite,
		},
	}
}

// Path returns the absolute path of config.toml.
func Path() string {
	return filepath.Join(ConfigDir(), FileName)
}

// Load reads config.toml, returning Default() if the file does not
// exist (first run is not a ConfigError).
func Load() (*Config, error) {
	path := Path()
	data, err := os.ReadFile(path) // #nosec G304 -- path is derived from XDG resolution, not user input
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to config.toml, creating ConfigDir() if needed.
func (c *Config) Save() error {
	if err := ensureDir(ConfigDir()); err != nil {
		return fmt.Errorf("config: creating config dir: %w", err)
	}

	f, err := os.OpenFile(Path(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("config: opening %s: %w", Path(), err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("config: encoding: %w", err)
	}
	return nil
}

// EnabledAdapter reports whether the named adapter is enabled in the
// per-adapter table. Adapters not listed default to enabled.
func (c *Config) EnabledAdapter(name string) bool {
	for _, a := range c.Adapter {
		if a.Name == name {
			return a.Enabled
		}
	}
	return true
}

// SetAdapterEnabled updates (or inserts) the per-adapter table entry.
func (c *Config) SetAdapterEnabled(name string, enabled bool) {
	for i, a := range c.Adapter {
		if a.Name == name {
			c.Adapter[i].Enabled = enabled
			return
		}
	}
	c.Adapter = append(c.Adapter, AdapterEntry{Name: name, Enabled: enabled})
}

// NoService reports whether HSTRY_NO_SERVICE forces direct Store access,
// bypassing the background Service even if it is running.
func NoService() bool {
	return os.Getenv(EnvNoService) != ""
}

// NoAPI reports whether HSTRY_NO_API disables the HTTP facade.
func NoAPI() bool {
	return os.Getenv(EnvNoAPI) != ""
}

// APIURL returns the HSTRY_API_URL override, or "" if unset.
func APIURL() string {
	return os.Getenv(EnvAPIURL)
}
