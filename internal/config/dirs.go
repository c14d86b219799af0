package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// appName scopes the XDG config/data/state directories, honored with
// the standard environment overrides and darwin fallbacks.
const appName = "hstry"

// ConfigDir returns the directory holding config.toml and user-installed
// adapters.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, _ := os.UserHomeDir()
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName)
	}
	return filepath.Join(home, ".config", appName)
}

// DataDir returns the directory holding the store file, remote snapshot
// cache, and any index files external to the store.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, _ := os.UserHomeDir()
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName)
	}
	return filepath.Join(home, ".local", "share", appName)
}

// StateDir returns the directory holding the service pidfile, socket
// path, and last-error log.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, _ := os.UserHomeDir()
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName, "state")
	}
	return filepath.Join(home, ".local", "state", appName)
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// EnsureDirs creates config/data/state directories if missing.
func EnsureDirs() error {
	for _, d := range []string{ConfigDir(), DataDir(), StateDir()} {
		if err := ensureDir(d); err != nil {
			return err
		}
	}
	return nil
}
