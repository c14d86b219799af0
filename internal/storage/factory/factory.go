// Package factory resolves a config.StoreConfig into a concrete
// storage.Storage backend. Backends register themselves from init so
// build tags decide what's available.
package factory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/byteowlz/hstry/internal/config"
	"github.com/byteowlz/hstry/internal/storage"
)

var errUnknownBackend = errors.New("storage: unknown backend")

// BackendFactory opens a storage backend at path with the given options.
type BackendFactory func(ctx context.Context, path string, opts Options) (storage.Storage, error)

var backendRegistry = make(map[string]BackendFactory)

// RegisterBackend registers a storage backend factory under name. Each
// backend package (sqlite, dolt, mysql) calls this from an init().
func RegisterBackend(name string, factory BackendFactory) {
	backendRegistry[name] = factory
}

// Options configures how a backend is opened.
type Options struct {
	ReadOnly    bool
	LockTimeout time.Duration
	IdleTimeout time.Duration

	// Dolt/MySQL server connection options. The mysql backend always
	// uses them (it ignores path); the dolt backend uses them when
	// ServerHost is set, and always on non-CGO builds.
	ServerHost     string
	ServerPort     int
	ServerUser     string
	ServerPassword string
	Database       string

	// DSN, when set, is used verbatim by the mysql backend instead of
	// assembling one from ServerHost/ServerPort/ServerUser/ServerPassword/
	// Database. The dolt backend does not read it.
	DSN string
}

// New opens backend at path with default options.
func New(ctx context.Context, backend, path string) (storage.Storage, error) {
	return NewWithOptions(ctx, backend, path, Options{})
}

// NewWithOptions opens backend at path with opts.
func NewWithOptions(ctx context.Context, backend, path string, opts Options) (storage.Storage, error) {
	if backend == "" {
		backend = config.BackendSQLite
	}
	factory, ok := backendRegistry[backend]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownBackend, backend)
	}
	return factory(ctx, path, opts)
}

// NewFromConfig opens the backend named in cfg's StoreConfig, resolving
// its path under dataDir.
func NewFromConfig(ctx context.Context, cfg *config.Config, dataDir string) (storage.Storage, error) {
	return NewFromConfigWithOptions(ctx, cfg, dataDir, Options{})
}

// NewFromConfigWithOptions opens the backend named in cfg's
// StoreConfig with opts merged in.
func NewFromConfigWithOptions(ctx context.Context, cfg *config.Config, dataDir string, opts Options) (storage.Storage, error) {
	backend := cfg.Store.Backend
	if backend == "" {
		backend = config.BackendSQLite
	}

	path := cfg.Store.Path
	if path == "" && backend == config.BackendSQLite {
		// The top-level `database` key predates the [store] table and
		// still names the sqlite file when [store] doesn't.
		path = cfg.Database
	}
	if path == "" {
		switch backend {
		case config.BackendSQLite:
			path = filepath.Join(dataDir, "hstry.db")
		case config.BackendDolt:
			path = filepath.Join(dataDir, "dolt")
		default:
			path = dataDir
		}
	}

	if opts.ServerHost == "" {
		opts.ServerHost = cfg.Store.ServerHost
	}
	if opts.ServerPort == 0 {
		opts.ServerPort = cfg.Store.ServerPort
	}
	if opts.Database == "" {
		opts.Database = cfg.Store.Database
	}
	if opts.DSN == "" {
		opts.DSN = cfg.Store.DSN
	}

	return NewWithOptions(ctx, backend, path, opts)
}
