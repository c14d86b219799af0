package factory_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/byteowlz/hstry/internal/config"
	"github.com/byteowlz/hstry/internal/storage/factory"
	_ "github.com/byteowlz/hstry/internal/storage/sqlite"
)

func TestNew_SQLiteBackend(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := factory.New(ctx, config.BackendSQLite, dbPath)
	if err != nil {
		t.Fatalf("New(sqlite) failed: %v", err)
	}
	defer store.Close()

	if store == nil {
		t.Fatal("New(sqlite) returned nil store")
	}
}

func TestNew_EmptyBackendDefaultsToSQLite(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := factory.New(ctx, "", dbPath)
	if err != nil {
		t.Fatalf("New('') failed: %v", err)
	}
	defer store.Close()

	if store == nil {
		t.Fatal("New('') returned nil store")
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	ctx := context.Background()

	_, err := factory.New(ctx, "unknown-backend", "/tmp/fake")
	if err == nil {
		t.Fatal("New(unknown) should return error")
	}
	if !strings.Contains(err.Error(), "unknown backend") {
		t.Errorf("error should mention unknown backend, got: %v", err)
	}
}

func TestNewWithOptions_ReadOnly(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := factory.New(ctx, config.BackendSQLite, dbPath)
	if err != nil {
		t.Fatalf("creating DB: %v", err)
	}
	store.Close()

	roStore, err := factory.NewWithOptions(ctx, config.BackendSQLite, dbPath, factory.Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("NewWithOptions(ReadOnly) failed: %v", err)
	}
	defer roStore.Close()

	if roStore == nil {
		t.Fatal("NewWithOptions(ReadOnly) returned nil store")
	}
}

func TestNewFromConfig_DefaultsToSQLitePath(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataDir)

	cfg := config.Default()
	store, err := factory.NewFromConfig(ctx, cfg, dataDir)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	defer store.Close()
}
