package factory

import (
	"context"
	"testing"

	"github.com/byteowlz/hstry/internal/storage"
)

func TestRegisterBackend(t *testing.T) {
	called := false
	RegisterBackend("test-backend", func(ctx context.Context, path string, opts Options) (storage.Storage, error) {
		called = true
		return nil, nil
	})

	_, _ = New(context.Background(), "test-backend", "/fake")
	if !called {
		t.Error("registered backend factory was not called")
	}

	delete(backendRegistry, "test-backend")
}

func TestOptions_ZeroValue(t *testing.T) {
	opts := Options{}
	if opts.ReadOnly {
		t.Error("zero Options should not be ReadOnly")
	}
	if opts.LockTimeout != 0 {
		t.Error("zero Options should have zero LockTimeout")
	}
	if opts.ServerHost != "" {
		t.Error("zero Options should have empty ServerHost")
	}
	if opts.ServerPort != 0 {
		t.Error("zero Options should have zero ServerPort")
	}
}
