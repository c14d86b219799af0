//go:build !cgo

// Non-CGO builds can't link the embedded dolthub/driver engine, so the
// dolt backend only offers server mode here: connect to an
// externally-run `dolt sql-server` over the MySQL wire protocol.
package dolt

import (
	"context"

	"github.com/byteowlz/hstry/internal/config"
	"github.com/byteowlz/hstry/internal/storage"
	"github.com/byteowlz/hstry/internal/storage/factory"
)

func init() {
	factory.RegisterBackend(config.BackendDolt, func(ctx context.Context, _ string, opts factory.Options) (storage.Storage, error) {
		return openServer(ctx, opts)
	})
}
