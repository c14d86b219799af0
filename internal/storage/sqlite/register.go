package sqlite

import (
	"context"

	"github.com/byteowlz/hstry/internal/config"
	"github.com/byteowlz/hstry/internal/storage"
	"github.com/byteowlz/hstry/internal/storage/factory"
)

func init() {
	factory.RegisterBackend(config.BackendSQLite, func(ctx context.Context, path string, _ factory.Options) (storage.Storage, error) {
		return Open(ctx, path)
	})
}
