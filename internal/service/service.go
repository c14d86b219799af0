package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/byteowlz/hstry/internal/adapter/registry"
	"github.com/byteowlz/hstry/internal/adapter/runtime"
	"github.com/byteowlz/hstry/internal/dedup"
	"github.com/byteowlz/hstry/internal/ingest"
	"github.com/byteowlz/hstry/internal/index"
	"github.com/byteowlz/hstry/internal/rpc"
	"github.com/byteowlz/hstry/internal/storage"
	"github.com/byteowlz/hstry/internal/telemetry"
)

// Service owns a running instance's lock, RPC endpoint, and Watcher.
type Service struct {
	Store    storage.Storage
	Index    *index.Index
	Registry *registry.Registry

	// SourcePrecedence feeds the at-ingest Dedup Engine pass's canonical
	// tie-break, sourced from config's `[dedup]`
	// table.
	SourcePrecedence []string

	PollInterval time.Duration
	StorePath    string
	Version      string
}

// Run acquires the service lock, opens the RPC endpoint, and runs the
// Watcher until ctx is cancelled or a fatal error occurs. Returns
// lockfile.ErrLocked immediately if another instance is already running.
func (s *Service) Run(ctx context.Context) error {
	lk, err := acquireLock(s.StorePath, s.Version)
	if err != nil {
		return err
	}
	defer lk.Close()

	// Clean up adapter sandboxes a crashed prior instance left behind.
	runtime.SweepStale(24 * time.Hour)

	listener, err := rpc.Listen(SocketPath())
	if err != nil {
		return fmt.Errorf("service: listen: %w", err)
	}
	defer listener.Close()

	metrics, err := telemetry.Setup(ctx)
	if err != nil {
		slog.Warn("service: telemetry setup failed, continuing without metrics", "err", err)
		metrics = nil
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metrics.Shutdown(shutdownCtx)
		}()
	}

	rpcServer := rpc.NewServer(s.Store, s.Index)
	if metrics != nil {
		rpcServer.OnRequest = func(m rpc.Method) {
			metrics.RPCRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("method", string(m))))
		}
	}

	ig := ingest.New(s.Store, s.Index, s.Registry)
	dd := dedup.New(s.Store, s.SourcePrecedence)

	watcher := &Watcher{
		Store:        s.Store,
		Index:        s.Index,
		Ingestor:     ig,
		Dedup:        dd,
		RPC:          rpcServer,
		Metrics:      metrics,
		PollInterval: s.PollInterval,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rpcServer.Serve(gctx, listener) })
	g.Go(func() error { return watcher.Run(gctx) })

	slog.Info("service: started", "socket", SocketPath(), "pollIntervalSecs", int(s.pollInterval().Seconds()))
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Service) pollInterval() time.Duration {
	if s.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return s.PollInterval
}
