// Package service is the background Service: a lockfile-guarded
// singleton process that watches every enabled source, runs the
// Ingestor on a poll interval (with an fsnotify fast path), drains the
// Index, runs the Dedup Engine at-ingest, and serves the local RPC
// endpoint.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/byteowlz/hstry/internal/dedup"
	"github.com/byteowlz/hstry/internal/ingest"
	"github.com/byteowlz/hstry/internal/index"
	"github.com/byteowlz/hstry/internal/rpc"
	"github.com/byteowlz/hstry/internal/storage"
	"github.com/byteowlz/hstry/internal/telemetry"
	"github.com/byteowlz/hstry/internal/types"
)

// DefaultPollInterval matches config.Default()'s service.poll_interval_secs.
const DefaultPollInterval = 60 * time.Second

// maxFailureBackoff caps how far repeated per-source failures can
// stretch the poll interval.
const maxFailureBackoff = 30 * time.Minute

// storeUnreachable distinguishes a systemic Store failure from a
// transient per-source adapter failure. The former is not survivable:
// the service exits non-zero so its supervisor restarts it, rather
// than looping warnings against a store that is gone.
func storeUnreachable(err error) bool {
	return errors.Is(err, types.ErrStoreBusy) ||
		errors.Is(err, types.ErrStoreCorrupt) ||
		errors.Is(err, types.ErrStoreVersionMismatch)
}

// Watcher drives the per-source poll loop. One Watcher runs for the
// lifetime of the Service.
type Watcher struct {
	Store        storage.Storage
	Index        *index.Index
	Ingestor     *ingest.Ingestor
	Dedup        *dedup.Engine
	RPC          *rpc.Server
	Metrics      *telemetry.Metrics
	PollInterval time.Duration
}

// Run watches every currently-enabled source until ctx is cancelled.
// Sources added after Run starts are picked up on the next 30-second
// refresh tick.
func (w *Watcher) Run(ctx context.Context) error {
	if w.PollInterval <= 0 {
		w.PollInterval = DefaultPollInterval
	}

	refresh := time.NewTicker(30 * time.Second)
	defer refresh.Stop()

	g, gctx := errgroup.WithContext(ctx)
	running := map[string]context.CancelFunc{}

	reconcile := func() error {
		sources, err := w.Store.ListSources(gctx)
		if err != nil {
			return err
		}
		live := map[string]bool{}
		for _, src := range sources {
			if !src.Enabled {
				continue
			}
			live[src.ID] = true
			if _, ok := running[src.ID]; ok {
				continue
			}
			srcCtx, cancel := context.WithCancel(gctx)
			running[src.ID] = cancel
			src := src
			g.Go(func() error {
				return w.watchSource(srcCtx, src)
			})
		}
		for id, cancel := range running {
			if !live[id] {
				cancel()
				delete(running, id)
			}
		}
		return nil
	}

	if err := reconcile(); err != nil {
		return err
	}

	for {
		select {
		case <-gctx.Done():
			// Either the caller cancelled us, or a source watcher hit a
			// fatal Store error and failed the group.
			for _, cancel := range running {
				cancel()
			}
			if err := g.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		case <-refresh.C:
			if err := reconcile(); err != nil {
				if storeUnreachable(err) {
					for _, cancel := range running {
						cancel()
					}
					_ = g.Wait()
					return fmt.Errorf("service: store unreachable: %w", err)
				}
				slog.Warn("service: reconcile sources failed", "err", err)
			}
		}
	}
}

// watchSource polls one source every PollInterval, triggering an
// immediate extra poll whenever fsnotify sees its path change. Repeated
// per-source failures stretch the poll interval with capped exponential
// backoff; one success resets it. A Store-unreachable failure is
// returned instead, failing the whole watcher group.
func (w *Watcher) watchSource(ctx context.Context, src *types.Source) error {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.PollInterval
	bo.MaxInterval = maxFailureBackoff
	bo.MaxElapsedTime = 0

	fsEvents := w.watchFS(ctx, src.Path)

	attempt := func() error {
		err := w.poll(ctx, src)
		if err == nil {
			bo.Reset()
			ticker.Reset(w.PollInterval)
			return nil
		}
		if storeUnreachable(err) {
			return fmt.Errorf("service: store unreachable: %w", err)
		}
		ticker.Reset(bo.NextBackOff())
		return nil
	}

	if err := attempt(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := attempt(); err != nil {
				return err
			}
		case _, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if err := attempt(); err != nil {
				return err
			}
		}
	}
}

// watchFS returns a channel that receives a value on every fsnotify
// event under path, or nil if path can't be watched (network mount,
// missing, or platform without inotify support); the caller falls back
// to the poll ticker alone in that case.
func (w *Watcher) watchFS(ctx context.Context, path string) <-chan struct{} {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug("service: fsnotify unavailable, polling only", "err", err)
		return nil
	}
	if err := watcher.Add(path); err != nil {
		slog.Debug("service: fsnotify watch failed, polling only", "path", path, "err", err)
		_ = watcher.Close()
		return nil
	}

	out := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Debug("service: fsnotify error", "err", err)
			}
		}
	}()
	return out
}

// poll runs one detect-parse-commit cycle for src. A nil return means
// the cycle succeeded (a clean no-op counts); a non-nil return means it
// failed, and the caller classifies the error to decide between
// per-source backoff and failing the service.
func (w *Watcher) poll(ctx context.Context, src *types.Source) error {
	if w.Metrics != nil && w.Metrics.Tracer != nil {
		var span trace.Span
		ctx, span = w.Metrics.Tracer.Start(ctx, "service.poll",
			trace.WithAttributes(attribute.String("source.id", src.ID), attribute.String("source.adapter", src.Adapter)))
		defer span.End()
	}

	start := time.Now()
	rep := w.Ingestor.Run(ctx, src)
	if rep.Err != nil {
		slog.Warn("service: ingest failed", "source", src.ID, "err", rep.Err)
		return rep.Err
	}
	if rep.BatchesCommitted == 0 {
		return nil
	}

	if w.Metrics != nil {
		w.Metrics.IngestBatches.Add(ctx, int64(rep.BatchesCommitted))
		w.Metrics.IngestRecords.Add(ctx, int64(rep.ConversationsUpserted))
	}

	if w.Index != nil {
		drainStart := time.Now()
		for {
			n, err := w.Index.Drain(ctx, w.Store)
			if err != nil {
				if storeUnreachable(err) {
					return err
				}
				slog.Warn("service: index drain failed", "source", src.ID, "err", err)
				break
			}
			if n == 0 {
				break
			}
		}
		if w.Metrics != nil {
			w.Metrics.IndexDrainMs.Record(ctx, float64(time.Since(drainStart).Milliseconds()))
		}
	}

	if w.Dedup != nil {
		if _, err := w.Dedup.RunForSource(ctx, src.ID); err != nil {
			if storeUnreachable(err) {
				return err
			}
			slog.Warn("service: at-ingest dedup failed", "source", src.ID, "err", err)
		}
	}

	src.LastSync = start
	if err := w.Store.UpdateSource(ctx, src); err != nil {
		if storeUnreachable(err) {
			return err
		}
		slog.Warn("service: persist last-sync failed", "source", src.ID, "err", err)
	}

	if w.RPC != nil {
		w.RPC.NotifyMutation(time.Now().UnixMilli())
	}
	return nil
}
