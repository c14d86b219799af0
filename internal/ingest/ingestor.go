// Package ingest implements the per-source Ingestor state machine:
// Idle → Detecting → Parsing → Committing → Idle | Failed, driving
// detect→parse→normalize→upsert→index for one source. A run returns one
// aggregated Report per source rather than erroring out of the whole
// batch.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/byteowlz/hstry/internal/adapter/registry"
	"github.com/byteowlz/hstry/internal/adapter/runtime"
	"github.com/byteowlz/hstry/internal/index"
	"github.com/byteowlz/hstry/internal/storage"
	"github.com/byteowlz/hstry/internal/types"
)

// State is one node of the Ingestor's per-source state machine.
type State string

const (
	StateIdle       State = "idle"
	StateDetecting  State = "detecting"
	StateParsing    State = "parsing"
	StateCommitting State = "committing"
	StateFailed     State = "failed"
)

// Defaults for the configurable ingestion knobs.
const (
	DefaultDetectThreshold = 0.5
	DefaultBatchSize       = 50
)

// Report summarizes one Run call, aggregated by callers into a
// multi-source run report.
type Report struct {
	SourceID              string
	State                 State
	Confidence            float64
	BatchesCommitted      int
	ConversationsUpserted int
	ConversationsDropped  int // zero-message records, rolled back per conversation
	Err                   error
}

// Ingestor orchestrates detect→parse→normalize→upsert→index for a
// source, one source at a time.
type Ingestor struct {
	Store    storage.Storage
	Index    *index.Index // optional; nil skips the eager post-commit drain
	Registry *registry.Registry
	Limits   runtime.Limits

	// BatchSize bounds how many conversations one Parse invocation
	// requests before committing. Zero uses DefaultBatchSize.
	BatchSize int

	// DetectThreshold is the minimum detect confidence to proceed past
	// Detecting. Zero uses DefaultDetectThreshold.
	DetectThreshold float64

	// Since, when non-zero, replaces each source's last-sync timestamp
	// as the incremental hint handed to the adapter. Adapters may honor
	// or ignore it either way; idempotence comes from the Store-side
	// upsert, not the hint.
	Since int64 // epoch ms
}

// New builds an Ingestor with default batch size and detect threshold.
func New(store storage.Storage, idx *index.Index, reg *registry.Registry) *Ingestor {
	return &Ingestor{Store: store, Index: idx, Registry: reg, BatchSize: DefaultBatchSize, DetectThreshold: DefaultDetectThreshold}
}

func (ig *Ingestor) batchSize() int {
	if ig.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return ig.BatchSize
}

func (ig *Ingestor) detectThreshold() float64 {
	if ig.DetectThreshold <= 0 {
		return DefaultDetectThreshold
	}
	return ig.DetectThreshold
}

// Run drives src through the full state machine once: resolve its
// adapter, detect applicability, then loop Parsing→Committing until the
// adapter signals it has no more records, advancing the persisted
// cursor one committed batch at a time so a crash mid-run resumes
// exactly where the last successful commit left off.
func (ig *Ingestor) Run(ctx context.Context, src *types.Source) *Report {
	rep := &Report{SourceID: src.ID, State: StateDetecting}

	resolved, err := ig.Registry.Resolve(src.Adapter)
	if err != nil {
		return rep.fail(err)
	}
	sandbox := runtime.New(resolved, ig.Limits)

	confidence, err := sandbox.Detect(ctx, src.Path)
	if err != nil {
		return rep.fail(err)
	}
	rep.Confidence = confidence
	if confidence < ig.detectThreshold() {
		rep.State = StateIdle // below threshold: logged, no state change
		return rep
	}

	cursor, err := ig.Store.GetSourceCursor(ctx, src.ID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return rep.fail(fmt.Errorf("ingest: read cursor: %w", err))
	}

	since := src.LastSync.UnixMilli()
	if ig.Since > 0 {
		since = ig.Since
	}
	limit := ig.batchSize()

	for {
		if err := ctx.Err(); err != nil {
			rep.Err = types.ErrCancelled
			rep.State = StateFailed
			return rep
		}
		rep.State = StateParsing

		var buffered []*types.Conversation
		onRecord := func(w *runtime.ConversationWire) error {
			conv := normalizeConversation(src, w)
			if len(conv.Messages) == 0 {
				rep.ConversationsDropped++
				return nil // a zero-message conversation is never committed
			}
			buffered = append(buffered, conv)
			return nil
		}

		opts := runtime.RequestOptions{Since: since, Limit: limit, Cursor: cursor}
		newCursor, err := sandbox.Parse(ctx, src.Path, opts, onRecord)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				rep.Err = types.ErrCancelled
			} else {
				rep.Err = err
			}
			rep.State = StateFailed
			return rep
		}

		rep.State = StateCommitting
		switch {
		case len(buffered) > 0:
			commitCursor := newCursor
			if commitCursor == nil {
				commitCursor = cursor
			}
			if _, err := ig.Store.CommitBatch(ctx, src.ID, buffered, commitCursor); err != nil {
				return rep.fail(fmt.Errorf("ingest: commit batch: %w", err))
			}
			rep.BatchesCommitted++
			rep.ConversationsUpserted += len(buffered)
			cursor = commitCursor

			if ig.Index != nil {
				// Index lag is recoverable (rebuildable from the Store),
				// so a failed drain never fails the ingestion run.
				if _, err := ig.Index.DrainAll(ctx, ig.Store); err != nil {
					slog.Warn("ingest: index drain failed", "source", src.ID, "err", err)
				}
			}

		case newCursor == nil:
			// Adapter reported zero results with a fresh (absent) cursor:
			// reset to null so re-import can pick the source back up if
			// data reappears.
			if cursor != nil {
				if err := ig.Store.PutSourceCursor(ctx, src.ID, nil); err != nil {
					return rep.fail(fmt.Errorf("ingest: reset cursor: %w", err))
				}
				cursor = nil
			}

		case !bytes.Equal(newCursor, cursor):
			if err := ig.Store.PutSourceCursor(ctx, src.ID, newCursor); err != nil {
				return rep.fail(fmt.Errorf("ingest: advance cursor: %w", err))
			}
			cursor = newCursor
		}

		if len(buffered) < limit {
			break // short batch: adapter signaled end
		}
	}

	rep.State = StateIdle
	return rep
}

func (r *Report) fail(err error) *Report {
	r.State = StateFailed
	r.Err = err
	return r
}

// RunAll runs each source in sources sequentially, collecting one
// Report per source regardless of individual failures. Used by the
// CLI's direct `sync` path; the Service runs its own per-source watch
// loops instead.
func (ig *Ingestor) RunAll(ctx context.Context, sources []*types.Source) []*Report {
	reports := make([]*Report, 0, len(sources))
	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		reports = append(reports, ig.Run(ctx, src))
	}
	return reports
}
