package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/byteowlz/hstry/internal/dedup"
	"github.com/byteowlz/hstry/internal/ingest"
	"github.com/byteowlz/hstry/internal/timeparsing"
	"github.com/byteowlz/hstry/internal/types"
)

var (
	syncSourceFilter string
	syncSince        string
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "data",
	Short:   "Detect, parse, and ingest every enabled source",
	Long: `sync drives the full Ingestor state machine for
every enabled source: detect, parse in batches, commit, advance the
cursor, drain the Index, and run the at-ingest Dedup Engine pass.
Per-source failures are aggregated into a run report rather than
aborting the whole run; the command exits 3 if any source
failed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		sources, err := e.Store.ListSources(ctx)
		if err != nil {
			return err
		}
		if syncSourceFilter != "" {
			filtered := sources[:0]
			for _, s := range sources {
				if s.ID == syncSourceFilter {
					filtered = append(filtered, s)
				}
			}
			sources = filtered
		}

		ig := ingest.New(e.Store, e.Index, e.Reg)
		if syncSince != "" {
			t, err := timeparsing.ParseRelativeTime(syncSince, time.Now())
			if err != nil {
				return fmt.Errorf("%w: --since: %v", types.ErrUsage, err)
			}
			ig.Since = t.UnixMilli()
		}
		reports := ig.RunAll(ctx, sources)

		dd := dedup.New(e.Store, cfg.Dedup.SourcePrecedence)
		for _, rep := range reports {
			if rep.Err == nil && rep.BatchesCommitted > 0 {
				_, _ = dd.RunForSource(ctx, rep.SourceID)
			}
		}

		failed := 0
		for _, rep := range reports {
			if rep.Err != nil {
				failed++
			}
		}

		if jsonOutput {
			if err := printJSON(reports); err != nil {
				return err
			}
		} else {
			for _, rep := range reports {
				printReport(rep)
			}
			fmt.Printf("\n%d source(s), %d failed\n", len(reports), failed)
		}

		if failed > 0 {
			return errPartial
		}
		return nil
	},
}

func printReport(rep *ingest.Report) {
	if rep.Err != nil {
		fmt.Printf("%-10s FAILED: %v\n", rep.SourceID, rep.Err)
		return
	}
	fmt.Printf("%-10s %-12s batches=%-3d conversations=%-4d dropped=%d\n",
		rep.SourceID, rep.State, rep.BatchesCommitted, rep.ConversationsUpserted, rep.ConversationsDropped)
}

func init() {
	syncCmd.Flags().StringVar(&syncSourceFilter, "source", "", "limit sync to one source id")
	syncCmd.Flags().StringVar(&syncSince, "since", "", `incremental hint for adapters: "+1d", "2026-01-02", or "3 days ago"`)
}
