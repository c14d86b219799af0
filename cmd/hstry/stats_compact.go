package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "data",
	Short:   "Print global and per-source ingestion counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := statsAny(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(st)
		}
		fmt.Printf("sources=%d conversations=%d messages=%d\n", st.Sources, st.Conversations, st.Messages)
		for id, s := range st.BySource {
			fmt.Printf("  %-12s adapter=%-14s conversations=%-6d messages=%-6d last-sync=%s\n",
				id, s.Adapter, s.Conversations, s.Messages, formatTime(s.LastSync.UnixMilli()))
		}
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:     "compact",
	GroupID: "data",
	Short:   "Run backend-appropriate store maintenance (VACUUM and equivalents)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := e.Store.Compact(ctx); err != nil {
			return err
		}

		live, err := liveMessageIDs(ctx, e)
		if err != nil {
			return err
		}
		removed, err := e.Index.Sweep(ctx, live)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"orphanedIndexRows": removed})
		}
		if removed > 0 {
			fmt.Printf("swept %d orphaned index row(s)\n", removed)
		}
		return nil
	},
}

// liveMessageIDs pages through every stored message to build the live
// set the Index sweep checks orphans against.
func liveMessageIDs(ctx context.Context, e *engine) (map[string]struct{}, error) {
	live := map[string]struct{}{}
	var after int64
	for {
		batch, err := e.Store.MessagesByRowIDRange(ctx, after, 1000)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return live, nil
		}
		for _, m := range batch {
			live[m.MessageID] = struct{}{}
			if m.RowID > after {
				after = m.RowID
			}
		}
	}
}
