package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexRebuild bool

var indexCmd = &cobra.Command{
	Use:     "index",
	GroupID: "data",
	Short:   "Drain pending messages into the full-text index, or rebuild it from scratch",
	Long: `index drains every message the Store has accepted since the
last drain into both FTS tables.
Pass --rebuild to drop both tables and retokenize every stored message,
used after IndexCorrupt or persistent Index<->Store divergence.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		if indexRebuild {
			if err := e.Index.Rebuild(ctx); err != nil {
				return err
			}
		}

		n, err := e.Index.DrainAll(ctx, e.Store)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(map[string]any{"messagesIndexed": n, "rebuilt": indexRebuild})
		}
		fmt.Printf("indexed %d message(s)%s\n", n, map[bool]string{true: " (after rebuild)", false: ""}[indexRebuild])
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "drop and retokenize both FTS tables before draining")
}
