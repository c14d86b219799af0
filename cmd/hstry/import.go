package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/byteowlz/hstry/internal/adapter/runtime"
	"github.com/byteowlz/hstry/internal/idgen"
	"github.com/byteowlz/hstry/internal/ingest"
	"github.com/byteowlz/hstry/internal/types"
)

var (
	importAdapter   string
	importWorkspace string
	importNoSave    bool
)

var importCmd = &cobra.Command{
	Use:     "import <path>",
	GroupID: "data",
	Short:   "Import a manual export bundle or local agent state directory",
	Long: `import registers path as a one-off source and runs the
Ingestor against it once. Unlike sync, which only revisits sources
already configured with source add, import is meant for a manual
export bundle a user downloaded once. The adapter is auto-detected
across every registered adapter (highest confidence wins) unless
--adapter names one explicitly. Pass --no-save to ingest without
leaving a persisted Source behind (so a later scan/sync won't revisit
it).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		adapterName := importAdapter
		if adapterName == "" {
			adapterName, err = detectBestAdapter(ctx, e, path)
			if err != nil {
				return err
			}
		}

		src := &types.Source{
			ID:        idgen.SourceID(adapterName, path, 0),
			Adapter:   adapterName,
			Path:      path,
			Workspace: importWorkspace,
			Enabled:   !importNoSave,
		}

		// The source row must exist even for --no-save: batch commits
		// advance its cursor. The row is dropped again below. Re-importing
		// the same path reuses the existing row (the id is deterministic).
		if err := e.Store.CreateSource(ctx, src); err != nil {
			if existing, getErr := e.Store.GetSource(ctx, src.ID); getErr == nil {
				src = existing
			} else {
				return fmt.Errorf("import: persist source: %w", err)
			}
		}

		ig := ingest.New(e.Store, e.Index, e.Reg)
		rep := ig.Run(ctx, src)

		if importNoSave {
			_ = e.Store.RemoveSource(ctx, src.ID, true) // drops the throwaway source row; its conversations are kept, just unowned by any future sync
		}

		if jsonOutput {
			return printJSON(rep)
		}
		printReport(rep)
		if rep.Err != nil {
			return errPartial
		}
		return nil
	},
}

// detectBestAdapter runs "detect" across every adapter the registry
// discovers and returns the name of whichever reports the highest
// confidence for path, erroring if none clears the Ingestor's default
// threshold.
func detectBestAdapter(ctx context.Context, e *engine, path string) (string, error) {
	entries, err := e.Reg.Discover()
	if err != nil {
		return "", fmt.Errorf("import: discovering adapters: %w", err)
	}

	var best string
	var bestConfidence float64
	for _, entry := range entries {
		resolved, err := e.Reg.Resolve(entry.Manifest.Name)
		if err != nil {
			continue
		}
		sandbox := runtime.New(resolved, runtime.Limits{})
		confidence, err := sandbox.Detect(ctx, path)
		if err != nil {
			continue
		}
		if confidence > bestConfidence {
			bestConfidence = confidence
			best = entry.Manifest.Name
		}
	}

	if best == "" || bestConfidence < ingest.DefaultDetectThreshold {
		return "", fmt.Errorf("%w: no registered adapter detected %s with confidence >= %.2f; pass --adapter explicitly",
			types.ErrAdapterNotFound, path, ingest.DefaultDetectThreshold)
	}
	return best, nil
}

func init() {
	importCmd.Flags().StringVar(&importAdapter, "adapter", "", "adapter to parse path with (auto-detected across registered adapters if omitted)")
	importCmd.Flags().StringVar(&importWorkspace, "workspace", "", "workspace label to tag imported conversations with")
	importCmd.Flags().BoolVar(&importNoSave, "no-save", false, "ingest without leaving a persisted source behind")
}
