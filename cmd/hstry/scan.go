package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/byteowlz/hstry/internal/adapter/runtime"
	"github.com/byteowlz/hstry/internal/ingest"
)

var scanCmd = &cobra.Command{
	Use:     "scan",
	GroupID: "data",
	Short:   "Detect which configured sources would ingest, without committing anything",
	Long: `scan runs just the Detecting step of the Ingestor state machine against every enabled source: it asks each source's
adapter how confident it is that the source's path holds data it can
parse, and reports the result. Nothing is parsed or written; use sync
to actually ingest.`,
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

		type row struct {
			SourceID   string  `json:"sourceId"`
			Adapter    string  `json:"adapter"`
			Confidence float64 `json:"confidence"`
			Err        string  `json:"error,omitempty"`
		}
		var rows []row

		for _, src := range sources {
			if !src.Enabled {
				continue
			}
			r := row{SourceID: src.ID, Adapter: src.Adapter}
			resolved, err := e.Reg.Resolve(src.Adapter)
			if err != nil {
				r.Err = err.Error()
				rows = append(rows, r)
				continue
			}
			sandbox := runtime.New(resolved, runtime.Limits{})
			confidence, err := sandbox.Detect(ctx, src.Path)
			if err != nil {
				r.Err = err.Error()
			} else {
				r.Confidence = confidence
			}
			rows = append(rows, r)
		}

		if jsonOutput {
			return printJSON(rows)
		}
		for _, r := range rows {
			if r.Err != "" {
				fmt.Printf("%-10s %-16s error: %s\n", r.SourceID, r.Adapter, r.Err)
				continue
			}
			status := "would skip"
			if r.Confidence >= ingest.DefaultDetectThreshold {
				status = "would ingest"
			}
			fmt.Printf("%-10s %-16s confidence=%.2f  %s\n", r.SourceID, r.Adapter, r.Confidence, status)
		}
		return nil
	},
}
