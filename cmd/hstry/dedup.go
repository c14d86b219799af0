package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/byteowlz/hstry/internal/dedup"
)

var dedupSource string

var dedupCmd = &cobra.Command{
	Use:     "dedup",
	GroupID: "data",
	Short:   "Run the Dedup Engine across the whole store, or one source",
	Long: `dedup groups conversations sharing a content-hash, picks one
canonical representative per group (earliest created-at, tie-broken by
configured source precedence), and records the rest as aliases.
Idempotent: safe to run repeatedly. sync already runs this scoped to
the source it just ingested, so dedup is for a full rescan or an ad
hoc source.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		eng := dedup.New(e.Store, cfg.Dedup.SourcePrecedence)
		var res *dedup.Result
		if dedupSource != "" {
			res, err = eng.RunForSource(ctx, dedupSource)
		} else {
			res, err = eng.RunAll(ctx)
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(res)
		}
		fmt.Printf("scanned=%d groups-merged=%d aliases-created=%d\n", res.Scanned, res.GroupsMerged, res.AliasesCreated)
		return nil
	},
}

func init() {
	dedupCmd.Flags().StringVar(&dedupSource, "source", "", "restrict the scan to one source id")
}
