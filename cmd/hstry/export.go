package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/byteowlz/hstry/internal/adapter/runtime"
)

var exportOutFile string

var exportCmd = &cobra.Command{
	Use:     "export <source-id>",
	GroupID: "data",
	Short:   "Render a source's raw state through its adapter's export op",
	Long: `export asks the source's adapter to render its own export
format, a re-encoding of the source's raw state distinct from a
Store-level snapshot. Useful for adapters whose upstream tool has its
own native transcript format worth preserving as-is.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sourceID := args[0]

		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		src, err := e.Store.GetSource(ctx, sourceID)
		if err != nil {
			return err
		}

		resolved, err := e.Reg.Resolve(src.Adapter)
		if err != nil {
			return err
		}
		sandbox := runtime.New(resolved, runtime.Limits{})
		out, err := sandbox.Export(ctx, src.Path, runtime.RequestOptions{})
		if err != nil {
			return err
		}

		if exportOutFile != "" {
			return os.WriteFile(exportOutFile, []byte(out.Content), 0o644)
		}
		if jsonOutput {
			return printJSON(out)
		}
		fmt.Println(out.Content)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutFile, "output", "o", "", "write the exported content to a file instead of stdout")
}
