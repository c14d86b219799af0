package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/byteowlz/hstry/internal/mmry"
)

var mmryCmd = &cobra.Command{
	Use:     "mmry",
	GroupID: "data",
	Short:   "Extract durable memory notes from ingested conversations",
}

var (
	mmryAPIKey  string
	mmryModel   string
	mmryOutFile string
)

var mmryExtractCmd = &cobra.Command{
	Use:   "extract <id>",
	Short: "Distill one conversation into a short, durable memory note via Claude",
	Long: `extract asks Claude to summarize a conversation into durable
notes (decisions, preferences, facts learned), discarding the rest.
Requires ANTHROPIC_API_KEY (or --api-key). Only this command talks to
a model; nothing in ingestion or search ever does.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		conv, err := getAny(ctx, args[0])
		if err != nil {
			return err
		}

		client, err := mmry.NewClient(mmryAPIKey, mmryModel)
		if err != nil {
			return err
		}
		note, err := client.Extract(ctx, conv)
		if err != nil {
			return err
		}

		if mmryOutFile != "" {
			return os.WriteFile(mmryOutFile, []byte(note), 0o644)
		}
		if jsonOutput {
			return printJSON(map[string]string{"conversationId": conv.ID, "memory": note})
		}
		fmt.Println(note)
		return nil
	},
}

func init() {
	mmryExtractCmd.Flags().StringVar(&mmryAPIKey, "api-key", "", "Anthropic API key (ANTHROPIC_API_KEY takes precedence)")
	mmryExtractCmd.Flags().StringVar(&mmryModel, "model", "", "override the extraction model (default: "+mmry.DefaultModel+")")
	mmryExtractCmd.Flags().StringVarP(&mmryOutFile, "output", "o", "", "write the extracted memory to a file instead of stdout")
	mmryCmd.AddCommand(mmryExtractCmd)
}
