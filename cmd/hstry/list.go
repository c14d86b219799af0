package main

import (
	"github.com/spf13/cobra"

	"github.com/byteowlz/hstry/internal/types"
)

var listFlags struct {
	limit     int
	offset    int
	workspace string
	source    string
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "data",
	Short:   "List ingested conversations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		filter := types.Filter{SourceID: listFlags.source, Workspace: listFlags.workspace, IncludeSystem: true}
		paging := types.Paging{Limit: listFlags.limit, Offset: listFlags.offset}
		convs, err := listAny(ctx, filter, paging)
		if err != nil {
			return err
		}
		return renderList(convs)
	},
}

func init() {
	f := listCmd.Flags()
	f.IntVar(&listFlags.limit, "limit", 50, "maximum number of conversations")
	f.IntVar(&listFlags.offset, "offset", 0, "paging offset")
	f.StringVar(&listFlags.workspace, "workspace", "", "restrict to workspaces containing this substring")
	f.StringVar(&listFlags.source, "source", "", "restrict to one source id")
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "data",
	Short:   "Show one conversation in full",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, err := getAny(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return renderConversation(conv)
	},
}
