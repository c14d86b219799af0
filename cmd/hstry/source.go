package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/byteowlz/hstry/internal/idgen"
	"github.com/byteowlz/hstry/internal/types"
)

var sourceCmd = &cobra.Command{
	Use:     "source",
	GroupID: "manage",
	Short:   "Manage configured sources",
}

var sourceAddAdapter string
var sourceAddWorkspace string

var sourceAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Register a path as a persistent source for scan/sync",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		adapterName := sourceAddAdapter
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
			Workspace: sourceAddWorkspace,
			Enabled:   true,
		}
		if err := e.Store.CreateSource(ctx, src); err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(src)
		}
		fmt.Printf("added source %s (adapter=%s path=%s)\n", src.ID, src.Adapter, src.Path)
		return nil
	},
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources",
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
		if jsonOutput {
			return printJSON(sources)
		}
		for _, s := range sources {
			status := "enabled"
			if !s.Enabled {
				status = "disabled"
			}
			fmt.Printf("%-12s %-16s %-8s %s\n", s.ID, s.Adapter, status, s.Path)
		}
		return nil
	},
}

var sourceRemoveKeepConversations bool
var sourceRemoveYes bool

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove <source-id>",
	Short: "Remove a configured source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if !sourceRemoveKeepConversations && !sourceRemoveYes {
			ok, err := confirmCascadingRemoval(args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("aborted")
				return nil
			}
		}

		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()
		return e.Store.RemoveSource(ctx, args[0], sourceRemoveKeepConversations)
	},
}

// confirmCascadingRemoval prompts interactively before a source removal
// that cascades to its owned conversations. Skipped for non-interactive
// invocations (no TTY, --json) so scripted/piped usage never blocks.
func confirmCascadingRemoval(sourceID string) (bool, error) {
	if jsonOutput || !term.IsTerminal(int(os.Stdin.Fd())) {
		return true, nil
	}
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Remove source %q and all of its ingested conversations?", sourceID)).
			Affirmative("Remove").
			Negative("Cancel").
			Value(&ok),
	))
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("confirm removal: %w", err)
	}
	return ok, nil
}

var sourceEnableCmd = &cobra.Command{
	Use:   "enable <source-id>",
	Short: "Re-enable a disabled source",
	Args:  cobra.ExactArgs(1),
	RunE:  setSourceEnabled(true),
}

var sourceDisableCmd = &cobra.Command{
	Use:   "disable <source-id>",
	Short: "Disable a source without deleting it (excluded from scan/sync)",
	Args:  cobra.ExactArgs(1),
	RunE:  setSourceEnabled(false),
}

func setSourceEnabled(enabled bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		src, err := e.Store.GetSource(ctx, args[0])
		if err != nil {
			return err
		}
		src.Enabled = enabled
		return e.Store.UpdateSource(ctx, src)
	}
}

func init() {
	sourceAddCmd.Flags().StringVar(&sourceAddAdapter, "adapter", "", "adapter to parse this source with (auto-detected if omitted)")
	sourceAddCmd.Flags().StringVar(&sourceAddWorkspace, "workspace", "", "workspace label to tag conversations from this source")
	sourceRemoveCmd.Flags().BoolVar(&sourceRemoveKeepConversations, "keep-conversations", false, "keep already-ingested conversations instead of cascading the removal to them")
	sourceRemoveCmd.Flags().BoolVarP(&sourceRemoveYes, "yes", "y", false, "skip the interactive confirmation for a cascading removal")

	sourceCmd.AddCommand(sourceAddCmd, sourceListCmd, sourceRemoveCmd, sourceEnableCmd, sourceDisableCmd)
}
