package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/byteowlz/hstry/internal/adapter/registry"
	"github.com/byteowlz/hstry/internal/adapter/runtime"
)

var adaptersCmd = &cobra.Command{
	Use:     "adapters",
	GroupID: "manage",
	Short:   "Manage adapter scripts",
}

var adaptersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered adapters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg := registry.New(cfg)
		entries, err := reg.Discover()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(entries)
		}
		for _, e := range entries {
			status := "enabled"
			if !cfg.EnabledAdapter(e.Manifest.Name) {
				status = "disabled"
			}
			fmt.Printf("%-16s %-10s %-8s %s\n", e.Manifest.Name, e.Manifest.Version, status, e.ScriptPath)
		}
		return nil
	},
}

func adapterEnableCmd(enabled bool, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.SetAdapterEnabled(args[0], enabled)
			return cfg.Save()
		},
	}
}

var adaptersRepoSrc string

var adaptersRepoAddCmd = &cobra.Command{
	Use:   "repo-add <name>",
	Short: "Fetch an adapter repo into the first configured adapter directory",
	Long: `repo-add stages --src (a git URL, an archive URL, or a local
path) into a temp directory and atomically swaps it into place as
name under the first entry of adapter_paths.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.AdapterPaths) == 0 {
			return fmt.Errorf("no adapter_paths configured")
		}
		return registry.AddRepo(cmd.Context(), cfg.AdapterPaths[0], args[0], adaptersRepoSrc)
	},
}

var adaptersRepoUpdateCmd = &cobra.Command{
	Use:   "repo-update <name>",
	Short: "Re-fetch an adapter repo in place, from its remembered source unless --src overrides",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.AdapterPaths) == 0 {
			return fmt.Errorf("no adapter_paths configured")
		}
		return registry.UpdateRepo(cmd.Context(), cfg.AdapterPaths[0], args[0], adaptersRepoSrc)
	},
}

var adaptersRepoListCmd = &cobra.Command{
	Use:   "repo-list",
	Short: "List adapter repos staged via repo-add, with their remembered source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if len(cfg.AdapterPaths) == 0 {
			return fmt.Errorf("no adapter_paths configured")
		}
		repos, err := registry.LoadRepoSources(cfg.AdapterPaths[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(repos)
		}
		for _, r := range repos {
			fmt.Printf("%-16s %s\n", r.Name, r.Src)
		}
		return nil
	},
}

var adaptersInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Print an adapter's self-reported manifest (info op)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		resolved, err := e.Reg.Resolve(args[0])
		if err != nil {
			return err
		}
		info, err := runtime.New(resolved, runtime.Limits{}).Info(ctx)
		if err != nil {
			return err
		}
		return printJSON(info)
	},
}

func init() {
	adaptersRepoAddCmd.Flags().StringVar(&adaptersRepoSrc, "src", "", "git URL, archive URL, or local path to fetch the adapter from")
	adaptersRepoUpdateCmd.Flags().StringVar(&adaptersRepoSrc, "src", "", "git URL, archive URL, or local path to re-fetch the adapter from")

	adaptersCmd.AddCommand(
		adaptersListCmd,
		adapterEnableCmd(true, "enable <name>", "Enable an adapter"),
		adapterEnableCmd(false, "disable <name>", "Disable an adapter"),
		adaptersRepoAddCmd,
		adaptersRepoUpdateCmd,
		adaptersRepoListCmd,
		adaptersInfoCmd,
	)
}
