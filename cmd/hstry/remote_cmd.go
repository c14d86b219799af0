package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/byteowlz/hstry/internal/remote"
	"github.com/byteowlz/hstry/internal/types"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	GroupID: "remote",
	Short:   "Manage remote hstry peers and federated search",
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <user@host:/path/to/.hstry>",
	Short: "Register a remote peer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		r := &types.Remote{Name: args[0], ConnectionStr: args[1], Enabled: true}
		return e.Store.UpsertRemote(ctx, r)
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered remotes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		remotes, err := e.Store.ListRemotes(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(remotes)
		}
		for _, r := range remotes {
			status := "enabled"
			if !r.Enabled {
				status = "disabled"
			}
			fmt.Printf("%-16s %-8s %-40s last-fetch=%s\n", r.Name, status, r.ConnectionStr, formatTime(r.LastFetch.UnixMilli()))
		}
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a registered remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()
		return e.Store.RemoveRemote(ctx, args[0])
	},
}

var remoteTestCmd = &cobra.Command{
	Use:   "test <name>",
	Short: "Verify a remote is reachable and running a compatible hstry binary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		r, err := e.Store.GetRemote(ctx, args[0])
		if err != nil {
			return err
		}
		gw := remote.NewGateway(e.Store)
		if err := gw.Test(ctx, r); err != nil {
			return err
		}
		fmt.Printf("%s: reachable\n", r.Name)
		return nil
	},
}

var remoteFetchCmd = &cobra.Command{
	Use:   "fetch <name>",
	Short: "Pull a fresh snapshot of a remote's store into the local cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		r, err := e.Store.GetRemote(ctx, args[0])
		if err != nil {
			return err
		}
		gw := remote.NewGateway(e.Store)
		path, err := gw.Fetch(ctx, r)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]string{"snapshotPath": path})
		}
		fmt.Println(path)
		return nil
	},
}

var remoteSyncCmd = &cobra.Command{
	Use:   "sync <name>",
	Short: "Fetch and merge a remote's conversations into the local store",
	Long: `sync fetches the named remote's snapshot and merges its rows
into the local Store, namespacing each remote source id as
"<remote>:<source>". Re-running is safe: conversations
already merged are upserted in place, not duplicated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		r, err := e.Store.GetRemote(ctx, args[0])
		if err != nil {
			return err
		}
		gw := remote.NewGateway(e.Store)
		res, err := gw.SyncPull(ctx, r)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		fmt.Printf("sources-merged=%d conversations-merged=%d\n", res.SourcesMerged, res.ConversationsMerged)
		return nil
	},
}

var remoteStatusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Report snapshot freshness for one or all remotes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, closeFn, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		var remotes []*types.Remote
		if len(args) == 1 {
			r, err := e.Store.GetRemote(ctx, args[0])
			if err != nil {
				return err
			}
			remotes = []*types.Remote{r}
		} else {
			remotes, err = e.Store.ListRemotes(ctx)
			if err != nil {
				return err
			}
		}

		if jsonOutput {
			return printJSON(remotes)
		}
		for _, r := range remotes {
			cached := "no snapshot"
			if r.SnapshotPath != "" {
				cached = r.SnapshotPath
			}
			fmt.Printf("%-16s enabled=%-5t last-fetch=%-20s %s\n", r.Name, r.Enabled, formatTime(r.LastFetch.UnixMilli()), cached)
		}
		return nil
	},
}

func init() {
	remoteCmd.AddCommand(remoteAddCmd, remoteListCmd, remoteRemoveCmd, remoteTestCmd, remoteFetchCmd, remoteSyncCmd, remoteStatusCmd)
}
