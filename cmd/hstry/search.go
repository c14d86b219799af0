package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/byteowlz/hstry/internal/config"
	"github.com/byteowlz/hstry/internal/index"
	"github.com/byteowlz/hstry/internal/remote"
	"github.com/byteowlz/hstry/internal/search"
	"github.com/byteowlz/hstry/internal/types"
)

var searchFlags struct {
	scope         string
	remoteName    string
	source        string
	workspace     string
	role          string
	mode          string
	noTools       bool
	dedup         bool
	includeSystem bool
	limit         int
}

var searchCmd = &cobra.Command{
	Use:     "search <query>",
	GroupID: "data",
	Short:   "Search ingested conversations",
	Long: `search runs the query planner: the query is
classified as natural, code, or mixed (overridable with --mode), Store
filters are applied, and results are ranked. With --scope remote or
--scope all, the Remote Gateway fans the query out to cached remote
snapshots and merges the ranked results.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := args[0]

		req := search.Request{
			Query: query,
			Mode:  index.Mode(searchFlags.mode),
			Limit: searchFlags.limit,
			Filter: types.Filter{
				SourceID:      searchFlags.source,
				Workspace:     searchFlags.workspace,
				Role:          types.Role(searchFlags.role),
				IncludeSystem: searchFlags.includeSystem,
				Dedup:         searchFlags.dedup,
				RemoteName:    searchFlags.remoteName,
			},
		}

		scope := types.Scope(firstNonEmpty(searchFlags.scope, string(types.ScopeLocal)))
		req.Filter.Scope = scope

		var res *search.Result
		var err error
		if scope == types.ScopeLocal {
			res, err = searchAny(ctx, req)
		} else {
			res, err = federatedSearch(ctx, req, scope)
		}
		if err != nil {
			return err
		}

		if searchFlags.noTools {
			filtered := res.Hits[:0]
			for _, h := range res.Hits {
				if !allToolMessages(h.Conversation) {
					filtered = append(filtered, h)
				}
			}
			res.Hits = filtered
		}

		return renderHits(res.Hits, res.Truncated)
	},
}

func allToolMessages(conv *types.Conversation) bool {
	if len(conv.Messages) == 0 {
		return false
	}
	for _, m := range conv.Messages {
		if m.Role != types.RoleTool {
			return false
		}
	}
	return true
}

// federatedSearch runs the local search (unless scope is "remote"
// only) and fans out to every enabled remote via the Remote Gateway.
func federatedSearch(ctx context.Context, req search.Request, scope types.Scope) (*search.Result, error) {
	e, closeFn, err := openEngine(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	var local *search.Result
	if scope == types.ScopeAll {
		local, err = search.Search(ctx, e.Index, e.Store, req)
		if err != nil {
			return nil, err
		}
	}

	remotes, err := e.Store.ListRemotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("search: listing remotes: %w", err)
	}

	gw := remote.NewGateway(e.Store)
	gw.CacheDir = filepath.Join(config.DataDir(), "remotes")
	return gw.FederatedSearch(ctx, req, local, remotes, remote.DefaultSnapshotTTL)
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchFlags.scope, "scope", string(types.ScopeLocal), "search scope: local, remote, or all")
	f.StringVar(&searchFlags.remoteName, "remote", "", "restrict remote results to one named remote")
	f.StringVar(&searchFlags.source, "source", "", "restrict results to one source id")
	f.StringVar(&searchFlags.workspace, "workspace", "", "restrict results to workspaces containing this substring")
	f.StringVar(&searchFlags.role, "role", "", "restrict to conversations containing a message with this role")
	f.StringVar(&searchFlags.mode, "mode", "", "force query classification: natural or code (default: auto)")
	f.BoolVar(&searchFlags.noTools, "no-tools", false, "exclude conversations consisting solely of tool messages")
	f.BoolVar(&searchFlags.dedup, "dedup", false, "collapse results sharing a content-hash to one representative")
	f.BoolVar(&searchFlags.includeSystem, "include-system", false, "include conversations consisting solely of system messages")
	f.IntVar(&searchFlags.limit, "limit", 20, "maximum number of results")
}
