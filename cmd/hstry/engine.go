package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/byteowlz/hstry/internal/adapter/registry"
	"github.com/byteowlz/hstry/internal/config"
	"github.com/byteowlz/hstry/internal/index"
	"github.com/byteowlz/hstry/internal/rpc"
	"github.com/byteowlz/hstry/internal/search"
	"github.com/byteowlz/hstry/internal/service"
	"github.com/byteowlz/hstry/internal/storage"
	"github.com/byteowlz/hstry/internal/storage/factory"
	"github.com/byteowlz/hstry/internal/types"
)

// indexPath is the Index's own sqlite file, independent of whichever
// Store backend cfg.Store.Backend selects.
func indexPath() string {
	if cfg.Search.IndexPath != "" {
		return cfg.Search.IndexPath
	}
	return filepath.Join(config.DataDir(), "index.db")
}

// engine bundles the direct-access handles a command needs when no
// Service is available (or --no-service forces direct mode).
type engine struct {
	Store storage.Storage
	Index *index.Index
	Reg   *registry.Registry
}

// openEngine opens the Store backend and Index named in cfg, returning
// a close function the caller must defer.
func openEngine(ctx context.Context) (*engine, func(), error) {
	if err := config.EnsureDirs(); err != nil {
		return nil, func() {}, err
	}

	store, err := factory.NewFromConfig(ctx, cfg, config.DataDir())
	if err != nil {
		return nil, func() {}, fmt.Errorf("opening store: %w", err)
	}

	idx, err := index.Open(ctx, indexPath())
	if err != nil {
		store.Close()
		return nil, func() {}, fmt.Errorf("opening index: %w", err)
	}
	if cfg.Search.IndexBatchSize > 0 {
		idx.BatchSize = cfg.Search.IndexBatchSize
	}

	e := &engine{Store: store, Index: idx, Reg: registry.New(cfg)}
	closeFn := func() {
		idx.Close()
		store.Close()
	}
	return e, closeFn, nil
}

// dialService attempts to connect to a running Service's RPC endpoint,
// returning nil (not an error) if none is reachable or --no-service/
// HSTRY_NO_SERVICE forces direct Store access.
func dialService(ctx context.Context) *rpc.Client {
	if noService || config.NoService() {
		return nil
	}
	client, err := rpc.Dial(ctx, service.SocketPath(), 2*time.Second)
	if err != nil {
		return nil
	}
	return client
}

// searchAny runs req against a running Service if one is reachable,
// otherwise falls back to a direct in-process search.Search call.
func searchAny(ctx context.Context, req search.Request) (*search.Result, error) {
	if client := dialService(ctx); client != nil {
		defer client.Close()
		hits, truncated, err := client.Search(ctx, rpc.SearchRequestPayload{
			Query: req.Query, Mode: string(req.Mode), Filter: req.Filter, Limit: req.Limit,
		})
		if err != nil {
			return nil, err
		}
		res := &search.Result{Truncated: truncated}
		for _, h := range hits {
			res.Hits = append(res.Hits, search.Hit{Conversation: h.Conversation, Rank: h.Rank, Remote: h.Remote})
		}
		return res, nil
	}

	e, closeFn, err := openEngine(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return search.Search(ctx, e.Index, e.Store, req)
}

// getAny fetches one conversation by id, via the Service if reachable.
func getAny(ctx context.Context, id string) (*types.Conversation, error) {
	if client := dialService(ctx); client != nil {
		defer client.Close()
		return client.Get(ctx, id)
	}

	e, closeFn, err := openEngine(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return e.Store.GetConversation(ctx, id)
}

// listAny lists conversations matching filter/paging, via the Service
// if reachable.
func listAny(ctx context.Context, filter types.Filter, paging types.Paging) ([]*types.Conversation, error) {
	if client := dialService(ctx); client != nil {
		defer client.Close()
		return client.List(ctx, filter, paging)
	}

	e, closeFn, err := openEngine(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return e.Store.ListConversations(ctx, filter, paging)
}

// statsAny fetches global/per-source counts, via the Service if
// reachable.
func statsAny(ctx context.Context) (*types.Stats, error) {
	if client := dialService(ctx); client != nil {
		defer client.Close()
		return client.Stats(ctx)
	}

	e, closeFn, err := openEngine(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return e.Store.Stats(ctx)
}
