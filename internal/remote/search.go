package remote

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/byteowlz/hstry/internal/index"
	"github.com/byteowlz/hstry/internal/search"
	"github.com/byteowlz/hstry/internal/types"
)

// DefaultSnapshotTTL bounds how stale a cached snapshot may be before
// FederatedSearch re-fetches it.
const DefaultSnapshotTTL = 15 * time.Minute

// FederatedSearch runs req against every enabled remote in remotes,
// tagging each hit with its origin remote name, and merges the results
// with localResult by rank.
// Each remote snapshot is read-only: FederatedSearch builds a throwaway
// in-memory Index over the cached snapshot's messages rather than
// requiring the peer to ship its own index file, reusing the same
// search.Search planner the local Store uses.
func (g *Gateway) FederatedSearch(ctx context.Context, req search.Request, localResult *search.Result, remotes []*types.Remote, ttl time.Duration) (*search.Result, error) {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}

	merged := &search.Result{Truncated: localResult != nil && localResult.Truncated}
	if localResult != nil {
		merged.Hits = append(merged.Hits, localResult.Hits...)
	}

	for _, r := range remotes {
		if !r.Enabled {
			continue
		}
		if req.Filter.RemoteName != "" && req.Filter.RemoteName != r.Name {
			continue
		}

		if r.SnapshotPath == "" || time.Since(r.LastFetch) > ttl {
			if _, err := g.Fetch(ctx, r); err != nil {
				merged.Truncated = true
				continue
			}
		}

		hits, err := g.searchSnapshot(ctx, r, req)
		if err != nil {
			merged.Truncated = true
			continue
		}
		merged.Hits = append(merged.Hits, hits...)
	}

	sort.SliceStable(merged.Hits, func(i, j int) bool { return merged.Hits[i].Rank > merged.Hits[j].Rank })
	if req.Limit > 0 && len(merged.Hits) > req.Limit {
		merged.Truncated = true
		merged.Hits = merged.Hits[:req.Limit]
	}
	return merged, nil
}

func (g *Gateway) searchSnapshot(ctx context.Context, r *types.Remote, req search.Request) ([]search.Hit, error) {
	snap, err := openSnapshot(ctx, r.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("remote: open snapshot %s: %w", r.Name, err)
	}
	defer snap.Close()

	idx, err := index.Open(ctx, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("remote: build ephemeral index for %s: %w", r.Name, err)
	}
	defer idx.Close()
	if _, err := idx.DrainAll(ctx, snap); err != nil {
		return nil, fmt.Errorf("remote: index snapshot %s: %w", r.Name, err)
	}

	res, err := search.Search(ctx, idx, snap, req)
	if err != nil {
		return nil, err
	}
	for i := range res.Hits {
		res.Hits[i].Remote = r.Name
	}
	return res.Hits, nil
}
