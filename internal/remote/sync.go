package remote

import (
	"context"
	"fmt"

	"github.com/byteowlz/hstry/internal/namespace"
	"github.com/byteowlz/hstry/internal/types"
)

// pullPageSize bounds how many remote conversations SyncPull merges per
// local transaction.
const pullPageSize = 200

// PullResult summarizes one SyncPull call.
type PullResult struct {
	SourcesMerged       int
	ConversationsMerged int
}

// SyncPull always fetches a fresh snapshot of r (via Fetch), then
// replays every conversation from it into the local Store, prefixing
// each remote source id with the remote's name.
// One local transaction per page of pullPageSize conversations.
func (g *Gateway) SyncPull(ctx context.Context, r *types.Remote) (*PullResult, error) {
	snapshotPath, err := g.Fetch(ctx, r)
	if err != nil {
		return nil, err
	}

	snap, err := openSnapshot(ctx, snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("remote: open fetched snapshot: %w", err)
	}
	defer snap.Close()

	remoteSources, err := snap.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("remote: list remote sources: %w", err)
	}

	res := &PullResult{}
	for _, rs := range remoteSources {
		localID := namespace.Qualify(r.Name, rs.ID)

		local := *rs
		local.ID = localID
		local.RemoteName = r.Name
		if _, err := g.Store.GetSource(ctx, localID); err != nil {
			if err := g.Store.CreateSource(ctx, &local); err != nil {
				return nil, fmt.Errorf("remote: create namespaced source %s: %w", localID, err)
			}
		}
		res.SourcesMerged++

		offset := 0
		for {
			convs, err := snap.ListConversations(ctx, types.Filter{SourceID: rs.ID}, types.Paging{Limit: pullPageSize, Offset: offset})
			if err != nil {
				return nil, fmt.Errorf("remote: list remote conversations: %w", err)
			}
			if len(convs) == 0 {
				break
			}

			batch := make([]*types.Conversation, 0, len(convs))
			for _, c := range convs {
				full, err := snap.GetConversation(ctx, c.ID)
				if err != nil {
					return nil, fmt.Errorf("remote: read remote conversation %s: %w", c.ID, err)
				}
				full.SourceID = localID
				batch = append(batch, full)
			}

			if _, err := g.Store.CommitBatch(ctx, localID, batch, nil); err != nil {
				return nil, fmt.Errorf("remote: merge batch for %s: %w", localID, err)
			}
			res.ConversationsMerged += len(batch)

			if len(convs) < pullPageSize {
				break
			}
			offset += pullPageSize
		}
	}

	return res, nil
}
