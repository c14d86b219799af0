// Package dedup implements the Dedup Engine: groups
// conversations sharing a content-hash, picks one canonical
// representative per group, and records the rest as aliases so the
// index and search layers present exactly one result per logical
// conversation. Grouping is exact-hash only: conversations are never
// edited after ingest, so there is nothing to merge, only to group and
// pick one.
package dedup

import (
	"context"
	"fmt"
	"sort"

	"github.com/byteowlz/hstry/internal/storage"
	"github.com/byteowlz/hstry/internal/types"
)

// pageSize bounds how many conversations Engine pulls from the Store
// per ListConversations call while scanning the whole store.
const pageSize = 1000

// Engine runs the at-ingest and on-demand dedup passes.
type Engine struct {
	Store storage.Storage

	// SourcePrecedence orders source ids from highest to lowest
	// precedence for the canonical tie-break (user-ordered in config).
	// A source id absent from this list sorts after every listed one.
	SourcePrecedence []string
}

// New builds an Engine with the given source precedence order.
func New(store storage.Storage, sourcePrecedence []string) *Engine {
	return &Engine{Store: store, SourcePrecedence: sourcePrecedence}
}

// Group is one set of conversations sharing a content-hash, split into
// its canonical member and the aliases sortCanonicalFirst ranked after it.
type Group struct {
	ContentHash string
	Canonical   *types.Conversation
	Aliases     []*types.Conversation
}

// Result summarizes one dedup pass.
type Result struct {
	Scanned        int
	GroupsMerged   int
	AliasesCreated int
}

// RunAll scans every conversation in the Store, groups by content-hash,
// and records aliases for every non-canonical member of each group with
// more than one member.
// Idempotent: re-running against an already-deduped store produces the
// same canonical choices and creates no new aliases.
func (e *Engine) RunAll(ctx context.Context) (*Result, error) {
	groups, res, err := e.scan(ctx, types.Filter{})
	if err != nil {
		return nil, err
	}
	return e.merge(ctx, groups, res)
}

// RunForSource restricts the scan to one source. The Service's Watcher
// and the `sync` command call it after a source's ingestion run
// completes, so newly-arrived duplicates are collapsed without a
// full-store rescan.
func (e *Engine) RunForSource(ctx context.Context, sourceID string) (*Result, error) {
	groups, res, err := e.scan(ctx, types.Filter{SourceID: sourceID})
	if err != nil {
		return nil, err
	}
	return e.merge(ctx, groups, res)
}

func (e *Engine) scan(ctx context.Context, filter types.Filter) (map[string][]*types.Conversation, *Result, error) {
	groups := map[string][]*types.Conversation{}
	res := &Result{}

	offset := 0
	for {
		page, err := e.Store.ListConversations(ctx, filter, types.Paging{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, nil, fmt.Errorf("dedup: list conversations: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, c := range page {
			canonicalID, err := e.Store.CanonicalID(ctx, c.ID)
			if err != nil {
				return nil, nil, fmt.Errorf("dedup: resolve canonical id for %s: %w", c.ID, err)
			}
			if canonicalID != c.ID {
				continue // already merged by a prior pass; leave the alias as-is
			}
			groups[c.ContentHash] = append(groups[c.ContentHash], c)
		}
		res.Scanned += len(page)
		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}
	return groups, res, nil
}

func (e *Engine) merge(ctx context.Context, groups map[string][]*types.Conversation, res *Result) (*Result, error) {
	precedence := make(map[string]int, len(e.SourcePrecedence))
	for i, id := range e.SourcePrecedence {
		precedence[id] = i
	}

	// Sort hashes for deterministic iteration order.
	hashes := make([]string, 0, len(groups))
	for h := range groups {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	for _, hash := range hashes {
		members := groups[hash]
		if len(members) < 2 {
			continue
		}
		sortCanonicalFirst(members, precedence)

		canonical := members[0]
		aliasIDs := make([]string, 0, len(members)-1)
		for _, m := range members[1:] {
			aliasIDs = append(aliasIDs, m.ID)
		}

		if err := e.Store.MarkAliases(ctx, canonical.ID, aliasIDs); err != nil {
			return nil, fmt.Errorf("dedup: mark aliases for group %s: %w", hash, err)
		}
		res.GroupsMerged++
		res.AliasesCreated += len(aliasIDs)
	}
	return res, nil
}

// sortCanonicalFirst orders members earliest created-at first,
// tie-broken by source precedence, then by internal id.
func sortCanonicalFirst(members []*types.Conversation, precedence map[string]int) {
	rank := func(sourceID string) int {
		if i, ok := precedence[sourceID]; ok {
			return i
		}
		return len(precedence) // unlisted sources sort after every listed one
	}
	sort.Slice(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		if ra, rb := rank(a.SourceID), rank(b.SourceID); ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})
}
