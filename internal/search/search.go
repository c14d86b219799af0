// Package search implements the combined query planner on top of the
// Index: it classifies a query, asks the Index for content-ranked hits,
// then applies the Store-side filters (source, workspace, created-at
// range, role, system-exclusion, dedup) the Index itself has no way to
// evaluate, since those live on the Conversation/Message rows rather
// than in the FTS tables. Filter.Scope and Filter.RemoteName are not
// evaluated here; Search only ever reads the Index and Store it is given.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/byteowlz/hstry/internal/index"
	"github.com/byteowlz/hstry/internal/storage"
	"github.com/byteowlz/hstry/internal/types"
)

// Request is one search invocation.
type Request struct {
	Query  string
	Mode   index.Mode // "" auto-classifies
	Filter types.Filter
	Limit  int
}

// Hit is one ranked, filtered result.
type Hit struct {
	Conversation *types.Conversation
	Rank         float64
	Remote       string // set by the Remote Gateway when merging federated hits
}

// Result is the outcome of a Search call.
type Result struct {
	Hits      []Hit
	Truncated bool // a timeout or backend failure cut results short
}

// overfetchFactor widens the Index query beyond Limit so enough
// candidates survive Store-side filtering and dedup collapsing.
const overfetchFactor = 4

// Search runs req against idx and store, returning ranked, filtered
// results.
func Search(ctx context.Context, idx *index.Index, store storage.Storage, req Request) (*Result, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	mode := req.Mode
	if mode == "" {
		mode = index.Classify(req.Query)
	}

	fetchLimit := req.Limit * overfetchFactor
	rawHits, err := idx.Search(ctx, req.Query, mode, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("search: index query: %w", err)
	}

	res := &Result{}
	seenHash := map[string]bool{}

	for _, h := range rawHits {
		if ctx.Err() != nil {
			res.Truncated = true
			break
		}

		conv, err := store.GetConversation(ctx, h.ConversationID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				// Stale FTS row referencing a deleted conversation;
				// repaired lazily by dropping it.
				_ = idx.Forget(ctx, h.MessageID)
				continue
			}
			res.Truncated = true
			continue
		}

		if !matchesFilter(conv, req.Filter) {
			continue
		}

		if req.Filter.Dedup {
			if seenHash[conv.ContentHash] {
				continue
			}
			seenHash[conv.ContentHash] = true
		}

		res.Hits = append(res.Hits, Hit{Conversation: conv, Rank: h.Rank})
		if len(res.Hits) >= req.Limit {
			break
		}
	}

	// Equal ranks fall back to recency: the more recently updated
	// conversation comes first.
	sort.SliceStable(res.Hits, func(i, j int) bool {
		if res.Hits[i].Rank != res.Hits[j].Rank {
			return res.Hits[i].Rank > res.Hits[j].Rank
		}
		return res.Hits[i].Conversation.UpdatedAt > res.Hits[j].Conversation.UpdatedAt
	})

	return res, nil
}

func matchesFilter(conv *types.Conversation, f types.Filter) bool {
	if f.SourceID != "" && conv.SourceID != f.SourceID {
		return false
	}
	if f.Workspace != "" && !containsFold(conv.Workspace, f.Workspace) {
		return false
	}
	if f.CreatedAfter != 0 && conv.CreatedAt < f.CreatedAfter {
		return false
	}
	if f.CreatedBefore != 0 && conv.CreatedAt > f.CreatedBefore {
		return false
	}

	if f.Role != "" {
		hasRole := false
		for _, m := range conv.Messages {
			if m.Role == f.Role {
				hasRole = true
				break
			}
		}
		if !hasRole {
			return false
		}
	}

	if !f.IncludeSystem {
		allSystem := len(conv.Messages) > 0
		for _, m := range conv.Messages {
			if m.Role != types.RoleSystem {
				allSystem = false
				break
			}
		}
		if allSystem {
			return false
		}
	}

	return true
}

func containsFold(s, substr string) bool {
	return len(substr) == 0 || indexFold(s, substr) >= 0
}

// indexFold is a tiny case-insensitive substring search, avoiding a
// strings.ToLower allocation on every row for the common case of a
// short workspace filter.
func indexFold(s, substr string) int {
	n, m := len(s), len(substr)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if equalFold(s[i:i+m], substr) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
