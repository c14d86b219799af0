package index

import (
	"context"
	"fmt"
)

// Hit is one ranked match from a single FTS table, before cross-source
// merging and Store-side filtering.
type Hit struct {
	MessageID      string
	ConversationID string
	Rank           float64 // higher is more relevant
	Table          Mode    // which table produced this hit
}

// Search runs query against the table(s) mode selects, returning up to
// limit ranked hits. Single-table modes return the raw FTS score; in
// mixed mode each side's score is max-scaled to [0,1] and the two are
// combined with equal weight (natural=1.0, code=1.0). Ties are broken
// by the caller (search.Search) using conversation recency (the Index
// has no notion of recency; that's a Store-side field).
func (idx *Index) Search(ctx context.Context, query string, mode Mode, limit int) ([]Hit, error) {
	idx.reconnectMu.RLock()
	defer idx.reconnectMu.RUnlock()

	switch mode {
	case ModeNatural:
		return idx.searchTable(ctx, "fts_natural", ModeNatural, query, limit)
	case ModeCode:
		return idx.searchTable(ctx, "fts_code", ModeCode, query, limit)
	case ModeMixed:
		natural, err := idx.searchTable(ctx, "fts_natural", ModeNatural, query, limit)
		if err != nil {
			return nil, err
		}
		code, err := idx.searchTable(ctx, "fts_code", ModeCode, query, limit)
		if err != nil {
			return nil, err
		}
		normalize(natural)
		normalize(code)
		merged := mergeByConversation(append(natural, code...))
		if len(merged) > limit {
			merged = merged[:limit]
		}
		return merged, nil
	default:
		return nil, fmt.Errorf("index: unknown mode %q", mode)
	}
}

func (idx *Index) searchTable(ctx context.Context, table string, mode Mode, query string, limit int) ([]Hit, error) {
	// bm25() returns a cost (lower is better); negate so higher Rank
	// means more relevant, matching the Hit.Rank contract.
	rows, err := idx.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT message_id, conversation_id, -bm25(%s) AS rank
		FROM %s WHERE %s MATCH ?
		ORDER BY rank DESC
		LIMIT ?
	`, table, table, table), query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search %s: %w", table, err)
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var h Hit
		h.Table = mode
		if err := rows.Scan(&h.MessageID, &h.ConversationID, &h.Rank); err != nil {
			return nil, fmt.Errorf("index: scan hit: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// normalize max-scales ranks within hits to [0,1] in place, so natural
// and code scores are comparable before summing in mixed mode.
func normalize(hits []Hit) {
	var max float64
	for _, h := range hits {
		if h.Rank > max {
			max = h.Rank
		}
	}
	if max <= 0 {
		return
	}
	for i := range hits {
		hits[i].Rank /= max
	}
}

// mergeByConversation sums ranks for hits sharing a conversation id
// (weighted 1.0/1.0 natural/code) and returns them sorted descending
// by combined rank.
func mergeByConversation(hits []Hit) []Hit {
	byConv := make(map[string]*Hit, len(hits))
	var order []string
	for _, h := range hits {
		if existing, ok := byConv[h.ConversationID]; ok {
			existing.Rank += h.Rank
			continue
		}
		cp := h
		cp.Table = ModeMixed
		byConv[h.ConversationID] = &cp
		order = append(order, h.ConversationID)
	}

	merged := make([]Hit, 0, len(order))
	for _, id := range order {
		merged = append(merged, *byConv[id])
	}
	for i := 1; i < len(merged); i++ {
		for j := i; j > 0 && merged[j].Rank > merged[j-1].Rank; j-- {
			merged[j], merged[j-1] = merged[j-1], merged[j]
		}
	}
	return merged
}
