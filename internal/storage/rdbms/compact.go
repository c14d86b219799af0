package rdbms

import (
	"context"
	"fmt"
)

// Compact runs OPTIMIZE TABLE against the four owned tables (MySQL's
// analog of sqlite's VACUUM). Dolt tolerates OPTIMIZE TABLE as a no-op
// on its storage engine, so the same call works unmodified against
// either backend. Per-table errors are tolerated rather than fatal:
// OPTIMIZE TABLE is maintenance, not correctness.
func (s *Store) Compact(ctx context.Context) error {
	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()

	var firstErr error
	for _, table := range []string{"sources", "remotes", "conversations", "messages"} {
		if _, err := s.db.ExecContext(ctx, "OPTIMIZE TABLE "+table); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("optimize %s: %w", table, err)
		}
	}
	return firstErr
}
