package sqlite

import (
	"context"
	"fmt"
)

// Compact reclaims free pages left behind by deletes and replaces.
// Sweeping orphaned full-text rows is the Index's job, not the
// Store's (index.Index.Sweep), since the FTS tables live in their own
// database file independent of which Storage backend is active.
func (s *Store) Compact(ctx context.Context) error {
	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}
