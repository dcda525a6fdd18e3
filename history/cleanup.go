package history

import (
	"context"
	"fmt"
	"time"
)

// Cleanup deletes records older than retention and returns how many were
// removed. A retention of zero or less keeps everything.
func (r *Repository) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	db, err := r.db.conn()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-retention).UTC().Format(timeLayout)
	result, err := db.ExecContext(ctx, "DELETE FROM generation_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old history: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted history: %w", err)
	}

	if deleted > 0 {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return deleted, fmt.Errorf("failed to vacuum database: %w", err)
		}
	}
	return deleted, nil
}
