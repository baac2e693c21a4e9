package db

import (
	"context"
	"database/sql"
	"fmt"
)

// GetCursor returns the stored incremental sync position, 0 if none
func (db *DB) GetCursor(ctx context.Context, userID, integration string) (int64, error) {
	var since int64
	err := db.QueryRowContext(ctx, `
		SELECT since_ms FROM integration_cursors WHERE user_id = ? AND integration = ?
	`, userID, integration).Scan(&since)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor: %w", err)
	}
	return since, nil
}

// SetCursor stores the sync position. The stored value never moves backwards.
func (db *DB) SetCursor(ctx context.Context, userID, integration string, sinceMs int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO integration_cursors (user_id, integration, since_ms, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, integration) DO UPDATE SET
			since_ms = MAX(since_ms, excluded.since_ms),
			updated_at = CURRENT_TIMESTAMP
	`, userID, integration, sinceMs)
	if err != nil {
		return fmt.Errorf("failed to set cursor: %w", err)
	}
	return nil
}
