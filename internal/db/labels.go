package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AttachLabels links the named labels to an item, creating missing labels.
// Links that already exist are left alone.
func (db *DB) AttachLabels(ctx context.Context, userID, itemID string, names []string) error {
	if len(names) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := attachLabelsTx(ctx, tx, userID, itemID, names); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func attachLabelsTx(ctx context.Context, tx *sql.Tx, userID, itemID string, names []string) error {
	now := toMillis(time.Now())
	for _, name := range names {
		color := internalLabelColors[name]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO labels (id, user_id, name, color, internal, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, name) DO NOTHING
		`, uuid.NewString(), userID, name, color, IsInternalLabel(name), now)
		if err != nil {
			return fmt.Errorf("failed to create label %s: %w", name, err)
		}

		var labelID string
		err = tx.QueryRowContext(ctx, `SELECT id FROM labels WHERE user_id = ? AND name = ?`,
			userID, name).Scan(&labelID)
		if err != nil {
			return fmt.Errorf("failed to get label %s: %w", name, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO item_labels (item_id, label_id, created_at) VALUES (?, ?, ?)
		`, itemID, labelID, now)
		if err != nil {
			return fmt.Errorf("failed to attach label %s: %w", name, err)
		}
	}
	return nil
}

// GetLabelsForItem returns the labels attached to an item, ordered by name
func (db *DB) GetLabelsForItem(ctx context.Context, itemID string) ([]*Label, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT l.id, l.user_id, l.name, l.color, l.internal
		FROM labels l
		JOIN item_labels il ON il.label_id = l.id
		WHERE il.item_id = ?
		ORDER BY l.name
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get labels: %w", err)
	}
	defer rows.Close()

	var labels []*Label
	for rows.Next() {
		l := &Label{}
		if err := rows.Scan(&l.ID, &l.UserID, &l.Name, &l.Color, &l.Internal); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, l)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating labels: %w", err)
	}

	return labels, nil
}
