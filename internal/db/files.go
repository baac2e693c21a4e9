package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func insertUploadedFileTx(ctx context.Context, tx *sql.Tx, item *LibraryItem, f *UploadedFile) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.UserID, f.ItemID = item.UserID, item.ID
	_, err := tx.ExecContext(ctx, `
		INSERT INTO uploaded_files (id, user_id, item_id, filename, content_type, size, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.UserID, f.ItemID, f.Filename, f.ContentType, len(f.Data), f.Data, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to insert uploaded file %s: %w", f.Filename, err)
	}
	return nil
}

// GetUploadedFileByItem returns the file saved with an item. Returns nil, nil if none.
func (db *DB) GetUploadedFileByItem(ctx context.Context, itemID string) (*UploadedFile, error) {
	f := &UploadedFile{}
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, item_id, filename, content_type, data
		FROM uploaded_files WHERE item_id = ?
	`, itemID).Scan(&f.ID, &f.UserID, &f.ItemID, &f.Filename, &f.ContentType, &f.Data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get uploaded file: %w", err)
	}
	return f, nil
}
