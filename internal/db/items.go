package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const itemColumns = `
	id, user_id, slug, original_url, canonical_url, title, author, description,
	site_name, site_icon, content, content_hash, word_count, item_type, state,
	subscription, archived, read_at, published_at, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*LibraryItem, error) {
	item := &LibraryItem{}
	var readAt, deletedAt sql.NullInt64
	var createdAt, updatedAt int64
	var state string
	err := row.Scan(
		&item.ID, &item.UserID, &item.Slug, &item.OriginalURL, &item.CanonicalURL,
		&item.Title, &item.Author, &item.Description, &item.SiteName, &item.SiteIcon,
		&item.Content, &item.ContentHash, &item.WordCount, &item.ItemType, &state,
		&item.Subscription, &item.Archived, &readAt, &item.PublishedAt,
		&createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	item.State = ItemState(state)
	item.CreatedAt = fromMillis(createdAt)
	item.UpdatedAt = fromMillis(updatedAt)
	if readAt.Valid {
		item.ReadAt = NewNullTime(fromMillis(readAt.Int64))
	}
	if deletedAt.Valid {
		item.DeletedAt = NewNullTime(fromMillis(deletedAt.Int64))
	}
	return item, nil
}

// FindLibraryItemByURL looks up the item for (userID, canonicalURL),
// including soft-deleted ones. Returns nil, nil when there is none.
func (db *DB) FindLibraryItemByURL(ctx context.Context, userID, canonicalURL string) (*LibraryItem, error) {
	row := db.QueryRowContext(ctx, `SELECT `+itemColumns+`
		FROM library_items WHERE user_id = ? AND canonical_url = ?`, userID, canonicalURL)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find library item: %w", err)
	}
	return item, nil
}

// GetLibraryItem retrieves an item with its labels. Returns nil, nil if missing.
func (db *DB) GetLibraryItem(ctx context.Context, id, userID string) (*LibraryItem, error) {
	row := db.QueryRowContext(ctx, `SELECT `+itemColumns+`
		FROM library_items WHERE id = ? AND user_id = ?`, id, userID)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get library item: %w", err)
	}

	item.Labels, err = db.GetLabelsForItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// SaveNewItem creates a library item together with its subscription, labels,
// uploaded file and the consumed flag of the originating received email, all
// in one transaction. A unique-constraint violation on the item returns ErrDuplicate.
func (db *DB) SaveNewItem(ctx context.Context, n *NewItem) (*LibraryItem, error) {
	if n == nil || n.Item == nil {
		return nil, fmt.Errorf("failed to save item: no item given")
	}
	item := n.Item
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.State == "" {
		item.State = StateSucceeded
	}
	if item.ItemType == "" {
		item.ItemType = ItemTypeWebsite
	}
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if n.Subscription != nil {
		sub, err := upsertSubscriptionTx(ctx, tx, n.Subscription)
		if err != nil {
			return nil, err
		}
		item.Subscription = sub.Name
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO library_items (
			id, user_id, slug, original_url, canonical_url, title, author, description,
			site_name, site_icon, content, content_hash, word_count, item_type, state,
			subscription, archived, published_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID, item.UserID, item.Slug, item.OriginalURL, item.CanonicalURL,
		item.Title, item.Author, item.Description, item.SiteName, item.SiteIcon,
		item.Content, item.ContentHash, item.WordCount, item.ItemType, string(item.State),
		item.Subscription, item.Archived, item.PublishedAt, toMillis(now), toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("failed to insert library item %s: %w", item.CanonicalURL, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to insert library item: %w", err)
	}

	if len(n.Labels) > 0 {
		if err := attachLabelsTx(ctx, tx, item.UserID, item.ID, n.Labels); err != nil {
			return nil, err
		}
	}

	if n.File != nil {
		if err := insertUploadedFileTx(ctx, tx, item, n.File); err != nil {
			return nil, err
		}
	}

	if n.ReceivedEmailID != "" {
		if err := markReceivedEmailConsumed(ctx, tx, n.ReceivedEmailID, ReceivedArticle, item.UserID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return db.GetLibraryItem(ctx, item.ID, item.UserID)
}

// RestoreLibraryItem clears the deleted/failed state of an item and marks it
// succeeded. Labels and subscriptions are left untouched.
func (db *DB) RestoreLibraryItem(ctx context.Context, id, userID string) (*LibraryItem, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE library_items
		SET state = ?, deleted_at = NULL, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, string(StateSucceeded), toMillis(time.Now()), id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore library item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("library item %s not found", id)
	}

	return db.GetLibraryItem(ctx, id, userID)
}

// SoftDeleteLibraryItem marks an item deleted without removing the row
func (db *DB) SoftDeleteLibraryItem(ctx context.Context, id, userID string) error {
	now := toMillis(time.Now())
	result, err := db.ExecContext(ctx, `
		UPDATE library_items SET state = ?, deleted_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, string(StateDeleted), now, now, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete library item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("library item %s not found", id)
	}
	return nil
}

// SetLibraryItemState moves an item to a new state
func (db *DB) SetLibraryItemState(ctx context.Context, id, userID string, state ItemState) error {
	_, err := db.ExecContext(ctx, `
		UPDATE library_items SET state = ?, updated_at = ? WHERE id = ? AND user_id = ?
	`, string(state), toMillis(time.Now()), id, userID)
	if err != nil {
		return fmt.Errorf("failed to set library item state: %w", err)
	}
	return nil
}

// ItemQuery selects items for incremental retrieval
type ItemQuery struct {
	UserID   string
	SinceMs  int64 // inclusive lower bound on updated_at
	Archived *bool // nil means either
	Unread   bool  // only items never read
	Limit    int
	Offset   int
}

// ListLibraryItemsSince returns non-deleted items updated at or after
// SinceMs, oldest first with id as a stable tie-break.
func (db *DB) ListLibraryItemsSince(ctx context.Context, q ItemQuery) ([]*LibraryItem, error) {
	query := `SELECT ` + itemColumns + `
		FROM library_items
		WHERE user_id = ? AND updated_at >= ? AND state != ?`
	args := []interface{}{q.UserID, q.SinceMs, string(StateDeleted)}

	if q.Archived != nil {
		query += ` AND archived = ?`
		args = append(args, *q.Archived)
	}
	if q.Unread {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY updated_at ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list library items: %w", err)
	}
	defer rows.Close()

	var items []*LibraryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan library item: %w", err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating library items: %w", err)
	}

	return items, nil
}

// CountLibraryItems counts a user's items that are not deleted
func (db *DB) CountLibraryItems(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM library_items WHERE user_id = ? AND state != ?
	`, userID, string(StateDeleted)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count library items: %w", err)
	}
	return count, nil
}
