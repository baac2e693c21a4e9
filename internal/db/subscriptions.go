package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertSubscription creates the (user, name) subscription or refreshes its
// unsubscribe targets and icon. Empty fields never overwrite stored values.
func (db *DB) UpsertSubscription(ctx context.Context, s *Subscription) (*Subscription, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sub, err := upsertSubscriptionTx(ctx, tx, s)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return sub, nil
}

func upsertSubscriptionTx(ctx context.Context, tx *sql.Tx, s *Subscription) (*Subscription, error) {
	now := toMillis(time.Now())
	_, err := tx.ExecContext(ctx, `
		INSERT INTO subscriptions (
			id, user_id, name, newsletter_email_id, unsubscribe_mail_to,
			unsubscribe_http_url, icon, last_fetched_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, name) DO UPDATE SET
			unsubscribe_mail_to = COALESCE(NULLIF(excluded.unsubscribe_mail_to, ''), unsubscribe_mail_to),
			unsubscribe_http_url = COALESCE(NULLIF(excluded.unsubscribe_http_url, ''), unsubscribe_http_url),
			icon = COALESCE(NULLIF(excluded.icon, ''), icon),
			last_fetched_at = excluded.last_fetched_at,
			updated_at = excluded.updated_at
	`,
		uuid.NewString(), s.UserID, s.Name, s.NewsletterEmailID, s.UnsubscribeMailTo,
		s.UnsubscribeHTTPURL, s.Icon, now, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}

	sub, err := scanSubscription(tx.QueryRowContext(ctx, subscriptionSelect+` WHERE user_id = ? AND name = ?`,
		s.UserID, s.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

const subscriptionSelect = `
	SELECT id, user_id, name, newsletter_email_id, unsubscribe_mail_to,
	       unsubscribe_http_url, icon, created_at, updated_at
	FROM subscriptions`

func scanSubscription(row rowScanner) (*Subscription, error) {
	s := &Subscription{}
	var createdAt, updatedAt int64
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.NewsletterEmailID, &s.UnsubscribeMailTo,
		&s.UnsubscribeHTTPURL, &s.Icon, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	return s, nil
}

// ListSubscriptions returns a user's subscriptions ordered by name
func (db *DB) ListSubscriptions(ctx context.Context, userID string) ([]*Subscription, error) {
	rows, err := db.QueryContext(ctx, subscriptionSelect+` WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}

	return subs, nil
}
