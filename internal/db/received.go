package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateNewsletterEmail registers an inbound address for a user
func (db *DB) CreateNewsletterEmail(ctx context.Context, userID, address string) (*NewsletterEmail, error) {
	ne := &NewsletterEmail{
		ID:      uuid.NewString(),
		UserID:  userID,
		Address: strings.ToLower(strings.TrimSpace(address)),
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO newsletter_emails (id, user_id, address, created_at) VALUES (?, ?, ?, ?)
	`, ne.ID, ne.UserID, ne.Address, toMillis(time.Now()))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("failed to create newsletter email %s: %w", ne.Address, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create newsletter email: %w", err)
	}
	return ne, nil
}

// FindNewsletterEmail resolves an inbound address. Returns nil, nil if unknown.
func (db *DB) FindNewsletterEmail(ctx context.Context, address string) (*NewsletterEmail, error) {
	ne := &NewsletterEmail{}
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, address FROM newsletter_emails WHERE address = ?
	`, strings.ToLower(strings.TrimSpace(address))).Scan(&ne.ID, &ne.UserID, &ne.Address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find newsletter email: %w", err)
	}
	return ne, nil
}

// CreateReceivedEmail records an inbound email and returns its id
func (db *DB) CreateReceivedEmail(ctx context.Context, e *ReceivedEmail) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Kind == "" {
		e.Kind = ReceivedNonArticle
	}
	e.CreatedAt = time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO received_emails (
			id, user_id, from_address, to_address, subject, text, html, kind, received_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.From, e.To, e.Subject, e.Text, e.HTML, e.Kind, e.ReceivedAt, toMillis(e.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("failed to insert received email: %w", err)
	}
	return e.ID, nil
}

// GetReceivedEmail retrieves a received email by id. Returns nil, nil if missing.
func (db *DB) GetReceivedEmail(ctx context.Context, id string) (*ReceivedEmail, error) {
	e := &ReceivedEmail{}
	var createdAt int64
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, from_address, to_address, subject, text, html, kind, consumed, received_at, created_at
		FROM received_emails WHERE id = ?
	`, id).Scan(&e.ID, &e.UserID, &e.From, &e.To, &e.Subject, &e.Text, &e.HTML,
		&e.Kind, &e.Consumed, &e.ReceivedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get received email: %w", err)
	}
	e.CreatedAt = fromMillis(createdAt)
	return e, nil
}

// MarkReceivedEmailConsumed flags a received email as turned into content of the given kind
func (db *DB) MarkReceivedEmailConsumed(ctx context.Context, id, kind, userID string) error {
	return markReceivedEmailConsumed(ctx, db, id, kind, userID)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func markReceivedEmailConsumed(ctx context.Context, ex execer, id, kind, userID string) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE received_emails SET consumed = 1, kind = ? WHERE id = ? AND user_id = ?
	`, kind, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark received email consumed: %w", err)
	}
	return nil
}
