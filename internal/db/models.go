package db

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// NullTime is a custom type that handles both string and time.Time from SQLite
type NullTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner for NullTime
func (nt *NullTime) Scan(value interface{}) error {
	if value == nil {
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		nt.Time, nt.Valid = v, true
		return nil
	case string:
		formats := []string{
			time.RFC3339Nano,
			"2006-01-02 15:04:05.999999999-07:00",
			"2006-01-02 15:04:05.999999999 -0700 MST",
			"2006-01-02 15:04:05.999999999",
			"2006-01-02 15:04:05",
		}

		var t time.Time
		var err error
		for _, format := range formats {
			t, err = time.Parse(format, v)
			if err == nil {
				nt.Time, nt.Valid = t, true
				return nil
			}
		}

		return fmt.Errorf("failed to parse time string %q: %w", v, err)
	default:
		return fmt.Errorf("unsupported Scan type for NullTime: %T", value)
	}
}

// Value implements driver.Valuer for NullTime
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time.UTC(), nil
}

// NewNullTime creates a valid NullTime, or an invalid one for the zero time
func NewNullTime(t time.Time) NullTime {
	return NullTime{Time: t, Valid: !t.IsZero()}
}

// ItemState is the lifecycle state of a library item
type ItemState string

const (
	StateProcessing ItemState = "PROCESSING"
	StateSucceeded  ItemState = "SUCCEEDED"
	StateFailed     ItemState = "FAILED"
	StateDeleted    ItemState = "DELETED"
)

// Item types
const (
	ItemTypeWebsite = "WEBSITE"
	ItemTypeFile    = "FILE"
)

// Received email kinds, recorded when the email is consumed
const (
	ReceivedArticle      = "article"
	ReceivedNonArticle   = "non-article"
	ReceivedConfirmation = "confirmation"
)

// Internal labels are attached automatically and are never duplicated
const (
	LabelNewsletter = "newsletter"
	LabelPDF        = "pdf"
)

var internalLabelColors = map[string]string{
	LabelNewsletter: "#07D2D1",
	LabelPDF:        "#F26522",
}

// IsInternalLabel reports whether name is one of the fixed internal labels
func IsInternalLabel(name string) bool {
	_, ok := internalLabelColors[name]
	return ok
}

// LibraryItem is a saved piece of content owned by a user
type LibraryItem struct {
	ID           string
	UserID       string
	Slug         string
	OriginalURL  string
	CanonicalURL string
	Title        string
	Author       string
	Description  string
	SiteName     string
	SiteIcon     string
	Content      string
	ContentHash  string
	WordCount    int
	ItemType     string
	State        ItemState
	Subscription string
	Archived     bool
	ReadAt       NullTime
	PublishedAt  NullTime
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    NullTime
	Labels       []*Label
}

// Label is a user label; internal labels are created on demand
type Label struct {
	ID       string
	UserID   string
	Name     string
	Color    string
	Internal bool
}

// Subscription is a newsletter a user receives, one per (user, name)
type Subscription struct {
	ID                 string
	UserID             string
	Name               string
	NewsletterEmailID  string
	UnsubscribeMailTo  string
	UnsubscribeHTTPURL string
	Icon               string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewsletterEmail maps an inbound address to the user that owns it
type NewsletterEmail struct {
	ID      string
	UserID  string
	Address string
}

// ReceivedEmail is the record of an inbound email for a user
type ReceivedEmail struct {
	ID         string
	UserID     string
	From       string
	To         string
	Subject    string
	Text       string
	HTML       string
	Kind       string
	Consumed   bool
	ReceivedAt NullTime
	CreatedAt  time.Time
}

// UploadedFile holds a file (PDF attachment) saved alongside a library item
type UploadedFile struct {
	ID          string
	UserID      string
	ItemID      string
	Filename    string
	ContentType string
	Data        []byte
}

// NewItem bundles everything SaveNewItem writes in one transaction
type NewItem struct {
	Item            *LibraryItem
	Subscription    *Subscription // optional upsert
	Labels          []string      // label names, created if missing
	ReceivedEmailID string        // marked consumed when set
	File            *UploadedFile // optional
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
