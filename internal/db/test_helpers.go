package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// CreateTestItem creates an unsaved library item with default values
func CreateTestItem(userID, url, title string) *LibraryItem {
	return &LibraryItem{
		UserID:       userID,
		Slug:         fmt.Sprintf("%s-%s", title, uuid.NewString()[:8]),
		OriginalURL:  url,
		CanonicalURL: url,
		Title:        title,
		Content:      "<p>" + title + "</p>",
		ContentHash:  "hash-" + title,
		WordCount:    1,
	}
}

// InsertTestItem saves a test item and returns the stored copy
func InsertTestItem(t *testing.T, db *DB, item *LibraryItem) *LibraryItem {
	t.Helper()

	saved, err := db.SaveNewItem(context.Background(), &NewItem{Item: item})
	if err != nil {
		t.Fatalf("Failed to insert test item %s: %v", item.CanonicalURL, err)
	}
	return saved
}
