package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveNewItem(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	saved := InsertTestItem(t, db, CreateTestItem("user-1", "https://example.com/a", "first"))

	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, StateSucceeded, saved.State)
	assert.Equal(t, ItemTypeWebsite, saved.ItemType)
	assert.False(t, saved.CreatedAt.IsZero())

	found, err := db.FindLibraryItemByURL(ctx, "user-1", "https://example.com/a")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, saved.ID, found.ID)

	// Other users do not see it
	found, err = db.FindLibraryItemByURL(ctx, "user-2", "https://example.com/a")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSaveNewItem_DuplicateURL(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	InsertTestItem(t, db, CreateTestItem("user-1", "https://example.com/a", "first"))

	_, err := db.SaveNewItem(ctx, &NewItem{
		Item:   CreateTestItem("user-1", "https://example.com/a", "second"),
		Labels: []string{LabelNewsletter},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate), "unique violation should map to ErrDuplicate")

	// The failed transaction must not leave a second item behind
	count, err := db.CountLibraryItems(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSaveNewItem_WithSubscriptionLabelsAndReceivedEmail(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	emailID, err := db.CreateReceivedEmail(ctx, &ReceivedEmail{
		UserID:  "user-1",
		From:    "writer@substack.com",
		Subject: "Issue 1",
	})
	require.NoError(t, err)

	saved, err := db.SaveNewItem(ctx, &NewItem{
		Item: CreateTestItem("user-1", "https://writer.substack.com/p/one", "one"),
		Subscription: &Subscription{
			UserID:             "user-1",
			Name:               "Writer",
			UnsubscribeHTTPURL: "https://writer.substack.com/unsub",
		},
		Labels:          []string{LabelNewsletter, LabelNewsletter},
		ReceivedEmailID: emailID,
	})
	require.NoError(t, err)

	assert.Equal(t, "Writer", saved.Subscription)
	require.Len(t, saved.Labels, 1, "duplicate label names attach once")
	assert.Equal(t, LabelNewsletter, saved.Labels[0].Name)
	assert.True(t, saved.Labels[0].Internal)
	assert.Equal(t, "#07D2D1", saved.Labels[0].Color)

	email, err := db.GetReceivedEmail(ctx, emailID)
	require.NoError(t, err)
	require.NotNil(t, email)
	assert.True(t, email.Consumed)
	assert.Equal(t, ReceivedArticle, email.Kind)

	subs, err := db.ListSubscriptions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://writer.substack.com/unsub", subs[0].UnsubscribeHTTPURL)
}

func TestSoftDeleteAndRestore(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	saved := InsertTestItem(t, db, CreateTestItem("user-1", "https://example.com/a", "first"))
	require.NoError(t, db.SoftDeleteLibraryItem(ctx, saved.ID, "user-1"))

	deleted, err := db.FindLibraryItemByURL(ctx, "user-1", "https://example.com/a")
	require.NoError(t, err)
	require.NotNil(t, deleted, "soft-deleted items are still found by url")
	assert.Equal(t, StateDeleted, deleted.State)
	assert.True(t, deleted.DeletedAt.Valid)

	restored, err := db.RestoreLibraryItem(ctx, saved.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, restored.ID)
	assert.Equal(t, StateSucceeded, restored.State)
	assert.False(t, restored.DeletedAt.Valid)

	_, err = db.RestoreLibraryItem(ctx, "missing", "user-1")
	assert.Error(t, err)
}

func TestRestoreLibraryItem_FromFailed(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	saved := InsertTestItem(t, db, CreateTestItem("user-1", "https://example.com/a", "first"))
	require.NoError(t, db.SetLibraryItemState(ctx, saved.ID, "user-1", StateFailed))

	restored, err := db.RestoreLibraryItem(ctx, saved.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, restored.State)
}

func TestAttachLabels_NoDuplicates(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	saved := InsertTestItem(t, db, CreateTestItem("user-1", "https://example.com/a", "first"))

	require.NoError(t, db.AttachLabels(ctx, "user-1", saved.ID, []string{LabelNewsletter}))
	require.NoError(t, db.AttachLabels(ctx, "user-1", saved.ID, []string{LabelNewsletter, "reading"}))

	labels, err := db.GetLabelsForItem(ctx, saved.ID)
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.Equal(t, LabelNewsletter, labels[0].Name)
	assert.Equal(t, "reading", labels[1].Name)
	assert.False(t, labels[1].Internal)
}

func TestUpsertSubscription_Idempotent(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	first, err := db.UpsertSubscription(ctx, &Subscription{
		UserID:            "user-1",
		Name:              "Axios AM",
		UnsubscribeMailTo: "unsub@axios.com",
	})
	require.NoError(t, err)

	second, err := db.UpsertSubscription(ctx, &Subscription{
		UserID: "user-1",
		Name:   "Axios AM",
		Icon:   "https://axios.com/icon.png",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "unsub@axios.com", second.UnsubscribeMailTo, "empty fields keep stored values")
	assert.Equal(t, "https://axios.com/icon.png", second.Icon)

	subs, err := db.ListSubscriptions(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestListLibraryItemsSince_Pagination(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		InsertTestItem(t, db, CreateTestItem("user-1", "https://example.com/"+string(rune('a'+i)), string(rune('a'+i))))
	}
	deleted := InsertTestItem(t, db, CreateTestItem("user-1", "https://example.com/z", "z"))
	require.NoError(t, db.SoftDeleteLibraryItem(ctx, deleted.ID, "user-1"))

	first, err := db.ListLibraryItemsSince(ctx, ItemQuery{UserID: "user-1", Limit: 3})
	require.NoError(t, err)
	second, err := db.ListLibraryItemsSince(ctx, ItemQuery{UserID: "user-1", Limit: 3, Offset: 3})
	require.NoError(t, err)

	assert.Len(t, first, 3)
	assert.Len(t, second, 2, "deleted items are excluded")

	seen := map[string]bool{}
	for _, item := range append(first, second...) {
		assert.False(t, seen[item.ID], "item %s repeated across pages", item.ID)
		seen[item.ID] = true
	}
}

func TestNewsletterEmail(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	created, err := db.CreateNewsletterEmail(ctx, "user-1", "Reader@Inbox.Example.com")
	require.NoError(t, err)

	found, err := db.FindNewsletterEmail(ctx, "reader@inbox.example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "user-1", found.UserID)

	_, err = db.CreateNewsletterEmail(ctx, "user-2", "reader@inbox.example.com")
	assert.True(t, errors.Is(err, ErrDuplicate))

	missing, err := db.FindNewsletterEmail(ctx, "nobody@inbox.example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCursor_NeverMovesBackwards(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	since, err := db.GetCursor(ctx, "user-1", "pocket")
	require.NoError(t, err)
	assert.Equal(t, int64(0), since)

	require.NoError(t, db.SetCursor(ctx, "user-1", "pocket", 2000))
	require.NoError(t, db.SetCursor(ctx, "user-1", "pocket", 1000))

	since, err = db.GetCursor(ctx, "user-1", "pocket")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), since)
}

func TestSettings(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	value, err := db.GetSetting("missing")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, db.SetSetting("handlers", "substack,axios"))
	value, err = db.GetSetting("handlers")
	require.NoError(t, err)
	assert.Equal(t, "substack,axios", value)
}
