package integrations

import (
	"context"

	"github.com/felo/inbox-library/internal/db"
)

// ItemLister is the read side of the library store
type ItemLister interface {
	ListLibraryItemsSince(ctx context.Context, q db.ItemQuery) ([]*db.LibraryItem, error)
}

// LibraryClient serves a user's own library through the integration
// contract. The credential is the user id.
type LibraryClient struct {
	store ItemLister
}

// NewLibraryClient creates a client over the local store
func NewLibraryClient(store ItemLister) *LibraryClient {
	return &LibraryClient{store: store}
}

func (c *LibraryClient) Name() string { return "library" }

func (c *LibraryClient) Export(ctx context.Context, credential string, items []Item) (bool, error) {
	return false, ErrExportUnsupported
}

// Retrieve pages through items updated at or after req.Since, oldest first
func (c *LibraryClient) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResponse, error) {
	q := db.ItemQuery{
		UserID:  req.Credential,
		SinceMs: req.Since,
		Limit:   req.Count + 1, // one extra row tells whether a next page exists
		Offset:  req.Offset,
	}
	archived, unarchived := true, false
	switch req.State {
	case StateArchived:
		q.Archived = &archived
	case StateUnarchived:
		q.Archived = &unarchived
	case StateUnread:
		q.Archived = &unarchived
		q.Unread = true
	}

	rows, err := c.store.ListLibraryItemsSince(ctx, q)
	if err != nil {
		return nil, err
	}

	resp := &RetrieveResponse{Since: req.Since}
	if len(rows) > req.Count {
		resp.HasMore = true
		rows = rows[:req.Count]
	}
	for _, row := range rows {
		resp.Items = append(resp.Items, toItem(row))
		resp.Since = max(resp.Since, row.UpdatedAt.UnixMilli())
	}
	return resp, nil
}

func toItem(row *db.LibraryItem) Item {
	item := Item{
		URL:       row.OriginalURL,
		Title:     row.Title,
		Excerpt:   row.Description,
		Archived:  row.Archived,
		Read:      row.ReadAt.Valid,
		SavedAt:   row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if item.URL == "" {
		item.URL = row.CanonicalURL
	}
	for _, l := range row.Labels {
		item.Labels = append(item.Labels, l.Name)
	}
	return item
}
