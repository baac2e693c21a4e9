// Package integrations exports saved items to, and retrieves them from,
// third-party read-later services.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrExportUnsupported is returned with false by clients that cannot export
	ErrExportUnsupported = errors.New("export not supported")
	// ErrRetrieveUnsupported is returned by clients that cannot retrieve
	ErrRetrieveUnsupported = errors.New("retrieve not supported")
)

// StateFilter selects which items Retrieve returns
type StateFilter string

const (
	StateAll        StateFilter = "all"
	StateArchived   StateFilter = "archived"
	StateUnarchived StateFilter = "unarchived"
	StateUnread     StateFilter = "unread"
)

// ParseStateFilter parses a filter name; empty means StateAll
func ParseStateFilter(s string) (StateFilter, error) {
	switch f := StateFilter(s); f {
	case "":
		return StateAll, nil
	case StateAll, StateArchived, StateUnarchived, StateUnread:
		return f, nil
	}
	return "", fmt.Errorf("unknown state filter %q", s)
}

// Item is a saved item as exchanged with an integration
type Item struct {
	URL       string
	Title     string
	Excerpt   string
	Labels    []string
	Archived  bool
	Read      bool
	Deleted   bool // removed upstream since the last sync
	SavedAt   time.Time
	UpdatedAt time.Time
}

// RetrieveRequest asks for one page of items changed at or after Since
type RetrieveRequest struct {
	Credential string
	Since      int64 // unix milliseconds
	Count      int
	Offset     int
	State      StateFilter
}

// RetrieveResponse is one page. Since is the cursor to persist once
// HasMore is false.
type RetrieveResponse struct {
	Items   []Item
	HasMore bool
	Since   int64
}

// Client is an integration. Every method is required; clients that lack a
// capability return ErrExportUnsupported or ErrRetrieveUnsupported.
type Client interface {
	Name() string
	Export(ctx context.Context, credential string, items []Item) (bool, error)
	Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResponse, error)
}

// RetrieveAll pages through client from since until HasMore is false,
// passing each page to fn. It returns the cursor for the next sync.
func RetrieveAll(ctx context.Context, client Client, credential string, since int64, count int, state StateFilter, fn func([]Item) error) (int64, error) {
	if count <= 0 {
		return since, fmt.Errorf("page size must be positive, got %d", count)
	}

	cursor := since
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return since, err
		}

		resp, err := client.Retrieve(ctx, RetrieveRequest{
			Credential: credential,
			Since:      since,
			Count:      count,
			Offset:     offset,
			State:      state,
		})
		if err != nil {
			return since, fmt.Errorf("failed to retrieve from %s at offset %d: %w", client.Name(), offset, err)
		}

		if len(resp.Items) > 0 {
			if err := fn(resp.Items); err != nil {
				return since, err
			}
		}
		cursor = max(cursor, resp.Since)

		if !resp.HasMore {
			return cursor, nil
		}
		if len(resp.Items) == 0 {
			return since, fmt.Errorf("%s reported more items but returned an empty page", client.Name())
		}
		offset += len(resp.Items)
	}
}
