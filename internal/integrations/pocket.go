package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// PocketBaseURL is the Pocket v3 API root
const PocketBaseURL = "https://getpocket.com/v3"

// PocketClient retrieves a user's Pocket list. Pocket has no export API.
type PocketClient struct {
	BaseURL     string
	ConsumerKey string
	HTTPClient  *http.Client
}

// NewPocketClient creates a client for the public Pocket API
func NewPocketClient(consumerKey string) *PocketClient {
	return &PocketClient{BaseURL: PocketBaseURL, ConsumerKey: consumerKey}
}

func (c *PocketClient) Name() string { return "pocket" }

func (c *PocketClient) Export(ctx context.Context, credential string, items []Item) (bool, error) {
	return false, ErrExportUnsupported
}

type pocketRequest struct {
	ConsumerKey string `json:"consumer_key"`
	AccessToken string `json:"access_token"`
	State       string `json:"state"`
	Sort        string `json:"sort"`
	DetailType  string `json:"detailType"`
	Since       int64  `json:"since,omitempty"`
	Count       int    `json:"count"`
	Offset      int    `json:"offset"`
}

type pocketItem struct {
	ItemID        string                    `json:"item_id"`
	GivenURL      string                    `json:"given_url"`
	ResolvedURL   string                    `json:"resolved_url"`
	GivenTitle    string                    `json:"given_title"`
	ResolvedTitle string                    `json:"resolved_title"`
	Excerpt       string                    `json:"excerpt"`
	Status        string                    `json:"status"` // 0 unread, 1 archived, 2 deleted
	TimeAdded     string                    `json:"time_added"`
	TimeUpdated   string                    `json:"time_updated"`
	TimeRead      string                    `json:"time_read"`
	SortID        int                       `json:"sort_id"`
	Tags          map[string]map[string]any `json:"tags"`
}

type pocketResponse struct {
	Status int                   `json:"status"`
	List   map[string]pocketItem `json:"list"`
	Since  int64                 `json:"since"`
}

// Retrieve fetches one page. Pocket counts time in seconds.
func (c *PocketClient) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResponse, error) {
	state := "all"
	switch req.State {
	case StateArchived:
		state = "archive"
	case StateUnread, StateUnarchived:
		state = "unread"
	}

	body, err := json.Marshal(pocketRequest{
		ConsumerKey: c.ConsumerKey,
		AccessToken: req.Credential,
		State:       state,
		Sort:        "oldest",
		DetailType:  "complete",
		Since:       req.Since / 1000,
		Count:       req.Count,
		Offset:      req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode pocket request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/get", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create pocket request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")
	httpReq.Header.Set("X-Accept", "application/json")

	resp, err := authorizedClient(ctx, c.HTTPClient, &oauth2.Token{AccessToken: req.Credential}).Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("pocket request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pocket returned status %d: %s", resp.StatusCode, resp.Header.Get("X-Error"))
	}

	var pr pocketResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("failed to decode pocket response: %w", err)
	}

	raw := make([]pocketItem, 0, len(pr.List))
	for _, it := range pr.List {
		raw = append(raw, it)
	}
	// the list is a JSON object, so page order comes from sort_id
	sort.Slice(raw, func(i, j int) bool { return raw[i].SortID < raw[j].SortID })

	out := &RetrieveResponse{
		HasMore: len(pr.List) >= req.Count,
		Since:   max(pr.Since*1000, req.Since),
	}
	for _, it := range raw {
		out.Items = append(out.Items, it.toItem())
	}
	return out, nil
}

func (it pocketItem) toItem() Item {
	item := Item{
		URL:       firstNonEmpty(it.ResolvedURL, it.GivenURL),
		Title:     firstNonEmpty(it.ResolvedTitle, it.GivenTitle),
		Excerpt:   it.Excerpt,
		Archived:  it.Status == "1",
		Deleted:   it.Status == "2",
		Read:      unixString(it.TimeRead) != (time.Time{}),
		SavedAt:   unixString(it.TimeAdded),
		UpdatedAt: unixString(it.TimeUpdated),
	}
	for tag := range it.Tags {
		item.Labels = append(item.Labels, tag)
	}
	sort.Strings(item.Labels)
	return item
}

func unixString(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

// authorizedClient wraps base so every request carries tok
func authorizedClient(ctx context.Context, base *http.Client, tok *oauth2.Token) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
