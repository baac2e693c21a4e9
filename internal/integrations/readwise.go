package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// ReadwiseBaseURL is the Readwise Reader API root
const ReadwiseBaseURL = "https://readwise.io/api/v3"

// ReadwiseClient exports items to Readwise Reader. It cannot retrieve.
type ReadwiseClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewReadwiseClient creates a client for the public Readwise API
func NewReadwiseClient() *ReadwiseClient {
	return &ReadwiseClient{BaseURL: ReadwiseBaseURL}
}

func (c *ReadwiseClient) Name() string { return "readwise" }

type readwiseDocument struct {
	URL      string   `json:"url"`
	Title    string   `json:"title,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Location string   `json:"location"`
	SavedBy  string   `json:"saved_using,omitempty"`
}

// Export saves each item; it reports true only when every item was accepted
func (c *ReadwiseClient) Export(ctx context.Context, credential string, items []Item) (bool, error) {
	// Readwise expects "Authorization: Token <key>"
	client := authorizedClient(ctx, c.HTTPClient, &oauth2.Token{AccessToken: credential, TokenType: "Token"})

	for _, item := range items {
		location := "new"
		if item.Archived {
			location = "archive"
		}
		body, err := json.Marshal(readwiseDocument{
			URL:      item.URL,
			Title:    item.Title,
			Summary:  item.Excerpt,
			Tags:     item.Labels,
			Location: location,
			SavedBy:  "inbox-library",
		})
		if err != nil {
			return false, fmt.Errorf("failed to encode readwise document: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/save/", bytes.NewReader(body))
		if err != nil {
			return false, fmt.Errorf("failed to create readwise request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return false, fmt.Errorf("readwise request failed: %w", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return false, fmt.Errorf("readwise rejected %s with status %d", item.URL, resp.StatusCode)
		}
	}
	return true, nil
}

func (c *ReadwiseClient) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResponse, error) {
	return nil, ErrRetrieveUnsupported
}
