// Package library saves parsed content as library items, exactly once per
// user and canonical URL.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felo/inbox-library/internal/content"
	"github.com/felo/inbox-library/internal/db"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// ErrSaveFailed marks errors from the durable write path
var ErrSaveFailed = errors.New("save failed")

// Store is the persistence the pipeline needs; *db.DB implements it
type Store interface {
	FindLibraryItemByURL(ctx context.Context, userID, canonicalURL string) (*db.LibraryItem, error)
	SaveNewItem(ctx context.Context, n *db.NewItem) (*db.LibraryItem, error)
	RestoreLibraryItem(ctx context.Context, id, userID string) (*db.LibraryItem, error)
	MarkReceivedEmailConsumed(ctx context.Context, id, kind, userID string) error
}

var _ Store = (*db.DB)(nil)

// TaskQueue accepts enrichment tasks. Submission is fire-and-forget.
type TaskQueue interface {
	EnqueueThumbnailTask(ctx context.Context, userID, slug string) (string, error)
}

// ContentParser is satisfied by *content.Parser
type ContentParser interface {
	Parse(ctx context.Context, rawURL, document string, opts content.Options) *content.NormalizedContent
}

// Newsletter carries the subscription an item was received through
type Newsletter struct {
	Name               string
	UnsubscribeMailTo  string
	UnsubscribeHTTPURL string
	Icon               string
	NewsletterEmailID  string
}

// SaveRequest is one piece of content to save for a user
type SaveRequest struct {
	UserID  string
	URL     string // source URL, or a stub URL
	Content string // raw HTML

	// Title and Author override what the document declares
	Title  string
	Author string

	Newsletter      *Newsletter
	Labels          []string
	ReceivedEmailID string
	ItemType        string
	File            *db.UploadedFile

	Preprocess     func(*html.Node) error
	PreprocessName string
}

// Pipeline turns content into persisted library items
type Pipeline struct {
	store  Store
	parser ContentParser
	tasks  TaskQueue
	logger *logrus.Logger
}

// NewPipeline creates a pipeline. tasks may be nil to skip enrichment.
func NewPipeline(store Store, parser ContentParser, tasks TaskQueue, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		parser: parser,
		tasks:  tasks,
		logger: logger,
	}
}

// SaveContent parses req and either restores the user's existing item for
// the canonical URL or creates a new one. Only durable-write failures are
// returned; they wrap ErrSaveFailed.
func (p *Pipeline) SaveContent(ctx context.Context, req SaveRequest) (*db.LibraryItem, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrSaveFailed)
	}
	if strings.TrimSpace(req.URL) == "" {
		return nil, fmt.Errorf("%w: url is required", ErrSaveFailed)
	}

	nc := p.parser.Parse(ctx, req.URL, req.Content, content.Options{
		Title:          req.Title,
		Author:         req.Author,
		Preprocess:     req.Preprocess,
		PreprocessName: req.PreprocessName,
	})

	existing, err := p.store.FindLibraryItemByURL(ctx, req.UserID, nc.CanonicalURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	if existing != nil {
		return p.restore(ctx, existing, req)
	}

	item, err := p.create(ctx, req, nc)
	if err != nil {
		return nil, err
	}

	p.enqueueThumbnail(ctx, item)
	return item, nil
}

func (p *Pipeline) create(ctx context.Context, req SaveRequest, nc *content.NormalizedContent) (*db.LibraryItem, error) {
	n := &db.NewItem{
		Item:            p.newItem(req, nc),
		Labels:          itemLabels(req),
		ReceivedEmailID: req.ReceivedEmailID,
		File:            req.File,
	}
	if nl := req.Newsletter; nl != nil && nl.Name != "" {
		n.Subscription = &db.Subscription{
			UserID:             req.UserID,
			Name:               nl.Name,
			NewsletterEmailID:  nl.NewsletterEmailID,
			UnsubscribeMailTo:  nl.UnsubscribeMailTo,
			UnsubscribeHTTPURL: nl.UnsubscribeHTTPURL,
			Icon:               firstNonEmpty(nl.Icon, nc.SiteIcon),
		}
	}

	// a duplicate is either a concurrent save of the same URL, which
	// becomes a restore, or a slug collision, which gets one more slug
	for attempt := 0; ; attempt++ {
		item, err := p.store.SaveNewItem(ctx, n)
		if err == nil {
			p.logger.WithFields(logrus.Fields{
				"user_id": req.UserID,
				"item_id": item.ID,
				"url":     item.CanonicalURL,
			}).Info("Saved library item")
			return item, nil
		}
		if !errors.Is(err, db.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
		}

		existing, findErr := p.store.FindLibraryItemByURL(ctx, req.UserID, nc.CanonicalURL)
		if findErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrSaveFailed, findErr)
		}
		if existing != nil {
			p.logger.WithFields(logrus.Fields{
				"user_id": req.UserID,
				"url":     nc.CanonicalURL,
			}).Info("Item created concurrently, restoring instead")
			return p.restore(ctx, existing, req)
		}
		if attempt > 0 {
			return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
		}
		n.Item = p.newItem(req, nc)
	}
}

// restore reactivates an existing item. Nothing new is attached to it.
func (p *Pipeline) restore(ctx context.Context, existing *db.LibraryItem, req SaveRequest) (*db.LibraryItem, error) {
	item, err := p.store.RestoreLibraryItem(ctx, existing.ID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	if req.ReceivedEmailID != "" {
		if err := p.store.MarkReceivedEmailConsumed(ctx, req.ReceivedEmailID, db.ReceivedArticle, req.UserID); err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"user_id":           req.UserID,
				"received_email_id": req.ReceivedEmailID,
			}).Warn("Failed to mark received email consumed")
		}
	}

	p.logger.WithFields(logrus.Fields{
		"user_id": req.UserID,
		"item_id": item.ID,
		"state":   existing.State,
	}).Info("Restored library item")
	return item, nil
}

// enqueueThumbnail never fails the save
func (p *Pipeline) enqueueThumbnail(ctx context.Context, item *db.LibraryItem) {
	if p.tasks == nil {
		return
	}
	taskID, err := p.tasks.EnqueueThumbnailTask(ctx, item.UserID, item.Slug)
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": item.UserID,
			"slug":    item.Slug,
		}).Warn("Failed to enqueue thumbnail task")
		return
	}
	p.logger.WithFields(logrus.Fields{
		"task_id": taskID,
		"slug":    item.Slug,
	}).Debug("Enqueued thumbnail task")
}

func (p *Pipeline) newItem(req SaveRequest, nc *content.NormalizedContent) *db.LibraryItem {
	item := &db.LibraryItem{
		UserID:       req.UserID,
		Slug:         Slug(nc.Title),
		OriginalURL:  strings.TrimSpace(req.URL),
		CanonicalURL: nc.CanonicalURL,
		Title:        nc.Title,
		Author:       nc.Author,
		Description:  nc.Excerpt,
		SiteName:     nc.SiteName,
		SiteIcon:     nc.SiteIcon,
		Content:      nc.HTMLContent,
		ContentHash:  nc.ContentHash,
		WordCount:    nc.WordCount,
		ItemType:     req.ItemType,
		State:        db.StateSucceeded,
	}
	if nc.PublishedAt != nil {
		item.PublishedAt = db.NewNullTime(*nc.PublishedAt)
	}
	return item
}

// itemLabels adds the internal newsletter label and drops repeats
func itemLabels(req SaveRequest) []string {
	names := append([]string(nil), req.Labels...)
	if req.Newsletter != nil {
		names = append(names, db.LabelNewsletter)
	}

	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
