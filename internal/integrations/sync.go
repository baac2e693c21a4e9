package integrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/felo/inbox-library/internal/db"
	"github.com/felo/inbox-library/internal/library"
	"github.com/sirupsen/logrus"
)

// CursorStore persists incremental sync cursors; *db.DB implements it
type CursorStore interface {
	GetCursor(ctx context.Context, userID, integration string) (int64, error)
	SetCursor(ctx context.Context, userID, integration string, sinceMs int64) error
}

// Saver is satisfied by *library.Pipeline
type Saver interface {
	SaveContent(ctx context.Context, req library.SaveRequest) (*db.LibraryItem, error)
}

// Syncer runs incremental imports from an integration into the library
type Syncer struct {
	cursors  CursorStore
	saver    Saver
	pageSize int
	logger   *logrus.Logger
}

// NewSyncer creates a syncer; pageSize <= 0 means 100
func NewSyncer(cursors CursorStore, saver Saver, pageSize int, logger *logrus.Logger) *Syncer {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Syncer{cursors: cursors, saver: saver, pageSize: pageSize, logger: logger}
}

// SyncResult counts what one sync did
type SyncResult struct {
	Imported int
	Skipped  int
	Failed   int
	Cursor   int64
}

// Import retrieves everything changed since the stored cursor and saves it
// for userID. The cursor only advances when every page was retrieved.
func (s *Syncer) Import(ctx context.Context, userID string, client Client, credential string, state StateFilter) (*SyncResult, error) {
	since, err := s.cursors.GetCursor(ctx, userID, client.Name())
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"integration": client.Name(),
		"since":       since,
	})

	result := &SyncResult{}
	cursor, err := RetrieveAll(ctx, client, credential, since, s.pageSize, state, func(items []Item) error {
		for _, item := range items {
			if item.Deleted || item.URL == "" {
				result.Skipped++
				continue
			}
			_, err := s.saver.SaveContent(ctx, library.SaveRequest{
				UserID:  userID,
				URL:     item.URL,
				Title:   item.Title,
				Content: item.Excerpt,
				Labels:  item.Labels,
			})
			if err != nil {
				if errors.Is(err, library.ErrSaveFailed) && ctx.Err() == nil {
					log.WithError(err).WithField("url", item.URL).Warn("Failed to import item")
					result.Failed++
					continue
				}
				return err
			}
			result.Imported++
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to import from %s: %w", client.Name(), err)
	}

	if err := s.cursors.SetCursor(ctx, userID, client.Name(), cursor); err != nil {
		return result, err
	}
	result.Cursor = cursor

	log.WithFields(logrus.Fields{
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
		"cursor":   cursor,
	}).Info("Integration import complete")
	return result, nil
}

// Export pushes the user's library items changed since the stored cursor to
// client, then advances the cursor
func (s *Syncer) Export(ctx context.Context, userID string, source ItemLister, client Client, credential string) (int, error) {
	key := client.Name() + ":export"
	since, err := s.cursors.GetCursor(ctx, userID, key)
	if err != nil {
		return 0, err
	}

	exported := 0
	cursor, err := RetrieveAll(ctx, NewLibraryClient(source), userID, since, s.pageSize, StateAll, func(items []Item) error {
		ok, err := client.Export(ctx, credential, items)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s did not accept the export", client.Name())
		}
		exported += len(items)
		return nil
	})
	if err != nil {
		return exported, fmt.Errorf("failed to export to %s: %w", client.Name(), err)
	}

	if err := s.cursors.SetCursor(ctx, userID, key, cursor); err != nil {
		return exported, err
	}
	return exported, nil
}

// Job is one integration run for a user. Export jobs push the library to
// Client, the rest import from it.
type Job struct {
	Client     Client
	Credential string
	Export     bool
}

// RunJobs runs every job in order. A failing job is logged and does not stop
// the ones after it; all failures are returned joined.
func (s *Syncer) RunJobs(ctx context.Context, userID string, source ItemLister, jobs []Job) error {
	var errs []error
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		log := s.logger.WithFields(logrus.Fields{
			"user_id":     userID,
			"integration": job.Client.Name(),
			"export":      job.Export,
		})

		if job.Export {
			n, err := s.Export(ctx, userID, source, job.Client, job.Credential)
			if err != nil {
				log.WithError(err).Error("Integration export failed")
				errs = append(errs, err)
				continue
			}
			log.WithField("exported", n).Info("Integration export complete")
			continue
		}

		if _, err := s.Import(ctx, userID, job.Client, job.Credential, StateAll); err != nil {
			log.WithError(err).Error("Integration import failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
