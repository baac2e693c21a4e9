// Package backfill routes a directory of saved .eml files through the
// inbound router, the way they would have arrived from the mail transport.
package backfill

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/felo/inbox-library/internal/parser"
	"github.com/felo/inbox-library/internal/router"
	"github.com/felo/inbox-library/internal/scanner"
	"github.com/sirupsen/logrus"
)

const doneKeyPrefix = "backfill:"

// Store remembers which files were already routed; *db.DB implements it
type Store interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// Router is satisfied by *router.Router
type Router interface {
	Route(ctx context.Context, msg *parser.InboundMessage) router.Outcome
}

// Backfiller feeds .eml files to the router with a worker pool
type Backfiller struct {
	store       Store
	router      Router
	scanner     *scanner.Scanner
	concurrency int
	logger      *logrus.Logger
}

// New creates a backfiller for emailsPath
func New(store Store, r Router, emailsPath string, logger *logrus.Logger) *Backfiller {
	return &Backfiller{
		store:       store,
		router:      r,
		scanner:     scanner.NewScanner(emailsPath),
		concurrency: runtime.NumCPU() * 2,
		logger:      logger,
	}
}

// WithConcurrency sets the number of concurrent workers
func (b *Backfiller) WithConcurrency(workers int) *Backfiller {
	if workers < 1 {
		workers = 1
	}
	b.concurrency = workers
	return b
}

// Result contains statistics about a backfill run
type Result struct {
	TotalFound  int
	Routed      int
	Queued      int // routed, but the path failed and the message went to the fallback topic
	Skipped     int
	Failed      int
	FailedFiles []string
}

type status int

const (
	statusRouted status = iota
	statusQueued
	statusSkipped
	statusFailed
)

type fileResult struct {
	path   string
	status status
}

// Run routes every file not routed by an earlier run. progress may be nil.
func (b *Backfiller) Run(ctx context.Context, progress func(current, total int, path string)) (*Result, error) {
	files, err := b.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for files: %w", err)
	}

	result := &Result{
		TotalFound:  len(files),
		FailedFiles: make([]string, 0),
	}
	b.logger.WithFields(logrus.Fields{
		"files":   result.TotalFound,
		"workers": b.concurrency,
	}).Info("Starting backfill")

	fileChan := make(chan string, len(files))
	resultChan := make(chan fileResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < b.concurrency; i++ {
		wg.Add(1)
		go b.worker(ctx, &wg, fileChan, resultChan)
	}

	for _, file := range files {
		fileChan <- file
	}
	close(fileChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	processed := 0
	for res := range resultChan {
		processed++
		if progress != nil {
			progress(processed, result.TotalFound, res.path)
		}

		switch res.status {
		case statusRouted:
			result.Routed++
		case statusQueued:
			result.Queued++
		case statusSkipped:
			result.Skipped++
		case statusFailed:
			result.Failed++
			result.FailedFiles = append(result.FailedFiles, res.path)
		}
	}

	b.logger.WithFields(logrus.Fields{
		"routed":  result.Routed,
		"queued":  result.Queued,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	}).Info("Backfill complete")

	return result, ctx.Err()
}

func (b *Backfiller) worker(ctx context.Context, wg *sync.WaitGroup, fileChan <-chan string, resultChan chan<- fileResult) {
	defer wg.Done()

	for path := range fileChan {
		if ctx.Err() != nil {
			resultChan <- fileResult{path: path, status: statusSkipped}
			continue
		}
		resultChan <- fileResult{path: path, status: b.processFile(ctx, path)}
	}
}

func (b *Backfiller) processFile(ctx context.Context, path string) status {
	log := b.logger.WithField("file", path)

	done, err := b.store.GetSetting(doneKeyPrefix + path)
	if err != nil {
		log.WithError(err).Error("Failed to check backfill state")
		return statusFailed
	}
	if done != "" {
		return statusSkipped
	}

	msg, err := parser.ParseEMLFile(b.scanner.Abs(path))
	if err != nil {
		log.WithError(err).Warn("Failed to parse email file")
		return statusFailed
	}

	out := b.router.Route(ctx, msg)
	if out.Err != nil && !out.Published {
		// nothing durable happened, try again next run
		return statusFailed
	}

	if err := b.store.SetSetting(doneKeyPrefix+path, string(out.Path)); err != nil {
		log.WithError(err).Error("Failed to record backfill state")
	}
	if out.Err != nil {
		return statusQueued
	}
	return statusRouted
}
