package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felo/inbox-library/internal/backfill"
	"github.com/felo/inbox-library/internal/config"
	"github.com/felo/inbox-library/internal/content"
	"github.com/felo/inbox-library/internal/db"
	"github.com/felo/inbox-library/internal/handlers"
	"github.com/felo/inbox-library/internal/integrations"
	"github.com/felo/inbox-library/internal/library"
	"github.com/felo/inbox-library/internal/newsletters"
	"github.com/felo/inbox-library/internal/queue"
	"github.com/felo/inbox-library/internal/router"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			logger.WithError(err).Warn("Failed to initialise sentry")
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Open database
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open database")
	}
	defer database.Close()
	logger.WithField("path", cfg.DBPath).Info("Database opened")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Queues
	var publisher interface {
		queue.Publisher
		library.TaskQueue
	}
	if cfg.RedisAddr != "" {
		rq, err := queue.NewRedisQueue(ctx, queue.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.ThumbnailQueue, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to redis")
		}
		defer rq.Close()
		publisher = rq
	} else {
		logger.Warn("REDIS_ADDR not set, queues are kept in memory")
		publisher = queue.NewMemoryQueue(cfg.ThumbnailQueue)
	}

	registry, err := newsletters.ByName(cfg.Handlers)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build newsletter handlers")
	}

	icons := &content.HTTPIconFetcher{Timeout: cfg.FetchTimeout}
	pipeline := library.NewPipeline(database, content.NewParser(icons, logger), publisher, logger)

	rt := router.New(router.Options{
		Registry:            registry,
		ConfirmationSenders: cfg.ConfirmationSenders,
		Store:               database,
		Saver:               pipeline,
		Publisher:           publisher,
		FallbackTopic:       cfg.FallbackTopic,
		Logger:              logger,
	})

	// Route .eml files dropped into the emails directory
	if _, err := os.Stat(cfg.EmailsPath); err == nil {
		result, err := backfill.New(database, rt, cfg.EmailsPath, logger).Run(ctx, nil)
		if err != nil {
			logger.WithError(err).Warn("Backfill failed")
		} else if result.Failed > 0 {
			logger.WithField("files", result.FailedFiles).Warn("Some emails could not be routed")
		}
	}

	// Read-later sync: import from Pocket first so the Readwise export
	// carries the imported items too
	if cfg.SyncEnabled() {
		var jobs []integrations.Job
		if cfg.PocketAccessToken != "" {
			jobs = append(jobs, integrations.Job{Client: integrations.NewPocketClient(cfg.PocketConsumerKey), Credential: cfg.PocketAccessToken})
		}
		if cfg.ReadwiseToken != "" {
			jobs = append(jobs, integrations.Job{Client: integrations.NewReadwiseClient(), Credential: cfg.ReadwiseToken, Export: true})
		}
		syncer := integrations.NewSyncer(database, pipeline, 100, logger)
		if err := syncer.RunJobs(ctx, cfg.SyncUserID, database, jobs); err != nil {
			logger.WithError(err).Warn("Read-later sync incomplete")
		}
	}

	h := handlers.New(rt, database, cfg.IngressBoundary, logger)

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      h.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("url", cfg.URL()).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}

	logger.Info("Server stopped")
}
