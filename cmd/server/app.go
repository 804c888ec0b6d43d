package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/classifier-api/internal/blob"
	"github.com/phrazzld/classifier-api/internal/classify"
	"github.com/phrazzld/classifier-api/internal/config"
	"github.com/phrazzld/classifier-api/internal/domain"
	"github.com/phrazzld/classifier-api/internal/extract"
	"github.com/phrazzld/classifier-api/internal/job"
	"github.com/phrazzld/classifier-api/internal/platform/crm"
	"github.com/phrazzld/classifier-api/internal/platform/gemini"
	"github.com/phrazzld/classifier-api/internal/platform/postgres"
	"github.com/phrazzld/classifier-api/internal/service"
	"github.com/phrazzld/classifier-api/internal/service/auth"
	"github.com/phrazzld/classifier-api/internal/store"
	"github.com/phrazzld/classifier-api/internal/tagcache"
	"github.com/phrazzld/classifier-api/internal/tagsync"
)

// application holds the server's wired dependencies.
type application struct {
	config *config.Config
	logger *slog.Logger

	db        *sql.DB
	jobs      store.JobStore
	snapshots *postgres.PostgresSnapshotStore
	blobs     blob.Store
	cache     *tagcache.Service
	keys      *auth.KeySet

	queue      *job.Queue
	dispatcher *job.Dispatcher

	classificationService service.ClassificationService
	syncService           service.SyncService
}

// newApplication wires every component from configuration. Nothing is
// started yet; run owns the process lifecycle.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := openDatabase(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	jobs := postgres.NewPostgresJobStore(db, logger)
	snapshots := postgres.NewPostgresSnapshotStore(db, logger)

	blobs, err := blob.NewMinioStore(ctx, blob.MinioConfig{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	grace := time.Duration(cfg.Sync.GraceWindowMinutes) * time.Minute
	cache := tagcache.NewService(grace, logger)
	warmCache(ctx, cache, snapshots, logger)

	keys, err := auth.NewKeySetFromFile(cfg.Auth.KeysFile, nil, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load API keys: %w", err)
	}

	source, err := crm.NewSource(crm.Config{
		BaseURL:  cfg.Sync.CRMBaseURL,
		PageSize: cfg.Sync.PageSize,
		Token: crm.TokenConfig{
			TokenURL:     cfg.Sync.CRMTokenURL,
			ClientID:     cfg.Sync.CRMClientID,
			ClientSecret: cfg.Sync.CRMClientSecret,
			RefreshToken: cfg.Sync.CRMRefreshToken,
		},
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize CRM source: %w", err)
	}

	engineConfig := tagsync.DefaultConfig()
	engineConfig.MaxPages = cfg.Sync.MaxPages
	engine := tagsync.NewEngine(source, cache, snapshots, engineConfig, logger)

	syncService, err := service.NewSyncService(engine, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	classifier, err := gemini.NewGeminiClassifier(ctx, logger, cfg.LLM)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}

	validator := classify.NewValidator(logger)
	extractor := extract.NewTextExtractor()

	queue := job.NewQueue(cfg.Jobs.QueueSize)
	worker := job.NewWorker(jobs, blobs, extractor, classifier, validator, cache, logger)
	dispatcher := job.NewDispatcher(queue, worker, jobs, job.DispatcherConfig{
		WorkerCount:    cfg.Jobs.WorkerCount,
		MaxAttempts:    cfg.Jobs.MaxAttempts,
		RetryBaseDelay: time.Duration(cfg.Jobs.RetryBaseDelaySeconds) * time.Second,
		RetryMaxDelay:  time.Duration(cfg.Jobs.RetryMaxDelaySeconds) * time.Second,
	}, logger)

	classificationService, err := service.NewClassificationService(
		jobs,
		blobs,
		queue,
		extractor,
		classifier,
		validator,
		cache,
		service.ClassificationConfig{
			MaxSyncBytes:  cfg.Jobs.MaxSyncBytes,
			MaxAsyncBytes: cfg.Jobs.MaxAsyncBytes,
			JobTTL:        time.Duration(cfg.Jobs.TTLHours) * time.Hour,
		},
		logger,
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &application{
		config:                cfg,
		logger:                logger,
		db:                    db,
		jobs:                  jobs,
		snapshots:             snapshots,
		blobs:                 blobs,
		cache:                 cache,
		keys:                  keys,
		queue:                 queue,
		dispatcher:            dispatcher,
		classificationService: classificationService,
		syncService:           syncService,
	}, nil
}

// run starts the background loops and the HTTP server, then blocks
// until ctx is canceled, shutting everything down in order.
func (app *application) run(ctx context.Context) error {
	app.dispatcher.Start()

	if err := app.recoverUnfinishedJobs(ctx); err != nil {
		app.logger.Error("failed to recover unfinished jobs", "error", err)
	}

	refreshInterval := time.Duration(app.config.Auth.RefreshIntervalSeconds) * time.Second
	if refreshInterval > 0 {
		go app.keys.RefreshEvery(ctx, refreshInterval)
	}

	go app.runSyncScheduler(ctx)
	go app.runJanitor(ctx)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.setupRouter(),
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		app.logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
	}

	app.dispatcher.Stop()
	app.logger.Info("server shutdown completed")
	return nil
}

// cleanup releases resources held by the application.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database", "error", err)
		}
	}
}

// recoverUnfinishedJobs re-enqueues work the previous process left
// behind. Processing jobs are demoted to pending first; their worker
// is gone and no one else holds the lease.
func (app *application) recoverUnfinishedJobs(ctx context.Context) error {
	unfinished, err := app.jobs.ListUnfinished(ctx)
	if err != nil {
		return err
	}

	recovered := 0
	for _, j := range unfinished {
		if j.Status == domain.JobStatusProcessing {
			if _, err := app.jobs.Transition(ctx, j.ID,
				domain.JobStatusProcessing, domain.JobStatusPending, store.TransitionPatch{}); err != nil {
				app.logger.Warn("failed to demote orphaned processing job",
					"job_id", j.ID, "error", err)
				continue
			}
		}
		if err := app.queue.Enqueue(job.Message{JobID: j.ID}); err != nil {
			app.logger.Warn("failed to re-enqueue recovered job",
				"job_id", j.ID, "error", err)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		app.logger.Info("recovered unfinished jobs", "count", recovered)
	}
	return nil
}

// runSyncScheduler syncs the tag catalog immediately when the cache is
// cold, then on the configured interval.
func (app *application) runSyncScheduler(ctx context.Context) {
	if !app.cache.Ready() {
		app.syncOnce(ctx)
	}

	interval := time.Duration(app.config.Sync.IntervalMinutes) * time.Minute
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			app.syncOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (app *application) syncOnce(ctx context.Context) {
	result, err := app.syncService.SyncNow(ctx)
	if err != nil {
		if !errors.Is(err, service.ErrSyncInProgress) {
			app.logger.Error("scheduled tag sync failed", "error", err)
		}
		return
	}
	app.logger.Info("scheduled tag sync completed", "tags_count", result.TagsCount)
}

// runJanitor periodically removes expired jobs and their document
// blobs.
func (app *application) runJanitor(ctx context.Context) {
	interval := time.Duration(app.config.Jobs.JanitorIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			app.sweepExpired(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (app *application) sweepExpired(ctx context.Context) {
	expired, err := app.jobs.Expire(ctx, time.Now().UTC())
	if err != nil {
		app.logger.Error("failed to expire jobs", "error", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	for _, j := range expired {
		if err := app.blobs.Delete(ctx, j.Document.StorageKey); err != nil {
			app.logger.Warn("failed to delete blob for expired job",
				"job_id", j.ID, "storage_key", j.Document.StorageKey, "error", err)
		}
	}
	app.logger.Info("expired jobs swept", "count", len(expired))
}

// warmCache publishes the most recent persisted snapshot so the server
// can classify before the first CRM sync completes.
func warmCache(ctx context.Context, cache *tagcache.Service, snapshots *postgres.PostgresSnapshotStore, logger *slog.Logger) {
	snap, err := snapshots.Latest(ctx)
	if err != nil {
		if errors.Is(err, store.ErrSnapshotNotFound) {
			logger.Info("no persisted tag snapshot, waiting for first sync")
		} else {
			logger.Warn("failed to load persisted tag snapshot", "error", err)
		}
		return
	}
	cache.Publish(snap)
	logger.Info("tag cache warmed from persisted snapshot",
		"tags_count", snap.Count(), "synced_at", snap.SyncedAt())
}
