// Package app assembles the service from configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/alpinisme/formation-sync/internal/api"
	"github.com/alpinisme/formation-sync/internal/clock/system"
	"github.com/alpinisme/formation-sync/internal/config"
	"github.com/alpinisme/formation-sync/internal/course"
	"github.com/alpinisme/formation-sync/internal/extract"
	"github.com/alpinisme/formation-sync/internal/healthcheck"
	"github.com/alpinisme/formation-sync/internal/mailer"
	"github.com/alpinisme/formation-sync/internal/metrics"
	"github.com/alpinisme/formation-sync/internal/notify"
	"github.com/alpinisme/formation-sync/internal/ratelimit"
	"github.com/alpinisme/formation-sync/internal/scheduler"
	"github.com/alpinisme/formation-sync/internal/snapshot"
	"github.com/alpinisme/formation-sync/internal/storage/postgres"
	"github.com/alpinisme/formation-sync/internal/syncer"
)

// App holds the wired application graph.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	pool      *pgxpool.Pool
	gcsClient *storage.Client
	limiter   *ratelimit.Limiter
	scheduler *scheduler.Scheduler
	server    *api.Server

	Syncer     *syncer.Syncer
	Dispatcher Dispatcher
}

// Dispatcher triggers one notification pass.
type Dispatcher interface {
	DispatchToday(ctx context.Context) (course.NotificationResult, error)
}

// New builds the full dependency graph from configuration.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	courseStore, err := postgres.NewCourseStore(pool)
	if err != nil {
		return nil, err
	}
	prefStore, err := postgres.NewPreferenceStore(pool)
	if err != nil {
		return nil, err
	}

	extractor, err := extract.New(extract.FetcherConfig{
		URL:       cfg.Source.URL,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.SourceTimeout(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build extractor: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, pool: pool}

	archiver, err := a.buildArchiver(ctx)
	if err != nil {
		return nil, err
	}

	clk := system.New()
	pinger := healthcheck.New(cfg.Healthcheck.URL, cfg.HealthcheckTimeout(), logger)

	a.Syncer = syncer.New(extractor, courseStore, archiver, pinger, clk,
		syncer.Config{ChunkSize: cfg.Sync.ChunkSize}, logger)

	if cfg.Notify.Enabled {
		smtp := mailer.New(mailer.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.Notify.From,
		}, logger)
		processor := notify.NewProcessor(prefStore, logger)
		notifier := notify.NewNotifier(smtp, prefStore, cfg.Notify.Subject, logger)
		a.Dispatcher = notify.NewService(courseStore, processor, notifier, clk, logger)
	} else {
		a.Dispatcher = disabledDispatcher{logger: logger}
	}

	a.limiter = ratelimit.New(cfg.RateLimit.Limit, cfg.RateLimitWindow(),
		time.Duration(cfg.RateLimit.SweepSeconds)*time.Second)
	a.server = api.NewServer(a.Syncer, a.Dispatcher, courseStore, a.limiter, logger)

	if cfg.Scheduler.Enabled {
		a.scheduler = scheduler.New(cfg.Scheduler.Cron, a.scheduledRun, logger)
	}

	return a, nil
}

func (a *App) buildArchiver(ctx context.Context) (course.Archiver, error) {
	switch a.cfg.Snapshot.Provider {
	case "local":
		store, err := snapshot.NewLocalStore(a.cfg.Snapshot.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("local snapshot store: %w", err)
		}
		return snapshot.NewArchiver(store, a.cfg.Snapshot.Prefix, a.logger), nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		a.gcsClient = client
		store, err := snapshot.NewGCSStore(client, a.cfg.Snapshot.GCSBucket)
		if err != nil {
			return nil, err
		}
		return snapshot.NewArchiver(store, a.cfg.Snapshot.Prefix, a.logger), nil
	default:
		return snapshot.Noop{}, nil
	}
}

// scheduledRun is the cron job body: one sync followed by one
// notification pass.
func (a *App) scheduledRun(ctx context.Context) {
	if _, err := a.Syncer.Run(ctx); err != nil {
		a.logger.Error("scheduled sync failed", zap.Error(err))
		return
	}
	if _, err := a.Dispatcher.DispatchToday(ctx); err != nil {
		a.logger.Error("scheduled notification dispatch failed", zap.Error(err))
	}
}

// Run starts the HTTP server and optional scheduler, blocking until the
// context is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.limiter.Start()
	if a.scheduler != nil {
		if err := a.scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close()
	return nil
}

// Close releases held resources. Safe to call after a failed Run.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	a.logger.Info("shutdown complete")
}

type disabledDispatcher struct {
	logger *zap.Logger
}

func (d disabledDispatcher) DispatchToday(context.Context) (course.NotificationResult, error) {
	d.logger.Info("notifications disabled, dispatch skipped")
	return course.NotificationResult{}, nil
}
