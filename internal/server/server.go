// Package server builds the coordinator's dependencies from configuration
// and runs the HTTP server with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-coordinator/internal/api"
	"github.com/JakeFAU/crawl-coordinator/internal/clock/system"
	"github.com/JakeFAU/crawl-coordinator/internal/config"
	"github.com/JakeFAU/crawl-coordinator/internal/coordinator"
	"github.com/JakeFAU/crawl-coordinator/internal/id/uuid"
	"github.com/JakeFAU/crawl-coordinator/internal/logging"
	"github.com/JakeFAU/crawl-coordinator/internal/metrics"
	pubsubpublisher "github.com/JakeFAU/crawl-coordinator/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/crawl-coordinator/internal/storage/gcs"
	localstorage "github.com/JakeFAU/crawl-coordinator/internal/storage/local"
	memorystorage "github.com/JakeFAU/crawl-coordinator/internal/storage/memory"
	pgstorage "github.com/JakeFAU/crawl-coordinator/internal/storage/postgres"
	redisstorage "github.com/JakeFAU/crawl-coordinator/internal/storage/redis"
)

// App contains the coordinator's long-lived dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	coord  *coordinator.Coordinator
	server *api.Server

	redisSnapshots  *redisstorage.SnapshotStore
	pgPages         *pgstorage.PageStore
	gcsClient       *gstorage.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsubpublisher.Publisher
}

// Build creates the application's dependencies. It fails fast when any
// configured backend cannot be reached.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}

	var snapshots coordinator.SnapshotStore
	switch cfg.Snapshots.Provider {
	case "redis":
		store, err := redisstorage.New(ctx, redisstorage.Config{
			Addr:     cfg.Snapshots.Redis.Addr,
			Password: cfg.Snapshots.Redis.Password,
			DB:       cfg.Snapshots.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("redis snapshot store init failed: %w", err)
		}
		logger.Info("using redis snapshot store", zap.String("addr", cfg.Snapshots.Redis.Addr))
		app.redisSnapshots = store
		snapshots = store
	default:
		logger.Info("using in-memory snapshot store; state will not survive restarts")
		snapshots = memorystorage.NewSnapshotStore()
	}

	var pages coordinator.PageStore
	switch cfg.Pages.Provider {
	case "postgres":
		store, err := pgstorage.NewPageStore(ctx, pgstorage.PageStoreConfig{
			DSN:             cfg.Pages.DB.DSN,
			Table:           cfg.Pages.DB.Table,
			MaxConns:        int32(cfg.Pages.DB.MaxConns),
			MinConns:        int32(cfg.Pages.DB.MinConns),
			MaxConnLifetime: time.Duration(cfg.Pages.DB.MaxConnLifeMins) * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres page store init failed: %w", err)
		}
		logger.Info("using postgres page store", zap.String("table", cfg.Pages.DB.Table))
		app.pgPages = store
		pages = store
	case "none":
		logger.Info("page metadata store disabled")
	default:
		pages = memorystorage.NewPageStore()
	}

	var blobs coordinator.BlobStore
	switch cfg.Blobs.Provider {
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.gcsClient = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Blobs.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		logger.Info("using gcs blob store", zap.String("bucket", cfg.Blobs.GCSBucket))
		blobs = store
	case "local":
		store, err := localstorage.New(cfg.Blobs.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		logger.Info("using local blob store", zap.String("dir", cfg.Blobs.LocalDir))
		blobs = store
	case "none":
		logger.Info("content storage disabled")
	default:
		blobs = memorystorage.NewBlobStore()
	}

	var publisher coordinator.Publisher
	if cfg.PubSub.Enabled {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.pubsubClient = client
		pub, err := pubsubpublisher.New(client)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		logger.Info("publishing events to pubsub", zap.String("project", cfg.PubSub.ProjectID))
		app.pubsubPublisher = pub
		publisher = pub
	}

	app.coord = coordinator.New(snapshots, pages, publisher, system.New(), uuid.NewUUIDGenerator(), logger)
	app.server = api.NewServer(app.coord, blobs, logger, cfg)
	return app, nil
}

// Run starts the HTTP server and the maintenance ticker and blocks until
// the context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.maintenanceLoop(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(a.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.Server.WriteTimeoutSec) * time.Second,
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close()
}

// maintenanceLoop runs the periodic sweep for every run the coordinator
// has touched, plus the default run.
func (a *App) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.MaintenanceInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runIDs := a.coord.RunIDs()
			seen := false
			for _, runID := range runIDs {
				if runID == api.DefaultRunID {
					seen = true
				}
			}
			if !seen {
				runIDs = append(runIDs, api.DefaultRunID)
			}
			for _, runID := range runIDs {
				if _, err := a.coord.Maintain(ctx, runID); err != nil {
					a.logger.Warn("maintenance sweep failed", zap.String("run", runID), zap.Error(err))
				}
			}
		}
	}
}

// Close releases external connections.
func (a *App) Close() error {
	if a.pubsubPublisher != nil {
		if err := a.pubsubPublisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	} else if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgPages != nil {
		a.pgPages.Close()
	}
	if a.redisSnapshots != nil {
		if err := a.redisSnapshots.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
	return nil
}
