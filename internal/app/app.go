// Package app initializes and holds long-lived client services, acting as a
// dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	gcsstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/mediavid-client/internal/activity"
	"github.com/JakeFAU/mediavid-client/internal/activity/sinks"
	"github.com/JakeFAU/mediavid-client/internal/config"
	"github.com/JakeFAU/mediavid-client/internal/id/uuid"
	"github.com/JakeFAU/mediavid-client/internal/jobapi"
	"github.com/JakeFAU/mediavid-client/internal/logging"
	"github.com/JakeFAU/mediavid-client/internal/media"
	"github.com/JakeFAU/mediavid-client/internal/notify"
	notifypubsub "github.com/JakeFAU/mediavid-client/internal/notify/pubsub"
	"github.com/JakeFAU/mediavid-client/internal/storage/gcs"
	"github.com/JakeFAU/mediavid-client/internal/storage/local"
	"github.com/JakeFAU/mediavid-client/internal/storage/memory"
	"github.com/JakeFAU/mediavid-client/internal/storage/postgres"
	"github.com/JakeFAU/mediavid-client/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Options tweak how New wires process-level resources.
type Options struct {
	// Out receives console notifications. Defaults to os.Stdout.
	Out io.Writer
	// Registerer receives the activity collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Logger overrides the logger built from the logging section.
	Logger *zap.Logger
}

// App holds the shared services for one CLI invocation. It is built once in
// the root command's pre-run hook and closed in the post-run hook.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	client    *jobapi.Client
	ids       *uuid.Generator
	blobs     media.BlobStore
	history   store.HistoryRepository
	recorder  *notify.Recorder
	notifier  media.Notifier
	hub       *activity.Hub
	forwarder *notifypubsub.Forwarder

	closers []func(context.Context) error
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config { return a.cfg }

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger { return a.logger }

// GetClient returns the backend job API client.
func (a *App) GetClient() *jobapi.Client { return a.client }

// GetIDs returns the session token generator.
func (a *App) GetIDs() media.IDGenerator { return a.ids }

// GetBlobStore returns the configured download destination.
func (a *App) GetBlobStore() media.BlobStore { return a.blobs }

// GetHistory returns the download history. Without a DSN it is an in-process
// store that only lives as long as the App.
func (a *App) GetHistory() store.HistoryRepository { return a.history }

// HistoryPersistent reports whether GetHistory is backed by Postgres.
func (a *App) HistoryPersistent() bool { return a.cfg.DB.DSN != "" }

// GetNotifier returns the fan-out notifier used by every component.
func (a *App) GetNotifier() media.Notifier { return a.notifier }

// GetRecorder returns the ring of recent notifications.
func (a *App) GetRecorder() *notify.Recorder { return a.recorder }

// GetHub returns the activity hub.
func (a *App) GetHub() *activity.Hub { return a.hub }

// New builds every service from cfg. It fails fast; resources opened before
// the failure are released.
func New(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}

	logger := opts.Logger
	if logger == nil {
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}

	a := &App{cfg: cfg, logger: logger, ids: uuid.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.client, err = jobapi.New(jobapi.Config{
		BaseURL:        cfg.Backend.BaseURL,
		APIPrefix:      cfg.Backend.APIPrefix,
		ProgressPrefix: cfg.Backend.ProgressPrefix,
		HealthPath:     cfg.Backend.HealthPath,
		Timeout:        cfg.Backend.Timeout,
		UserAgent:      cfg.Backend.UserAgent,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init backend client: %w", err)
	}

	if a.blobs, err = a.openBlobStore(ctx); err != nil {
		return nil, err
	}
	if a.history, err = a.openHistory(ctx); err != nil {
		return nil, err
	}
	if err = a.openForwarder(ctx); err != nil {
		return nil, err
	}

	a.recorder = notify.NewRecorder(cfg.Server.RecentNotifications)
	targets := notify.Multi{notify.NewConsole(opts.Out), notify.NewLog(logger), a.recorder}
	if a.forwarder != nil {
		targets = append(targets, a.forwarder)
	}
	a.notifier = targets

	promSink, err := sinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("init activity metrics: %w", err)
	}
	a.hub = activity.NewHub(activity.Config{Logger: logger},
		sinks.NewLogSink(logger),
		promSink,
		sinks.NewStoreSink(a.history, logger),
	)

	logger.Debug("application services initialized",
		zap.String("backend", a.client.BaseURL()),
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("history_persistent", a.HistoryPersistent()),
		zap.Bool("pubsub", cfg.PubSub.Enabled()),
	)
	return a, nil
}

func (a *App) openBlobStore(ctx context.Context) (media.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		bs, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.GCSPrefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs store: %w", err)
		}
		return bs, nil
	case config.StorageMemory:
		return memory.NewBlobStore(), nil
	default:
		bs, err := local.New(local.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local store: %w", err)
		}
		return bs, nil
	}
}

func (a *App) openHistory(ctx context.Context) (store.HistoryRepository, error) {
	if a.cfg.DB.DSN == "" {
		return memory.NewHistoryStore(), nil
	}
	hs, err := postgres.NewHistoryStore(ctx, postgres.HistoryStoreConfig{
		DSN:             a.cfg.DB.DSN,
		Table:           a.cfg.DB.Table,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("init history store: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		hs.Close()
		return nil
	})
	if a.cfg.DB.AutoMigrate {
		if err := hs.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("migrate history store: %w", err)
		}
	}
	return hs, nil
}

func (a *App) openForwarder(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled() {
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub client: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	fwd, err := notifypubsub.New(client.Topic(a.cfg.PubSub.TopicName), a.logger)
	if err != nil {
		return fmt.Errorf("init notification forwarder: %w", err)
	}
	a.forwarder = fwd
	return nil
}

// Close flushes the activity hub and pending notifications, then releases
// clients in reverse order of creation. It is safe to call on a partially
// built App.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("error closing activity hub", zap.Error(err))
	}
	if a.forwarder != nil {
		if err := a.forwarder.Close(ctx); err != nil {
			a.logger.Warn("error flushing notifications", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("error closing client", zap.Error(err))
		}
	}
	a.closers = nil
	// Sync fails on non-syncable stderr on some platforms; nothing to do about it.
	_ = a.logger.Sync()
}
