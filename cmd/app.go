package cmd

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/basislager/tickerchronik/internal/clock/system"
	"github.com/basislager/tickerchronik/internal/committer"
	"github.com/basislager/tickerchronik/internal/config"
	corpusgit "github.com/basislager/tickerchronik/internal/corpus/git"
	"github.com/basislager/tickerchronik/internal/crawl"
	"github.com/basislager/tickerchronik/internal/extract"
	"github.com/basislager/tickerchronik/internal/feed"
	"github.com/basislager/tickerchronik/internal/fetcher/headless"
	"github.com/basislager/tickerchronik/internal/fetcher/static"
	"github.com/basislager/tickerchronik/internal/hash/sha256"
	"github.com/basislager/tickerchronik/internal/id/uuid"
	"github.com/basislager/tickerchronik/internal/logging"
	notifypubsub "github.com/basislager/tickerchronik/internal/notify/pubsub"
	"github.com/basislager/tickerchronik/internal/retry"
	"github.com/basislager/tickerchronik/internal/storage/gcs"
	"github.com/basislager/tickerchronik/internal/storage/local"
	"github.com/basislager/tickerchronik/internal/storage/memory"
	"github.com/basislager/tickerchronik/internal/ticker"
)

// app bundles the wired pipeline for the commands.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	store    *corpusgit.Store
	runner   *crawl.Runner
	notifier ticker.Notifier
	blobs    ticker.BlobStore

	closers []func() error
}

// buildApp constructs the full pipeline from configuration.
func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, err := corpusgit.NewStore(cfg.Corpus, logging.Component(logger, "corpus"))
	if err != nil {
		return nil, fmt.Errorf("init corpus store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	if err := a.buildBlobStore(ctx); err != nil {
		return nil, err
	}
	if err := a.buildNotifier(ctx); err != nil {
		return nil, err
	}

	browser := headless.New(headless.Config{
		UserAgent:         cfg.Crawl.UserAgent,
		NavigationTimeout: cfg.Crawl.FetchTimeout,
	}, logging.Component(logger, "headless"))

	fetchers := map[ticker.SourceMode]ticker.Fetcher{
		ticker.ModeRendered: browser,
		ticker.ModeStatic: static.New(static.Config{
			UserAgent: cfg.Crawl.UserAgent,
			Timeout:   cfg.Crawl.FetchTimeout,
		}, logging.Component(logger, "static")),
		ticker.ModeAPI: feed.New(feed.Config{
			UserAgent:         cfg.Crawl.UserAgent,
			Timeout:           cfg.Crawl.FetchTimeout,
			RequestsPerSecond: cfg.Crawl.RequestsPerSecond,
		}, browser, logging.Component(logger, "feed")),
	}

	policy := retry.NewPolicy(cfg.Crawl.FetchRetries, 500*time.Millisecond, 30*time.Second)
	publisher := committer.New(store, policy, committer.Config{
		MaxAttempts: cfg.Crawl.PublishAttempts,
		Message:     cfg.Crawl.CommitMessagePrefix,
	}, logging.Component(logger, "committer"))

	opts := crawl.Options{
		Notifier: a.notifier,
		RunTopic: cfg.PubSub.RunTopic,
		Clock:    system.New(),
		IDGen:    uuid.New(),
		Logger:   logging.Component(logger, "crawl"),
	}
	if cfg.Crawl.ArchiveSnapshots {
		opts.Archive = a.blobs
		opts.Hasher = sha256.New()
	}
	a.runner = crawl.NewRunner(fetchers, extract.New(logging.Component(logger, "extract")), store, publisher, policy, opts)

	return a, nil
}

func (a *app) buildBlobStore(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case "gcs":
		client, err := cloudstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return fmt.Errorf("init gcs blob store: %w", err)
		}
		a.blobs = store
	case "local":
		store, err := local.New(a.cfg.Storage.Local)
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
		a.blobs = store
	default:
		a.blobs = memory.NewBlobStore()
	}
	return nil
}

func (a *app) buildNotifier(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled {
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub client: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	a.notifier = notifypubsub.New(client)
	return nil
}

func (a *app) Close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Warn("close client failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		// Sync on stderr commonly fails on Linux; nothing to do.
		_ = err
	}
}
