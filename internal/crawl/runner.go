// Package crawl orchestrates one full pipeline pass per source: fetch,
// extract, stage against the corpus head, publish, notify. Each run is
// independent; nothing is cached between runs.
package crawl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/basislager/tickerchronik/internal/dedup"
	"github.com/basislager/tickerchronik/internal/metrics"
	"github.com/basislager/tickerchronik/internal/pipeline"
	"github.com/basislager/tickerchronik/internal/retry"
	"github.com/basislager/tickerchronik/internal/ticker"
)

// Publisher is the committer surface the runner needs.
type Publisher interface {
	Publish(ctx context.Context, batch ticker.Batch) (ticker.PublishResult, error)
}

// Runner executes crawl runs.
type Runner struct {
	fetchers  map[ticker.SourceMode]ticker.Fetcher
	extractor ticker.Extractor
	store     ticker.CorpusStore
	publisher Publisher
	policy    ticker.RetryPolicy

	// Optional collaborators.
	notifier ticker.Notifier
	archive  ticker.BlobStore
	hasher   ticker.Hasher
	runTopic string

	metrics *metrics.Metrics
	clock   ticker.Clock
	idGen   ticker.IDGenerator
	logger  *zap.Logger
}

// Options configures optional runner collaborators.
type Options struct {
	// Notifier receives a RunReport on the RunTopic after each run.
	Notifier ticker.Notifier
	RunTopic string
	// Archive receives the raw snapshot of each run for debugging.
	Archive ticker.BlobStore
	// Hasher digests archived snapshots so identical captures are
	// recognizable in the logs.
	Hasher  ticker.Hasher
	Metrics *metrics.Metrics
	Clock   ticker.Clock
	IDGen   ticker.IDGenerator
	Logger  *zap.Logger
}

// NewRunner wires a runner. fetchers maps each source mode to its
// fetch strategy.
func NewRunner(
	fetchers map[ticker.SourceMode]ticker.Fetcher,
	extractor ticker.Extractor,
	store ticker.CorpusStore,
	publisher Publisher,
	policy ticker.RetryPolicy,
	opts Options,
) *Runner {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Runner{
		fetchers:  fetchers,
		extractor: extractor,
		store:     store,
		publisher: publisher,
		policy:    policy,
		notifier:  opts.Notifier,
		archive:   opts.Archive,
		hasher:    opts.Hasher,
		runTopic:  opts.RunTopic,
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		idGen:     opts.IDGen,
		logger:    opts.Logger,
	}
}

// Run executes one crawl pass for the source. The returned report is
// valid even when err is non-nil; its Outcome then explains how far the
// run got.
func (r *Runner) Run(ctx context.Context, src ticker.Source) (ticker.RunReport, error) {
	start := r.now()
	report := ticker.RunReport{Source: src.Key, Outcome: ticker.OutcomeFailed}
	if id, err := r.newRunID(); err == nil {
		report.RunID = id
	}

	logger := r.logger.With(zap.String("source", src.Key), zap.String("run_id", report.RunID))

	snap, err := r.fetch(ctx, src)
	if err != nil {
		return r.finish(ctx, report, start, fmt.Errorf("fetch %s: %w", src.Key, err))
	}
	r.metrics.ObserveFetch(src.Key, snap.Duration)
	r.archiveSnapshot(ctx, src, report.RunID, snap)

	candidates, skipped, err := r.extractor.Extract(snap, src)
	if err != nil {
		return r.finish(ctx, report, start, fmt.Errorf("extract %s: %w", src.Key, err))
	}
	report.Candidates = len(candidates)
	report.Warnings = skipped
	r.metrics.ObserveSkipped(src.Key, skipped)

	// Observe timestamps are assigned here so that the whole batch
	// shares one observation instant.
	observed := r.now()
	for i := range candidates {
		if candidates[i].ObservedAt.IsZero() {
			candidates[i].ObservedAt = observed
		}
	}

	batch, err := r.stage(ctx, src, candidates)
	if err != nil {
		return r.finish(ctx, report, start, fmt.Errorf("stage %s: %w", src.Key, err))
	}
	report.Staged = len(batch.Records)

	result, err := r.publisher.Publish(ctx, batch)
	report.Outcome = result.Outcome
	report.Written = result.Written
	report.Revision = result.Revision
	if err != nil {
		return r.finish(ctx, report, start, fmt.Errorf("publish %s: %w", src.Key, err))
	}
	r.metrics.ObserveCommitted(src.Key, result.Written)

	logger.Info("run completed",
		zap.Int("candidates", report.Candidates),
		zap.Int("staged", report.Staged),
		zap.Int("written", report.Written),
		zap.String("revision", report.Revision),
	)
	return r.finish(ctx, report, start, nil)
}

// fetch retries transient failures per the retry policy. Fatal errors
// such as a browser that cannot start abort immediately.
func (r *Runner) fetch(ctx context.Context, src ticker.Source) (ticker.Snapshot, error) {
	fetcher, ok := r.fetchers[src.Mode]
	if !ok {
		return ticker.Snapshot{}, fmt.Errorf("no fetcher registered for mode %q", src.Mode)
	}

	var snap ticker.Snapshot
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		var fetchErr error
		snap, fetchErr = fetcher.Fetch(ctx, src)
		return fetchErr
	})
	return snap, err
}

// stage syncs the corpus and filters the candidates against its head.
// The committer re-filters on publish; this pass exists so the report
// reflects what this run actually contributed.
func (r *Runner) stage(ctx context.Context, src ticker.Source, candidates []ticker.Record) (ticker.Batch, error) {
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		return r.store.Sync(ctx)
	})
	if err != nil {
		return ticker.Batch{}, fmt.Errorf("sync corpus: %w", err)
	}

	index, err := dedup.Load(ctx, r.store, src.Key)
	if err != nil {
		return ticker.Batch{}, err
	}
	return pipeline.Stage(src.Key, candidates, index), nil
}

func (r *Runner) archiveSnapshot(ctx context.Context, src ticker.Source, runID string, snap ticker.Snapshot) {
	if r.archive == nil {
		return
	}

	var (
		path        string
		contentType string
		data        []byte
	)
	if len(snap.Pages) > 0 {
		path = fmt.Sprintf("snapshots/%s/%s.ndjson", src.Key, runID)
		contentType = "application/x-ndjson"
		for _, page := range snap.Pages {
			data = append(data, page...)
			data = append(data, '\n')
		}
	} else {
		path = fmt.Sprintf("snapshots/%s/%s.html", src.Key, runID)
		contentType = "text/html; charset=utf-8"
		data = snap.Body
	}

	uri, err := r.archive.PutObject(ctx, path, contentType, data)
	if err != nil {
		r.logger.Warn("snapshot archive failed", zap.String("source", src.Key), zap.Error(err))
		return
	}

	fields := []zap.Field{zap.String("uri", uri)}
	if r.hasher != nil {
		if digest, hashErr := r.hasher.Hash(data); hashErr == nil {
			fields = append(fields, zap.String("digest", digest))
		}
	}
	r.logger.Debug("snapshot archived", fields...)
}

// finish closes out the report, records metrics and notifies
// downstream consumers.
func (r *Runner) finish(ctx context.Context, report ticker.RunReport, start time.Time, err error) (ticker.RunReport, error) {
	report.Duration = r.now().Sub(start)
	r.metrics.ObserveRun(report.Source, string(report.Outcome))

	if err != nil {
		r.logger.Error("run failed",
			zap.String("source", report.Source),
			zap.String("run_id", report.RunID),
			zap.String("outcome", string(report.Outcome)),
			zap.Error(err),
		)
	}

	if r.notifier != nil && r.runTopic != "" {
		if _, pubErr := r.notifier.Publish(ctx, r.runTopic, report); pubErr != nil {
			r.logger.Warn("run notification failed", zap.Error(pubErr))
		}
	}
	return report, err
}

func (r *Runner) now() time.Time {
	if r.clock != nil {
		return r.clock.Now()
	}
	return time.Now().UTC()
}

func (r *Runner) newRunID() (string, error) {
	if r.idGen == nil {
		return "", fmt.Errorf("no id generator configured")
	}
	return r.idGen.NewID()
}
