// Package committer owns the transition from pending batch to durable
// corpus state. Each publish is a single atomic commit pushed with
// fast-forward semantics; contention with concurrent publishers is
// resolved by sync-and-retry, never by force.
package committer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/basislager/tickerchronik/internal/dedup"
	"github.com/basislager/tickerchronik/internal/metrics"
	"github.com/basislager/tickerchronik/internal/pipeline"
	"github.com/basislager/tickerchronik/internal/ticker"
)

// Config controls publish behavior.
type Config struct {
	// MaxAttempts bounds the sync-and-retry loop on push rejection.
	MaxAttempts int
	// Message is the commit message prefix; the batch summary follows.
	Message string
	// Metrics counts repeated publish attempts. Defaults to the
	// process-wide set.
	Metrics *metrics.Metrics
}

// Committer publishes pending batches into a corpus store.
type Committer struct {
	store   ticker.CorpusStore
	policy  ticker.RetryPolicy
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New constructs a Committer. The policy supplies backoff delays
// between conflict retries.
func New(store ticker.CorpusStore, policy ticker.RetryPolicy, cfg Config, logger *zap.Logger) *Committer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Message == "" {
		cfg.Message = "Append ticker records"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}
	return &Committer{
		store:   store,
		policy:  policy,
		cfg:     cfg,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// Publish writes the batch to the corpus exactly once. Records that
// became duplicates since staging are dropped silently; an all-dup
// batch publishes nothing and avoids a no-op commit. On any failure
// local staged state is discarded, leaving the remote untouched.
func (c *Committer) Publish(ctx context.Context, batch ticker.Batch) (ticker.PublishResult, error) {
	if batch.Empty() {
		return ticker.PublishResult{Outcome: ticker.OutcomePublished}, nil
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.policy.Backoff(attempt - 1)):
			case <-ctx.Done():
				return ticker.PublishResult{Outcome: ticker.OutcomeFailed}, ctx.Err()
			}
		}

		result, err := c.attempt(ctx, batch)
		if err == nil {
			return result, nil
		}
		if ticker.IsTransient(err) {
			lastErr = err
			c.metrics.ObservePublishRetry()
			if errors.Is(err, ticker.ErrRemoteMoved) {
				c.logger.Info("push rejected, remote moved; retrying",
					zap.String("source", batch.Source),
					zap.Int("attempt", attempt+1),
				)
			} else {
				c.logger.Warn("transient publish failure; retrying",
					zap.String("source", batch.Source),
					zap.Int("attempt", attempt+1),
					zap.Error(err),
				)
			}
			continue
		}
		c.discard(ctx)
		return ticker.PublishResult{Outcome: ticker.OutcomeFailed}, err
	}

	c.discard(ctx)
	outcome := ticker.OutcomeFailed
	if errors.Is(lastErr, ticker.ErrRemoteMoved) {
		outcome = ticker.OutcomeConflict
	}
	return ticker.PublishResult{Outcome: outcome},
		fmt.Errorf("publish not resolved after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

// attempt runs one full sync / re-filter / append / commit / push
// cycle. Transient failures from any step, ErrRemoteMoved included,
// are safe to retry because each attempt re-syncs and re-filters;
// everything else is terminal for the publish.
func (c *Committer) attempt(ctx context.Context, batch ticker.Batch) (ticker.PublishResult, error) {
	if err := c.store.Sync(ctx); err != nil {
		return ticker.PublishResult{}, fmt.Errorf("sync corpus: %w", err)
	}

	index, err := dedup.Load(ctx, c.store, batch.Source)
	if err != nil {
		return ticker.PublishResult{}, err
	}
	filtered := pipeline.Stage(batch.Source, batch.Records, index)
	if filtered.Empty() {
		head, headErr := c.store.Head(ctx)
		if headErr != nil {
			head = ""
		}
		c.logger.Info("all staged records already committed elsewhere",
			zap.String("source", batch.Source),
			zap.Int("dropped", len(batch.Records)),
		)
		return ticker.PublishResult{Outcome: ticker.OutcomePublished, Revision: head}, nil
	}

	if err := c.store.Append(ctx, filtered.Source, filtered.Records); err != nil {
		c.discard(ctx)
		return ticker.PublishResult{}, fmt.Errorf("append records: %w", err)
	}

	message := fmt.Sprintf("%s: %d new for %s", c.cfg.Message, len(filtered.Records), filtered.Source)
	revision, err := c.store.Commit(ctx, message)
	if err != nil {
		c.discard(ctx)
		return ticker.PublishResult{}, fmt.Errorf("commit records: %w", err)
	}

	if err := c.store.Push(ctx); err != nil {
		c.discard(ctx)
		return ticker.PublishResult{}, err
	}

	return ticker.PublishResult{
		Outcome:  ticker.OutcomePublished,
		Written:  len(filtered.Records),
		Revision: revision,
	}, nil
}

func (c *Committer) discard(ctx context.Context) {
	if err := c.store.Discard(ctx); err != nil {
		c.logger.Warn("discard local corpus state failed", zap.Error(err))
	}
}
