// Package static fetches server-rendered ticker pages over plain HTTP
// using a Colly collector. Sources that do not need a browser run
// through this path.
package static

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/basislager/tickerchronik/internal/ticker"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher implements ticker.Fetcher with the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a static fetcher with a pooled transport shared across
// fetches.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())

	return &Fetcher{cfg: cfg, baseCollector: c, logger: logger}
}

// Fetch executes a single GET against the source URL and returns the
// raw page body.
func (f *Fetcher) Fetch(ctx context.Context, src ticker.Source) (ticker.Snapshot, error) {
	var (
		snap     ticker.Snapshot
		fetchErr error
	)
	start := time.Now()

	collector := f.buildCollector(src, start, &snap, &fetchErr)
	if err := f.runCollector(ctx, collector, src.URL, &fetchErr); err != nil {
		return ticker.Snapshot{}, err
	}
	return snap, nil
}

func (f *Fetcher) buildCollector(src ticker.Source, start time.Time, snap *ticker.Snapshot, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.cfg.Timeout)

	f.configureCollectorHooks(collector, src, start, snap, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(collector *colly.Collector, src ticker.Source, start time.Time, snap *ticker.Snapshot, fetchErr *error) {
	collector.OnResponse(func(r *colly.Response) {
		*snap = ticker.Snapshot{
			Source:     src.Key,
			URL:        r.Request.URL.String(),
			Body:       append([]byte(nil), r.Body...),
			CapturedAt: time.Now().UTC(),
			Duration:   time.Since(start),
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		*fetchErr = classifyFetchError(status, err)
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			return ticker.Transient(fmt.Errorf("visit %s: %w", url, err))
		}
		return nil
	}
}

// classifyFetchError maps HTTP outcomes onto the pipeline taxonomy.
// Access denials are fatal; everything else at this layer is worth a
// retry.
func classifyFetchError(status int, err error) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ticker.ErrUnauthorized, status)
	case 0:
		return ticker.Transient(fmt.Errorf("fetch failed: %w", err))
	default:
		return ticker.Transient(fmt.Errorf("fetch failed with status %d: %w", status, err))
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
