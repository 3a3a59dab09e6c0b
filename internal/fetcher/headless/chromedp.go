// Package headless captures snapshots with a headless browser. Every
// call runs in its own disposable browser session that is torn down on
// all exit paths; nothing leaks between runs.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/basislager/tickerchronik/internal/ticker"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// ConsentTimeout bounds the consent-dialog interaction.
	ConsentTimeout time.Duration
}

// Fetcher implements ticker.Fetcher with chromedp and headless Chrome.
type Fetcher struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a headless fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.ConsentTimeout <= 0 {
		cfg.ConsentTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, logger: logger}
}

// Fetch renders the source page and returns the settled DOM.
func (f *Fetcher) Fetch(ctx context.Context, src ticker.Source) (ticker.Snapshot, error) {
	taskCtx, cancel, err := f.newSession(ctx)
	if err != nil {
		return ticker.Snapshot{}, err
	}
	defer cancel()

	runCtx, runCancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer runCancel()

	wait := src.WaitSelector
	if wait == "" {
		wait = "body"
	}
	settle := src.SettleDelay
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}

	var html string
	start := time.Now()
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(src.URL),
		chromedp.WaitReady(wait, chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return ticker.Snapshot{}, classifyRunError(err, "render")
	}

	return ticker.Snapshot{
		Source:     src.Key,
		URL:        src.URL,
		Body:       []byte(html),
		CapturedAt: time.Now().UTC(),
		Duration:   time.Since(start),
	}, nil
}

// Cookies visits the source's consent page, accepts the dialog when a
// button selector is configured, and exports the session cookies for
// the API client. Used by API-mode sources whose feed sits behind a
// consent wall.
func (f *Fetcher) Cookies(ctx context.Context, src ticker.Source) ([]*http.Cookie, error) {
	taskCtx, cancel, err := f.newSession(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	runCtx, runCancel := context.WithTimeout(taskCtx, f.cfg.ConsentTimeout)
	defer runCancel()

	target := src.API.ConsentURL
	if target == "" {
		target = src.URL
	}

	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if src.API.ConsentButton != "" {
		actions = append(actions,
			chromedp.Click(src.API.ConsentButton, chromedp.ByQuery),
			chromedp.Sleep(time.Second),
		)
	}

	var cookies []*network.Cookie
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return nil, classifyRunError(err, "consent")
	}

	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
	}
	f.logger.Debug("exported consent cookies", zap.String("source", src.Key), zap.Int("count", len(out)))
	return out, nil
}

// newSession spins up a fresh allocator and browser. A browser that
// cannot even start is fatal for the run, not retryable.
func (f *Fetcher) newSession(ctx context.Context) (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	cancel := func() {
		taskCancel()
		allocCancel()
	}

	// Warm up now so start failures are distinguishable from
	// navigation problems.
	if err := chromedp.Run(taskCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("%w: %v", ticker.ErrBrowserStart, err)
	}
	return taskCtx, cancel, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// classifyRunError maps chromedp failures onto the pipeline taxonomy:
// navigation and render timeouts, plus browser-process crashes, are
// transient.
func classifyRunError(err error, stage string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "exec:") {
		return fmt.Errorf("%w: %v", ticker.ErrBrowserStart, err)
	}
	return ticker.Transient(fmt.Errorf("%s: %w", stage, err))
}
