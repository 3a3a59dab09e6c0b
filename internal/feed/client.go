// Package feed pages through JSON ticker APIs. Some feeds sit behind a
// consent wall; the client borrows a browser session's cookies to get
// past it.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/basislager/tickerchronik/internal/ticker"
)

// CookieSource supplies session cookies for a source, typically
// exported from a headless browser after clicking through the consent
// dialog.
type CookieSource interface {
	Cookies(ctx context.Context, src ticker.Source) ([]*http.Cookie, error)
}

// Config controls the API client.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// RequestsPerSecond throttles page requests against the feed
	// host. Zero means one request per second.
	RequestsPerSecond float64
	MaxPages          int
}

// Client fetches feed pages and assembles them into a snapshot.
type Client struct {
	cfg     Config
	rest    *resty.Client
	cookies CookieSource
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds a feed client. cookies may be nil for feeds without a
// consent wall.
func New(cfg Config, cookies CookieSource, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rest := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0)
	if cfg.UserAgent != "" {
		rest.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{
		cfg:     cfg,
		rest:    rest,
		cookies: cookies,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
	}
}

// Fetch pages through the source's feed API, following the cursor
// until the feed is exhausted or the page cap is hit. Each page body
// is kept verbatim so the extractor sees exactly what the server sent.
func (c *Client) Fetch(ctx context.Context, src ticker.Source) (ticker.Snapshot, error) {
	if src.API.URL == "" {
		return ticker.Snapshot{}, fmt.Errorf("source %s has no feed URL", src.Key)
	}

	// Cookies travel per request; the resty client is shared between
	// sources and must stay free of session state.
	var cookies []*http.Cookie
	if c.cookies != nil {
		var err error
		cookies, err = c.cookies.Cookies(ctx, src)
		if err != nil {
			return ticker.Snapshot{}, fmt.Errorf("consent cookies for %s: %w", src.Key, err)
		}
	}

	maxPages := src.API.MaxPages
	if maxPages <= 0 {
		maxPages = c.cfg.MaxPages
	}

	start := time.Now()
	var pages [][]byte
	cursor := ""
	for page := 0; page < maxPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return ticker.Snapshot{}, fmt.Errorf("rate limit wait: %w", err)
		}

		body, err := c.fetchPage(ctx, src, cursor, cookies)
		if err != nil {
			return ticker.Snapshot{}, err
		}
		pages = append(pages, body)

		next, more, err := nextCursor(body, src.API)
		if err != nil {
			return ticker.Snapshot{}, fmt.Errorf("%w: source %s page %d: %v", ticker.ErrLayoutChanged, src.Key, page, err)
		}
		if !more || next == cursor {
			break
		}
		cursor = next
	}

	c.logger.Debug("feed paged",
		zap.String("source", src.Key),
		zap.Int("pages", len(pages)),
		zap.Duration("took", time.Since(start)),
	)

	return ticker.Snapshot{
		Source:     src.Key,
		URL:        src.API.URL,
		Pages:      pages,
		CapturedAt: time.Now().UTC(),
		Duration:   time.Since(start),
	}, nil
}

func (c *Client) fetchPage(ctx context.Context, src ticker.Source, cursor string, cookies []*http.Cookie) ([]byte, error) {
	req := c.rest.R().SetContext(ctx)
	if len(cookies) > 0 {
		req.SetCookies(cookies)
	}
	if cursor != "" && src.API.CursorParam != "" {
		req.SetQueryParam(src.API.CursorParam, cursor)
	}

	resp, err := req.Get(src.API.URL)
	if err != nil {
		return nil, ticker.Transient(fmt.Errorf("feed request %s: %w", src.Key, err))
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, fmt.Errorf("%w: feed %s returned %d", ticker.ErrUnauthorized, src.Key, code)
	case code >= http.StatusBadRequest:
		return nil, ticker.Transient(fmt.Errorf("feed %s returned %d", src.Key, code))
	}
	return resp.Body(), nil
}

// nextCursor pulls the continuation cursor from a page. An absent or
// empty cursor field means the feed is exhausted.
func nextCursor(body []byte, api ticker.APIFeed) (string, bool, error) {
	if api.CursorField == "" {
		return "", false, nil
	}

	var page map[string]json.RawMessage
	if err := json.Unmarshal(body, &page); err != nil {
		return "", false, fmt.Errorf("parse page: %w", err)
	}
	raw, ok := page[api.CursorField]
	if !ok {
		return "", false, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, asString != "", nil
	}
	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		if asNumber == 0 {
			return "", false, nil
		}
		return fmt.Sprintf("%.0f", asNumber), true, nil
	}
	return "", false, fmt.Errorf("cursor field %q is neither string nor number", api.CursorField)
}
