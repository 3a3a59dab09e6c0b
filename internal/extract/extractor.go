// Package extract turns raw snapshots into candidate records using the
// declarative per-source selector configuration. Extraction is
// deterministic: the same snapshot content always yields the same
// record sequence and identities.
package extract

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/basislager/tickerchronik/internal/ticker"
)

// Extractor implements ticker.Extractor for HTML and API snapshots.
type Extractor struct {
	logger *zap.Logger
}

// New constructs an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract parses the snapshot. Individually malformed entries are
// skipped and counted; a snapshot whose expected structure is missing
// entirely fails with ErrLayoutChanged.
func (e *Extractor) Extract(snap ticker.Snapshot, src ticker.Source) ([]ticker.Record, int, error) {
	if src.Mode == ticker.ModeAPI {
		return e.extractAPI(snap, src)
	}
	return e.extractHTML(snap, src)
}

func (e *Extractor) extractHTML(snap ticker.Snapshot, src ticker.Source) ([]ticker.Record, int, error) {
	if src.Selectors.Entry == "" {
		return nil, 0, fmt.Errorf("source %s: entry selector not configured", src.Key)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(snap.Body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ticker.ErrLayoutChanged, err)
	}

	entries := doc.Find(src.Selectors.Entry)
	if entries.Length() == 0 {
		// Zero entries is only acceptable when the surrounding page
		// structure is still recognizable; otherwise the layout moved
		// under our selectors.
		if src.WaitSelector != "" && doc.Find(src.WaitSelector).Length() > 0 {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("%w: selector %q matched nothing", ticker.ErrLayoutChanged, src.Selectors.Entry)
	}

	var (
		records []ticker.Record
		skipped int
	)
	entries.Each(func(i int, sel *goquery.Selection) {
		rec, err := e.entryFromSelection(sel, snap, src)
		if err != nil {
			skipped++
			e.logger.Warn("skipping malformed entry",
				zap.String("source", src.Key),
				zap.Int("index", i),
				zap.Error(err),
			)
			return
		}
		records = append(records, rec)
	})
	return records, skipped, nil
}

func (e *Extractor) entryFromSelection(sel *goquery.Selection, snap ticker.Snapshot, src ticker.Source) (ticker.Record, error) {
	author := selectorText(sel, src.Selectors.Author)
	title := selectorText(sel, src.Selectors.Title)
	body := selectorText(sel, src.Selectors.Body)
	if title == "" && body == "" {
		return ticker.Record{}, fmt.Errorf("entry has neither title nor body")
	}

	var published time.Time
	if src.Selectors.Time != "" {
		raw := selectorText(sel, src.Selectors.Time)
		if raw == "" {
			return ticker.Record{}, fmt.Errorf("entry timestamp missing")
		}
		parsed, err := parseTime(raw, src.Selectors.TimeFormat)
		if err != nil {
			return ticker.Record{}, fmt.Errorf("parse entry timestamp: %w", err)
		}
		published = parsed
	}

	id := ""
	if src.Selectors.IDAttr != "" {
		if key, ok := sel.Attr(src.Selectors.IDAttr); ok && strings.TrimSpace(key) != "" {
			id = ticker.EntryID(src.Key, strings.TrimSpace(key))
		}
	}
	if id == "" {
		id = ticker.ContentID(src.Key, author, title, body)
	}

	return ticker.Record{
		ID:          id,
		Source:      src.Key,
		ObservedAt:  snap.CapturedAt,
		PublishedAt: published,
		Author:      author,
		Title:       title,
		Body:        body,
	}, nil
}

func selectorText(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return ticker.Normalize(sel.Find(selector).First().Text())
}

func parseTime(raw, layout string) (time.Time, error) {
	if layout == "" {
		layout = time.RFC3339
	}
	t, err := time.Parse(layout, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
