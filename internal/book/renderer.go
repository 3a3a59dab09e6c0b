// Package book renders the committed corpus into a Word document, one
// chapter per day with every entry in publication order.
package book

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gingfrederik/docx"
	"go.uber.org/zap"

	"github.com/basislager/tickerchronik/internal/pipeline"
	"github.com/basislager/tickerchronik/internal/ticker"
)

const dayFormat = "2006-01-02"

// Config controls the rendered artifact.
type Config struct {
	Title      string
	OutputPath string
}

// Renderer turns corpus records into a book document.
type Renderer struct {
	store  ticker.CorpusStore
	logger *zap.Logger
}

// New creates a Renderer reading from the given corpus.
func New(store ticker.CorpusStore, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{store: store, logger: logger}
}

// Render syncs the corpus, collects the records of the given sources
// and writes the document to cfg.OutputPath. It returns the rendered
// file content for optional archival.
func (r *Renderer) Render(ctx context.Context, cfg Config, sourceKeys []string) ([]byte, error) {
	if cfg.OutputPath == "" {
		return nil, fmt.Errorf("output path is required")
	}

	if err := r.store.Sync(ctx); err != nil {
		return nil, fmt.Errorf("sync corpus: %w", err)
	}

	var records []ticker.Record
	for _, key := range sourceKeys {
		rs, err := r.store.ReadAll(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read source %s: %w", key, err)
		}
		records = append(records, rs...)
	}
	pipeline.SortRecords(records)

	f := buildDocument(cfg.Title, records)

	if dir := filepath.Dir(cfg.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := f.Save(cfg.OutputPath); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	content, err := os.ReadFile(cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("read rendered document: %w", err)
	}

	r.logger.Info("book rendered",
		zap.String("path", cfg.OutputPath),
		zap.Int("records", len(records)),
		zap.Int("bytes", len(content)),
	)
	return content, nil
}

func buildDocument(title string, records []ticker.Record) *docx.File {
	f := docx.NewFile()

	titleRun := f.AddParagraph().AddText(title)
	titleRun.Size(20)
	f.AddParagraph()

	currentDay := ""
	for _, rec := range records {
		day := entryDay(rec)
		if day != currentDay {
			currentDay = day
			heading := f.AddParagraph().AddText(day)
			heading.Size(16)
			f.AddParagraph()
		}
		addEntry(f, rec)
	}
	return f
}

func addEntry(f *docx.File, rec ticker.Record) {
	if rec.Title != "" {
		run := f.AddParagraph().AddText(rec.Title)
		run.Size(13)
	}

	meta := f.AddParagraph().AddText(entryMeta(rec))
	meta.Size(10)
	meta.Color("808080")

	if rec.Body != "" {
		f.AddParagraph().AddText(rec.Body)
	}
	f.AddParagraph()
}

func entryDay(rec ticker.Record) string {
	ts := rec.PublishedAt
	if ts.IsZero() {
		ts = rec.ObservedAt
	}
	return ts.UTC().Format(dayFormat)
}

func entryMeta(rec ticker.Record) string {
	ts := rec.PublishedAt
	if ts.IsZero() {
		ts = rec.ObservedAt
	}
	when := ts.UTC().Format(time.RFC3339)
	if rec.Author == "" {
		return fmt.Sprintf("%s | %s", rec.Source, when)
	}
	return fmt.Sprintf("%s | %s | %s", rec.Author, rec.Source, when)
}
