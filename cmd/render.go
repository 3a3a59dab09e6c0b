package cmd

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/basislager/tickerchronik/internal/book"
)

// newRenderCmd creates the 'render' subcommand: corpus to book
// document.
func newRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render",
		Short: "Renders the collected corpus into a book document",
		Long: `Syncs the corpus, collects the records of all configured sources
in publication order and writes them as a Word document, one chapter
per day.`,
		RunE: runRenderCommand,
	}
}

func runRenderCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := buildApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	keys := make([]string, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		keys = append(keys, src.Key)
	}

	renderer := book.New(a.store, logger)
	content, err := renderer.Render(cmd.Context(), book.Config{
		Title:      cfg.Book.Title,
		OutputPath: cfg.Book.OutputPath,
	}, keys)
	if err != nil {
		return fmt.Errorf("render book: %w", err)
	}

	if cfg.Book.Upload {
		object := path.Join(cfg.Storage.Prefix, "books", path.Base(cfg.Book.OutputPath))
		uri, err := a.blobs.PutObject(cmd.Context(), object,
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document", content)
		if err != nil {
			return fmt.Errorf("upload book: %w", err)
		}
		logger.Info("book uploaded", zap.String("uri", uri))

		if a.notifier != nil && cfg.PubSub.BookTopic != "" {
			payload := map[string]string{"uri": uri, "title": cfg.Book.Title}
			if _, err := a.notifier.Publish(cmd.Context(), cfg.PubSub.BookTopic, payload); err != nil {
				logger.Warn("book notification failed", zap.Error(err))
			}
		}
	}

	logger.Info("book written", zap.String("path", cfg.Book.OutputPath))
	return nil
}
