package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/basislager/tickerchronik/internal/ticker"
)

// newCrawlCmd creates the 'crawl' subcommand: one full pass over all
// configured sources, then exit.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl pass over all configured sources",
		Long: `Fetches every configured source once, extracts its entries,
deduplicates them against the corpus head and commits whatever is new.
Intended for cron-style scheduling; use 'serve' for a long-running
process.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := buildApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(cfg.Sources) == 0 {
		return fmt.Errorf("no sources configured")
	}

	reports := a.runner.RunAll(cmd.Context(), cfg.Sources)

	failed := 0
	for _, report := range reports {
		logger.Info("source finished",
			zap.String("source", report.Source),
			zap.String("outcome", string(report.Outcome)),
			zap.Int("written", report.Written),
		)
		if report.Outcome != ticker.OutcomePublished {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sources did not publish", failed, len(reports))
	}
	return nil
}
