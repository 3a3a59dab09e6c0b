// Package cmd defines the CLI commands of the tickerchronik binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/basislager/tickerchronik/internal/config"
	"github.com/basislager/tickerchronik/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickerchronik",
		Short: "Crawls live tickers and chronicles them in a versioned corpus.",
		Long: `tickerchronik captures entries from live ticker pages and forum
feeds, deduplicates them against a git-versioned corpus and appends
whatever is genuinely new, one commit per run. The collected corpus can
be rendered into a book document.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./tickerchronik.yaml)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRenderCmd())

	return cmd
}

// loadConfig reads the configuration and builds the logger from it.
func loadConfig() (config.Config, *zap.Logger, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("tickerchronik.yaml"); err == nil {
			path = "tickerchronik.yaml"
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tickerchronik: %v\n", err)
		os.Exit(1)
	}
}
