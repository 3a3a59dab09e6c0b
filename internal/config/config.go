// Package config loads and validates the crawler configuration via
// Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	corpusgit "github.com/basislager/tickerchronik/internal/corpus/git"
	"github.com/basislager/tickerchronik/internal/storage/local"
	"github.com/basislager/tickerchronik/internal/ticker"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig     `mapstructure:"server"`
	Logging LoggingConfig    `mapstructure:"logging"`
	Crawl   CrawlConfig      `mapstructure:"crawl"`
	Corpus  corpusgit.Config `mapstructure:"corpus"`
	Book    BookConfig       `mapstructure:"book"`
	Storage StorageConfig    `mapstructure:"storage"`
	PubSub  PubSubConfig     `mapstructure:"pubsub"`
	Sources []ticker.Source  `mapstructure:"sources"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlConfig governs fetch and publish behavior.
type CrawlConfig struct {
	UserAgent           string        `mapstructure:"user_agent"`
	Interval            time.Duration `mapstructure:"interval"`
	FetchTimeout        time.Duration `mapstructure:"fetch_timeout"`
	FetchRetries        int           `mapstructure:"fetch_retries"`
	PublishAttempts     int           `mapstructure:"publish_attempts"`
	RequestsPerSecond   float64       `mapstructure:"requests_per_second"`
	ArchiveSnapshots    bool          `mapstructure:"archive_snapshots"`
	CommitMessagePrefix string        `mapstructure:"commit_message_prefix"`
}

// BookConfig controls the rendered book artifact.
type BookConfig struct {
	Title      string `mapstructure:"title"`
	OutputPath string `mapstructure:"output_path"`
	Upload     bool   `mapstructure:"upload"`
}

// StorageConfig selects and parameterizes the blob store backend.
type StorageConfig struct {
	// Backend is one of "gcs", "local" or "memory".
	Backend string       `mapstructure:"backend"`
	Bucket  string       `mapstructure:"bucket"`
	Prefix  string       `mapstructure:"prefix"`
	Local   local.Config `mapstructure:"local"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	RunTopic  string `mapstructure:"run_topic"`
	BookTopic string `mapstructure:"book_topic"`
}

// Load builds a Config from disk or environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TICKERCHRONIK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("crawl.user_agent", "tickerchronik/0.1")
	v.SetDefault("crawl.interval", "5m")
	v.SetDefault("crawl.fetch_timeout", "90s")
	v.SetDefault("crawl.fetch_retries", 3)
	v.SetDefault("crawl.publish_attempts", 3)
	v.SetDefault("crawl.requests_per_second", 1)
	v.SetDefault("crawl.commit_message_prefix", "chronicle")
	v.SetDefault("corpus.branch", "master")
	v.SetDefault("corpus.subdir", "ticker")
	v.SetDefault("corpus.author_name", "tickerchronik")
	v.SetDefault("corpus.author_email", "bot@tickerchronik.invalid")
	v.SetDefault("book.title", "Chronik")
	v.SetDefault("book.output_path", "book.docx")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "artifacts")
	v.SetDefault("pubsub.run_topic", "chronik-runs")
	v.SetDefault("pubsub.book_topic", "chronik-books")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.FetchTimeout <= 0 {
		return fmt.Errorf("crawl.fetch_timeout must be > 0")
	}
	if c.Crawl.PublishAttempts <= 0 {
		return fmt.Errorf("crawl.publish_attempts must be > 0")
	}
	if c.Corpus.RemoteURL == "" {
		return fmt.Errorf("corpus.remote_url is required")
	}
	switch c.Storage.Backend {
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be one of gcs, local, memory")
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for _, src := range c.Sources {
		if src.Key == "" {
			return fmt.Errorf("every source needs a key")
		}
		if _, dup := seen[src.Key]; dup {
			return fmt.Errorf("duplicate source key %q", src.Key)
		}
		seen[src.Key] = struct{}{}
		switch src.Mode {
		case ticker.ModeRendered, ticker.ModeStatic:
			if src.URL == "" {
				return fmt.Errorf("source %s needs a url", src.Key)
			}
		case ticker.ModeAPI:
			if src.API.URL == "" {
				return fmt.Errorf("source %s needs an api.url", src.Key)
			}
		default:
			return fmt.Errorf("source %s has unknown mode %q", src.Key, src.Mode)
		}
	}
	return nil
}
