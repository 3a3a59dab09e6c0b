package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/basislager/tickerchronik/internal/ticker"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
corpus:
  remote_url: git@example.com:chronik/corpus.git
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "master", cfg.Corpus.Branch)
	require.Equal(t, 5*time.Minute, cfg.Crawl.Interval)
	require.Equal(t, 3, cfg.Crawl.PublishAttempts)
	require.Equal(t, "memory", cfg.Storage.Backend)
}

func TestLoad_ParsesSources(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
corpus:
  remote_url: git@example.com:chronik/corpus.git
sources:
  - key: liveticker
    url: https://example.com/ticker
    mode: rendered
    wait_selector: ".posting"
    selectors:
      entry: ".posting"
      id_attr: "data-postingid"
      author: ".author"
      body: ".text"
  - key: forum
    mode: api
    api:
      url: https://example.com/api/postings
      entries_field: postings
      cursor_field: next
      cursor_param: skipToPostingId
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 2)

	live := cfg.Sources[0]
	require.Equal(t, ticker.ModeRendered, live.Mode)
	require.Equal(t, ".posting", live.Selectors.Entry)
	require.Equal(t, "data-postingid", live.Selectors.IDAttr)

	forum := cfg.Sources[1]
	require.Equal(t, ticker.ModeAPI, forum.Mode)
	require.Equal(t, "skipToPostingId", forum.API.CursorParam)
}

func TestLoad_MissingRemoteFails(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9000
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "corpus.remote_url")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg := Config{}
		cfg.Server.Port = 8080
		cfg.Crawl.FetchTimeout = time.Minute
		cfg.Crawl.PublishAttempts = 3
		cfg.Corpus.RemoteURL = "git@example.com:c/c.git"
		cfg.Storage.Backend = "memory"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "gcs needs bucket",
			mutate:  func(c *Config) { c.Storage.Backend = "gcs" },
			wantErr: "storage.bucket",
		},
		{
			name:    "local needs base dir",
			mutate:  func(c *Config) { c.Storage.Backend = "local" },
			wantErr: "storage.local.base_dir",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Storage.Backend = "s3" },
			wantErr: "storage.backend",
		},
		{
			name:    "pubsub needs project",
			mutate:  func(c *Config) { c.PubSub.Enabled = true },
			wantErr: "pubsub.project_id",
		},
		{
			name: "duplicate source keys",
			mutate: func(c *Config) {
				c.Sources = []ticker.Source{
					{Key: "a", URL: "https://x", Mode: ticker.ModeStatic},
					{Key: "a", URL: "https://y", Mode: ticker.ModeStatic},
				}
			},
			wantErr: "duplicate source key",
		},
		{
			name: "api source needs feed url",
			mutate: func(c *Config) {
				c.Sources = []ticker.Source{{Key: "a", Mode: ticker.ModeAPI}}
			},
			wantErr: "api.url",
		},
		{
			name: "unknown mode",
			mutate: func(c *Config) {
				c.Sources = []ticker.Source{{Key: "a", URL: "https://x", Mode: "ftp"}}
			},
			wantErr: "unknown mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
