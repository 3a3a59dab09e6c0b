// Package git implements the versioned corpus store on top of the git
// binary. The corpus is an append-only NDJSON record log per source,
// committed and pushed with fast-forward-only semantics; a rejected
// push surfaces as ticker.ErrRemoteMoved so the committer can sync and
// retry.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/basislager/tickerchronik/internal/ticker"
)

// Config captures the parameters of the corpus repository.
type Config struct {
	// RemoteURL is the upstream repository holding the corpus.
	RemoteURL string `mapstructure:"remote_url"`
	Branch    string `mapstructure:"branch"`
	// Workdir is the local checkout directory. Empty means a temporary
	// directory owned by the store.
	Workdir string `mapstructure:"workdir"`
	// Subdir is an optional path prefix inside the repository.
	Subdir      string `mapstructure:"subdir"`
	AuthorName  string `mapstructure:"author_name"`
	AuthorEmail string `mapstructure:"author_email"`
}

// Store is a git-backed ticker.CorpusStore.
type Store struct {
	cfg     Config
	dir     string
	ownsDir bool
	cloned  bool
	logger  *zap.Logger
}

// NewStore creates a Store. The first Sync clones the remote.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.RemoteURL == "" {
		return nil, fmt.Errorf("corpus remote URL is required")
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.AuthorName == "" {
		cfg.AuthorName = "tickerchronik"
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = "tickerchronik@localhost"
	}
	if filepath.IsAbs(cfg.Subdir) {
		return nil, fmt.Errorf("corpus subdir must be a relative path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := cfg.Workdir
	ownsDir := false
	if dir == "" {
		tmp, err := os.MkdirTemp("", "tickerchronik-corpus-*")
		if err != nil {
			return nil, fmt.Errorf("create corpus workdir: %w", err)
		}
		dir = tmp
		ownsDir = true
	}

	return &Store{
		cfg:     cfg,
		dir:     dir,
		ownsDir: ownsDir,
		logger:  logger,
	}, nil
}

// Dir returns the local checkout directory.
func (s *Store) Dir() string {
	return s.dir
}

// Close removes the temporary checkout if the store created one.
func (s *Store) Close() error {
	if !s.ownsDir {
		return nil
	}
	return os.RemoveAll(s.dir)
}

// Sync clones on first use, then fetches and hard-resets onto the
// remote branch head. Local leftovers from a failed run are discarded.
func (s *Store) Sync(ctx context.Context) error {
	if !s.cloned {
		if _, err := os.Stat(filepath.Join(s.dir, ".git")); err == nil {
			s.cloned = true
		} else {
			if _, err := s.run(ctx, "", "clone", "--branch", s.cfg.Branch, "--single-branch", s.cfg.RemoteURL, s.dir); err != nil {
				return fmt.Errorf("clone corpus: %w", err)
			}
			s.cloned = true
			return nil
		}
	}
	if _, err := s.run(ctx, s.dir, "fetch", "origin", s.cfg.Branch); err != nil {
		return fmt.Errorf("fetch corpus: %w", err)
	}
	if err := s.resetHard(ctx); err != nil {
		return err
	}
	return nil
}

// Head returns the current local revision.
func (s *Store) Head(ctx context.Context) (string, error) {
	out, err := s.run(ctx, s.dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve head: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ReadAll decodes the source's record log. A missing log means the
// source has no committed records yet.
func (s *Store) ReadAll(_ context.Context, sourceKey string) ([]ticker.Record, error) {
	data, err := os.ReadFile(s.recordLogPath(sourceKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read record log: %w", err)
	}
	records, err := DecodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("decode record log: %w", err)
	}
	return records, nil
}

// Append writes records to the end of the source's log, regenerates
// the stats summary and stages both files.
func (s *Store) Append(ctx context.Context, sourceKey string, records []ticker.Record) error {
	if len(records) == 0 {
		return nil
	}
	logPath := s.recordLogPath(sourceKey)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o750); err != nil {
		return fmt.Errorf("create source dir: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open record log: %w", err)
	}
	encoded, err := EncodeRecords(records)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(encoded); err != nil {
		f.Close()
		return fmt.Errorf("append record log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close record log: %w", err)
	}

	all, err := s.ReadAll(ctx, sourceKey)
	if err != nil {
		return err
	}
	stats, err := BuildStats(all)
	if err != nil {
		return err
	}
	statsPath := filepath.Join(filepath.Dir(logPath), statsFile)
	if err := os.WriteFile(statsPath, stats, 0o640); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}

	if _, err := s.run(ctx, s.dir, "add", "--", s.relSourceDir(sourceKey)); err != nil {
		return fmt.Errorf("stage records: %w", err)
	}
	return nil
}

// Commit creates a single revision from the staged state.
func (s *Store) Commit(ctx context.Context, message string) (string, error) {
	args := []string{
		"-c", "user.name=" + s.cfg.AuthorName,
		"-c", "user.email=" + s.cfg.AuthorEmail,
		"commit", "-m", message,
	}
	if _, err := s.run(ctx, s.dir, args...); err != nil {
		return "", fmt.Errorf("commit corpus: %w", err)
	}
	return s.Head(ctx)
}

// Push publishes the local head to the remote branch.
func (s *Store) Push(ctx context.Context) error {
	if _, err := s.run(ctx, s.dir, "push", "origin", s.cfg.Branch); err != nil {
		return fmt.Errorf("push corpus: %w", err)
	}
	return nil
}

// Discard drops staged and committed-but-unpushed local state.
func (s *Store) Discard(ctx context.Context) error {
	if !s.cloned {
		return nil
	}
	return s.resetHard(ctx)
}

func (s *Store) resetHard(ctx context.Context) error {
	if _, err := s.run(ctx, s.dir, "reset", "--hard", "origin/"+s.cfg.Branch); err != nil {
		return fmt.Errorf("reset corpus: %w", err)
	}
	if _, err := s.run(ctx, s.dir, "clean", "-fd"); err != nil {
		return fmt.Errorf("clean corpus: %w", err)
	}
	return nil
}

func (s *Store) recordLogPath(sourceKey string) string {
	return filepath.Join(s.dir, s.relSourceDir(sourceKey), recordLog)
}

func (s *Store) relSourceDir(sourceKey string) string {
	if s.cfg.Subdir == "" {
		return sourceKey
	}
	return filepath.Join(s.cfg.Subdir, sourceKey)
}

func (s *Store) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Debug("running git", zap.Strings("args", args))
	err := cmd.Run()
	if err != nil {
		classified := classifyGitError(stderr.String(), err)
		s.logger.Debug("git failed",
			zap.Strings("args", args),
			zap.String("stderr", stderr.String()),
			zap.Error(err),
		)
		return stdout.String(), classified
	}
	return stdout.String(), nil
}
