package ticker

import (
	"context"
	"time"
)

// Fetcher captures a snapshot of a source. Implementations must use an
// isolated, disposable session per call; no state leaks between runs.
type Fetcher interface {
	Fetch(ctx context.Context, src Source) (Snapshot, error)
}

// Extractor parses a snapshot into candidate records. It must be
// deterministic: identical snapshot content yields an identical record
// sequence with identical identities. The int return counts entries
// that were skipped as individually malformed.
type Extractor interface {
	Extract(snap Snapshot, src Source) ([]Record, int, error)
}

// CorpusStore exposes the versioned, append-only corpus. Sync, Commit
// and Push map onto the pull / commit / fast-forward-push cycle of the
// backing store; Push returns ErrRemoteMoved when the remote advanced.
type CorpusStore interface {
	// Sync brings the local copy to the latest remote head.
	Sync(ctx context.Context) error
	// Head returns the current corpus revision.
	Head(ctx context.Context) (string, error)
	// ReadAll returns every committed record of a source, in log order.
	ReadAll(ctx context.Context, sourceKey string) ([]Record, error)
	// Append stages records at the end of the source's record log.
	Append(ctx context.Context, sourceKey string, records []Record) error
	// Commit turns the staged state into a single corpus revision.
	Commit(ctx context.Context, message string) (string, error)
	// Push publishes the local head; fast-forward only.
	Push(ctx context.Context) error
	// Discard drops all staged or committed-but-unpushed local state.
	Discard(ctx context.Context) error
}

// Notifier pushes completion events to downstream consumers.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// RetryPolicy bounds retries around fetch and publish calls.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Hasher computes digests for snapshot archiving and integrity checks.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
