package ticker

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors shared across the pipeline.
var (
	// ErrBrowserStart signals that the browser session could not even be
	// created. Fatal: retrying without operator action is pointless.
	ErrBrowserStart = errors.New("browser session failed to start")

	// ErrLayoutChanged signals that the expected page structure was not
	// found at all. Fatal for the run; the selectors need attention.
	ErrLayoutChanged = errors.New("page layout not recognized")

	// ErrRemoteMoved is returned by CorpusStore.Push when the remote
	// head advanced; the committer resolves it by sync-and-retry.
	ErrRemoteMoved = errors.New("remote corpus moved ahead")

	// ErrUnauthorized covers authorization failures against the corpus
	// store. Fatal for the run.
	ErrUnauthorized = errors.New("corpus store authorization failed")
)

// transientError marks an error as retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return fmt.Sprintf("transient: %v", e.err)
}

func (e *transientError) Unwrap() error {
	return e.err
}

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err belongs to the retryable class:
// network errors, render/navigation timeouts and push conflicts.
// Context cancellation is not transient; the run is being aborted.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if IsFatal(err) {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, ErrRemoteMoved) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// IsFatal reports whether err aborts the run without retry.
func IsFatal(err error) bool {
	return errors.Is(err, ErrBrowserStart) ||
		errors.Is(err, ErrLayoutChanged) ||
		errors.Is(err, ErrUnauthorized)
}
