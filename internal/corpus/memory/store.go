// Package memory implements an in-memory corpus store for development
// and tests. It mimics the pull / commit / fast-forward-push semantics
// of the git-backed store, including rejected pushes when the remote
// head moved, so the committer's conflict path can be exercised without
// a real repository.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/basislager/tickerchronik/internal/ticker"
)

// Store keeps a "remote" corpus and a local working copy.
type Store struct {
	mu sync.Mutex

	remote     map[string][]ticker.Record
	remoteHead string

	local      map[string][]ticker.Record
	syncedHead string

	staged      map[string][]ticker.Record
	pendingHead string

	commits int
	syncs   int
	pushes  int

	syncErr error
	pushErr error
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		remote: make(map[string][]ticker.Record),
		local:  make(map[string][]ticker.Record),
		staged: make(map[string][]ticker.Record),
	}
}

// Sync replaces the local copy with the remote head and drops any
// staged or unpushed state.
func (s *Store) Sync(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncs++
	if s.syncErr != nil {
		return s.syncErr
	}
	s.resetToRemoteLocked()
	return nil
}

// Head returns the latest local revision.
func (s *Store) Head(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingHead != "" {
		return s.pendingHead, nil
	}
	return s.syncedHead, nil
}

// ReadAll returns the records of the local copy in log order.
func (s *Store) ReadAll(_ context.Context, sourceKey string) ([]ticker.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.local[sourceKey]
	out := make([]ticker.Record, len(records))
	copy(out, records)
	return out, nil
}

// Append stages records at the end of the source's log.
func (s *Store) Append(_ context.Context, sourceKey string, records []ticker.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged[sourceKey] = append(s.staged[sourceKey], records...)
	return nil
}

// Commit folds the staged records into the local copy as one revision.
func (s *Store) Commit(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.staged) == 0 {
		return "", fmt.Errorf("nothing staged")
	}
	for source, records := range s.staged {
		s.local[source] = append(s.local[source], records...)
	}
	s.staged = make(map[string][]ticker.Record)
	s.commits++
	s.pendingHead = fmt.Sprintf("rev-%d", s.commits)
	return s.pendingHead, nil
}

// Push publishes the local head. It rejects with ErrRemoteMoved when
// the remote advanced since the last Sync.
func (s *Store) Push(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes++
	if s.pushErr != nil {
		return s.pushErr
	}
	if s.remoteHead != s.syncedHead {
		return ticker.ErrRemoteMoved
	}
	if s.pendingHead == "" {
		return nil
	}
	s.remote = cloneLog(s.local)
	s.remoteHead = s.pendingHead
	s.syncedHead = s.pendingHead
	s.pendingHead = ""
	return nil
}

// Discard drops staged and unpushed state, reverting to the last sync.
func (s *Store) Discard(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetToRemoteLocked()
	return nil
}

// AdvanceRemote simulates a concurrent publisher appending records and
// moving the remote head.
func (s *Store) AdvanceRemote(sourceKey string, records []ticker.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote[sourceKey] = append(s.remote[sourceKey], records...)
	s.commits++
	s.remoteHead = fmt.Sprintf("rev-%d", s.commits)
}

// RemoteRecords returns the published records of a source.
func (s *Store) RemoteRecords(sourceKey string) []ticker.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.remote[sourceKey]
	out := make([]ticker.Record, len(records))
	copy(out, records)
	return out
}

// FailPushWith injects a push error; pass nil to clear it.
func (s *Store) FailPushWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushErr = err
}

// FailSyncWith injects a sync error; pass nil to clear it.
func (s *Store) FailSyncWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncErr = err
}

// Syncs returns how many times Sync was called.
func (s *Store) Syncs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncs
}

// Pushes returns how many times Push was called.
func (s *Store) Pushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushes
}

func (s *Store) resetToRemoteLocked() {
	s.local = cloneLog(s.remote)
	s.syncedHead = s.remoteHead
	s.staged = make(map[string][]ticker.Record)
	s.pendingHead = ""
}

func cloneLog(src map[string][]ticker.Record) map[string][]ticker.Record {
	dst := make(map[string][]ticker.Record, len(src))
	for k, v := range src {
		records := make([]ticker.Record, len(v))
		copy(records, v)
		dst[k] = records
	}
	return dst
}
