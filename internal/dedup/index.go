// Package dedup answers membership queries against the set of record
// identities already committed to the corpus.
package dedup

import (
	"context"
	"fmt"

	"github.com/basislager/tickerchronik/internal/ticker"
)

// Index is the set of known record identities for one source. It is
// built fresh from the corpus head at the start of every run; it is
// never carried across runs, so dedup correctness depends only on
// corpus state, not on process lifetime.
type Index struct {
	known map[string]struct{}
}

// Load builds the index from the store's record log. Callers sync the
// store first so the index reflects the latest remote head.
func Load(ctx context.Context, store ticker.CorpusStore, sourceKey string) (*Index, error) {
	records, err := store.ReadAll(ctx, sourceKey)
	if err != nil {
		return nil, fmt.Errorf("read corpus for %s: %w", sourceKey, err)
	}
	return FromRecords(records), nil
}

// FromRecords builds an index from an already-loaded record list.
func FromRecords(records []ticker.Record) *Index {
	known := make(map[string]struct{}, len(records))
	for _, r := range records {
		known[r.ID] = struct{}{}
	}
	return &Index{known: known}
}

// IsNew reports whether the identity is absent from the corpus.
func (i *Index) IsNew(id string) bool {
	_, ok := i.known[id]
	return !ok
}

// Len returns the number of known identities.
func (i *Index) Len() int {
	return len(i.known)
}
