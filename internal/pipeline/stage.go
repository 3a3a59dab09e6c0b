// Package pipeline stages extracted candidates into a pending batch:
// known identities are dropped, the rest are put into a deterministic
// total order so corpus layout is independent of extraction order.
package pipeline

import (
	"sort"

	"github.com/basislager/tickerchronik/internal/dedup"
	"github.com/basislager/tickerchronik/internal/ticker"
)

// Stage filters candidates through the dedup index and orders the
// remainder by observed_at, then id. Candidates repeating an identity
// within the same run are collapsed to their first occurrence. An
// empty batch is a normal outcome.
func Stage(sourceKey string, candidates []ticker.Record, index *dedup.Index) ticker.Batch {
	seen := make(map[string]struct{}, len(candidates))
	records := make([]ticker.Record, 0, len(candidates))
	for _, c := range candidates {
		if !index.IsNew(c.ID) {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		records = append(records, c)
	}
	SortRecords(records)
	return ticker.Batch{Source: sourceKey, Records: records}
}

// SortRecords establishes the committed order: observed_at, then id.
func SortRecords(records []ticker.Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].ObservedAt.Equal(records[j].ObservedAt) {
			return records[i].ObservedAt.Before(records[j].ObservedAt)
		}
		return records[i].ID < records[j].ID
	})
}
