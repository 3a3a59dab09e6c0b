// Package ticker defines the core types and interfaces for the ticker
// crawl-and-persist pipeline: fetch, extraction, deduplication, staging
// and the atomic publish into the versioned corpus.
package ticker

import "time"

// SourceMode selects the fetch strategy for a source.
type SourceMode string

// Fetch strategies understood by the pipeline.
const (
	// ModeRendered drives a headless browser and captures the rendered DOM.
	ModeRendered SourceMode = "rendered"
	// ModeStatic fetches the page over plain HTTP; for sources whose
	// content does not require client-side rendering.
	ModeStatic SourceMode = "static"
	// ModeAPI bootstraps cookies via the browser, then pages through a
	// JSON API and captures the raw pages.
	ModeAPI SourceMode = "api"
)

// Selectors describes how records are located inside an HTML snapshot.
// All expressions are CSS selectors evaluated relative to Entry.
type Selectors struct {
	// Entry matches one candidate record.
	Entry string `mapstructure:"entry"`
	// IDAttr names the attribute on the entry element carrying the
	// source-provided stable identifier. Optional; without it identity
	// is derived from the normalized payload.
	IDAttr string `mapstructure:"id_attr"`
	// Author, Title and Body select text content within an entry.
	Author string `mapstructure:"author"`
	Title  string `mapstructure:"title"`
	Body   string `mapstructure:"body"`
	// Time selects the publication timestamp; TimeFormat is its layout.
	Time       string `mapstructure:"time"`
	TimeFormat string `mapstructure:"time_format"`
}

// APIFeed describes a JSON feed paged with a skip-to cursor.
type APIFeed struct {
	URL string `mapstructure:"url"`
	// ConsentURL is visited by the headless browser first so that the
	// consent dialog can be accepted and its cookies exported.
	ConsentURL    string `mapstructure:"consent_url"`
	ConsentButton string `mapstructure:"consent_button"`
	// EntriesField holds the JSON field containing the entry array.
	EntriesField string `mapstructure:"entries_field"`
	// CursorField is the entry field whose last value is passed back as
	// CursorParam to request the next page.
	CursorField string `mapstructure:"cursor_field"`
	CursorParam string `mapstructure:"cursor_param"`
	MaxPages    int    `mapstructure:"max_pages"`
	// Field mapping from API entries to records.
	IDField     string `mapstructure:"id_field"`
	AuthorField string `mapstructure:"author_field"`
	TitleField  string `mapstructure:"title_field"`
	BodyField   string `mapstructure:"body_field"`
	TimeField   string `mapstructure:"time_field"`
}

// Source is the declarative per-source configuration consumed by one
// Fetcher/Extractor pair; sources differ only in data, not in code.
type Source struct {
	// Key identifies the source inside the corpus; it prefixes record
	// identities and names the corpus subdirectory.
	Key string `mapstructure:"key"`
	URL string `mapstructure:"url"`

	Mode SourceMode `mapstructure:"mode"`

	// WaitSelector must be present in the DOM before the snapshot is
	// taken; SettleDelay is an additional bounded quiet period.
	WaitSelector string        `mapstructure:"wait_selector"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`

	Selectors Selectors `mapstructure:"selectors"`
	API       APIFeed   `mapstructure:"api"`
}

// Record is one committed ticker entry. ID is stable across re-renders
// of unchanged content, which is what makes cross-run dedup work.
type Record struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	ObservedAt  time.Time `json:"observed_at"`
	PublishedAt time.Time `json:"published_at"`
	Author      string    `json:"author,omitempty"`
	Title       string    `json:"title,omitempty"`
	Body        string    `json:"body,omitempty"`
}

// Snapshot is the raw captured content of one fetch. It is consumed by
// the Extractor and discarded; it is never written to the corpus.
type Snapshot struct {
	Source     string
	URL        string
	Body       []byte
	Pages      [][]byte
	CapturedAt time.Time
	Duration   time.Duration
}

// Batch holds the new records of one run between staging and publish.
type Batch struct {
	Source  string
	Records []Record
}

// Empty reports whether the batch carries no records.
func (b Batch) Empty() bool {
	return len(b.Records) == 0
}

// Outcome classifies the result of a publish attempt.
type Outcome string

// Publish outcomes.
const (
	OutcomePublished Outcome = "published"
	OutcomeConflict  Outcome = "conflict"
	OutcomeFailed    Outcome = "failed"
)

// PublishResult reports what a publish call did to the corpus.
type PublishResult struct {
	Outcome Outcome
	// Written is the number of records committed; zero for a no-op
	// publish where every staged record turned out to be a duplicate.
	Written  int
	Revision string
}

// RunReport summarizes a single crawl run for the scheduler.
type RunReport struct {
	RunID      string `json:"run_id"`
	Source     string `json:"source"`
	Candidates int    `json:"candidates"`
	Staged     int    `json:"staged"`
	Written    int    `json:"written"`
	// Warnings counts candidate entries skipped during extraction.
	Warnings int           `json:"warnings"`
	Outcome  Outcome       `json:"outcome"`
	Revision string        `json:"revision,omitempty"`
	Duration time.Duration `json:"duration"`
}
