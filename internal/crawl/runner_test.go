package crawl

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/basislager/tickerchronik/internal/committer"
	corpusmemory "github.com/basislager/tickerchronik/internal/corpus/memory"
	"github.com/basislager/tickerchronik/internal/extract"
	"github.com/basislager/tickerchronik/internal/metrics"
	notifymemory "github.com/basislager/tickerchronik/internal/notify/memory"
	"github.com/basislager/tickerchronik/internal/retry"
	storagememory "github.com/basislager/tickerchronik/internal/storage/memory"
	"github.com/basislager/tickerchronik/internal/ticker"
)

const tickerPage = `<html><body><div id="ticker">
<article class="posting" data-postingid="p1">
  <span class="author">ana</span>
  <h3 class="title">first</h3>
  <p class="text">hello</p>
</article>
<article class="posting" data-postingid="p2">
  <span class="author">ben</span>
  <h3 class="title">second</h3>
  <p class="text">world</p>
</article>
</div></body></html>`

type fakeFetcher struct {
	body     string
	failures int
	calls    int
	err      error
}

func (f *fakeFetcher) Fetch(_ context.Context, src ticker.Source) (ticker.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return ticker.Snapshot{}, f.err
	}
	if f.calls <= f.failures {
		return ticker.Snapshot{}, ticker.Transient(fmt.Errorf("flaky fetch %d", f.calls))
	}
	return ticker.Snapshot{
		Source:     src.Key,
		URL:        src.URL,
		Body:       []byte(f.body),
		CapturedAt: time.Now().UTC(),
		Duration:   50 * time.Millisecond,
	}, nil
}

type fixedIDs struct{ n int }

func (f *fixedIDs) NewID() (string, error) {
	f.n++
	return fmt.Sprintf("run-%d", f.n), nil
}

func testSource() ticker.Source {
	return ticker.Source{
		Key:          "liveticker",
		URL:          "https://example.com/ticker",
		Mode:         ticker.ModeRendered,
		WaitSelector: "#ticker",
		Selectors: ticker.Selectors{
			Entry:  ".posting",
			IDAttr: "data-postingid",
			Author: ".author",
			Title:  ".title",
			Body:   ".text",
		},
	}
}

func newTestRunner(t *testing.T, store *corpusmemory.Store, fetcher ticker.Fetcher, opts Options) *Runner {
	t.Helper()

	policy := retry.NewPolicy(3, time.Millisecond, 5*time.Millisecond)
	pub := committer.New(store, policy, committer.Config{MaxAttempts: 3}, nil)
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewForRegistry(prometheus.NewRegistry())
	}
	if opts.IDGen == nil {
		opts.IDGen = &fixedIDs{}
	}
	fetchers := map[ticker.SourceMode]ticker.Fetcher{ticker.ModeRendered: fetcher}
	return NewRunner(fetchers, extract.New(nil), store, pub, policy, opts)
}

func TestRun_PublishesNewRecords(t *testing.T) {
	t.Parallel()

	store := corpusmemory.NewStore()
	r := newTestRunner(t, store, &fakeFetcher{body: tickerPage}, Options{})

	report, err := r.Run(context.Background(), testSource())
	require.NoError(t, err)
	require.Equal(t, ticker.OutcomePublished, report.Outcome)
	require.Equal(t, 2, report.Candidates)
	require.Equal(t, 2, report.Staged)
	require.Equal(t, 2, report.Written)
	require.NotEmpty(t, report.Revision)
	require.Len(t, store.RemoteRecords("liveticker"), 2)
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	t.Parallel()

	store := corpusmemory.NewStore()
	r := newTestRunner(t, store, &fakeFetcher{body: tickerPage}, Options{})

	_, err := r.Run(context.Background(), testSource())
	require.NoError(t, err)

	report, err := r.Run(context.Background(), testSource())
	require.NoError(t, err)
	require.Equal(t, ticker.OutcomePublished, report.Outcome)
	require.Equal(t, 2, report.Candidates)
	require.Equal(t, 0, report.Staged)
	require.Equal(t, 0, report.Written)
	require.Len(t, store.RemoteRecords("liveticker"), 2)
}

func TestRun_RetriesTransientFetch(t *testing.T) {
	t.Parallel()

	store := corpusmemory.NewStore()
	fetcher := &fakeFetcher{body: tickerPage, failures: 2}
	r := newTestRunner(t, store, fetcher, Options{})

	report, err := r.Run(context.Background(), testSource())
	require.NoError(t, err)
	require.Equal(t, ticker.OutcomePublished, report.Outcome)
	require.Equal(t, 3, fetcher.calls)
}

func TestRun_FatalFetchFailsWithoutRetry(t *testing.T) {
	t.Parallel()

	store := corpusmemory.NewStore()
	fetcher := &fakeFetcher{err: fmt.Errorf("%w: no binary", ticker.ErrBrowserStart)}
	r := newTestRunner(t, store, fetcher, Options{})

	report, err := r.Run(context.Background(), testSource())
	require.ErrorIs(t, err, ticker.ErrBrowserStart)
	require.Equal(t, ticker.OutcomeFailed, report.Outcome)
	require.Equal(t, 1, fetcher.calls)
	require.Empty(t, store.RemoteRecords("liveticker"))
}

func TestRun_UnknownModeFails(t *testing.T) {
	t.Parallel()

	store := corpusmemory.NewStore()
	r := newTestRunner(t, store, &fakeFetcher{body: tickerPage}, Options{})

	src := testSource()
	src.Mode = ticker.ModeStatic
	_, err := r.Run(context.Background(), src)
	require.Error(t, err)
}

func TestRun_NotifiesRunReport(t *testing.T) {
	t.Parallel()

	store := corpusmemory.NewStore()
	notifier := notifymemory.New()
	r := newTestRunner(t, store, &fakeFetcher{body: tickerPage}, Options{
		Notifier: notifier,
		RunTopic: "chronik-runs",
	})

	report, err := r.Run(context.Background(), testSource())
	require.NoError(t, err)

	msgs := notifier.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "chronik-runs", msgs[0].Topic)
	require.Equal(t, report, msgs[0].Payload)
}

func TestRun_ArchivesSnapshot(t *testing.T) {
	t.Parallel()

	store := corpusmemory.NewStore()
	archive := storagememory.NewBlobStore()
	r := newTestRunner(t, store, &fakeFetcher{body: tickerPage}, Options{Archive: archive})

	report, err := r.Run(context.Background(), testSource())
	require.NoError(t, err)

	data, ok := archive.Object(fmt.Sprintf("snapshots/liveticker/%s.html", report.RunID))
	require.True(t, ok)
	require.Equal(t, tickerPage, string(data))
}

func TestRun_SyncFailureFailsRun(t *testing.T) {
	t.Parallel()

	store := corpusmemory.NewStore()
	store.FailSyncWith(errors.New("remote unreachable"))
	r := newTestRunner(t, store, &fakeFetcher{body: tickerPage}, Options{})

	report, err := r.Run(context.Background(), testSource())
	require.Error(t, err)
	require.Equal(t, ticker.OutcomeFailed, report.Outcome)
}

func TestRunAll_ContinuesPastFailingSource(t *testing.T) {
	t.Parallel()

	store := corpusmemory.NewStore()
	r := newTestRunner(t, store, &fakeFetcher{body: tickerPage}, Options{})

	bad := testSource()
	bad.Key = "broken"
	bad.Mode = ticker.ModeStatic

	reports := r.RunAll(context.Background(), []ticker.Source{bad, testSource()})
	require.Len(t, reports, 2)
	require.Equal(t, ticker.OutcomeFailed, reports[0].Outcome)
	require.Equal(t, ticker.OutcomePublished, reports[1].Outcome)
}

func TestLoop_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	store := corpusmemory.NewStore()
	r := newTestRunner(t, store, &fakeFetcher{body: tickerPage}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	var seen int
	done := make(chan error, 1)
	go func() {
		done <- r.Loop(ctx, []ticker.Source{testSource()}, time.Hour, func(ticker.RunReport) {
			seen++
			cancel()
		})
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
	require.Equal(t, 1, seen)
}
