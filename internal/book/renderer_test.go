package book

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	corpusmemory "github.com/basislager/tickerchronik/internal/corpus/memory"
	"github.com/basislager/tickerchronik/internal/ticker"
)

func seedCorpus(t *testing.T, store *corpusmemory.Store, source string, records []ticker.Record) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, source, records))
	_, err := store.Commit(ctx, "seed")
	require.NoError(t, err)
	require.NoError(t, store.Push(ctx))
}

func TestRender_WritesDocument(t *testing.T) {
	t.Parallel()

	store := corpusmemory.NewStore()
	day1 := time.Date(2020, 3, 14, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2020, 3, 15, 8, 30, 0, 0, time.UTC)
	seedCorpus(t, store, "forum", []ticker.Record{
		{ID: "b", Source: "forum", ObservedAt: day2, PublishedAt: day2, Author: "flo", Body: "second day"},
		{ID: "a", Source: "forum", ObservedAt: day1, PublishedAt: day1, Author: "flo", Title: "start", Body: "first day"},
	})

	out := filepath.Join(t.TempDir(), "books", "chronik.docx")
	r := New(store, nil)
	content, err := r.Render(context.Background(), Config{Title: "Chronik", OutputPath: out}, []string{"forum"})
	require.NoError(t, err)
	require.NotEmpty(t, content)
	require.FileExists(t, out)
}

func TestRender_EmptyCorpusStillProducesDocument(t *testing.T) {
	t.Parallel()

	store := corpusmemory.NewStore()
	out := filepath.Join(t.TempDir(), "chronik.docx")

	r := New(store, nil)
	content, err := r.Render(context.Background(), Config{Title: "Chronik", OutputPath: out}, []string{"forum"})
	require.NoError(t, err)
	require.NotEmpty(t, content)
}

func TestRender_RequiresOutputPath(t *testing.T) {
	t.Parallel()

	r := New(corpusmemory.NewStore(), nil)
	_, err := r.Render(context.Background(), Config{Title: "Chronik"}, nil)
	require.Error(t, err)
}

func TestEntryDayFallsBackToObservedAt(t *testing.T) {
	t.Parallel()

	observed := time.Date(2020, 3, 14, 23, 59, 0, 0, time.UTC)
	rec := ticker.Record{ID: "a", Source: "forum", ObservedAt: observed}
	require.Equal(t, "2020-03-14", entryDay(rec))
}
