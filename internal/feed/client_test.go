package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basislager/tickerchronik/internal/ticker"
)

type staticCookies struct {
	cookies []*http.Cookie
	calls   int
}

func (s *staticCookies) Cookies(ctx context.Context, src ticker.Source) ([]*http.Cookie, error) {
	s.calls++
	return s.cookies, nil
}

func apiSource(url string) ticker.Source {
	return ticker.Source{
		Key:  "forum",
		Mode: ticker.ModeAPI,
		API: ticker.APIFeed{
			URL:          url,
			EntriesField: "postings",
			CursorField:  "next",
			CursorParam:  "skipToPostingId",
			MaxPages:     10,
		},
	}
}

func TestFetch_FollowsCursorAcrossPages(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"":   `{"postings":[{"id":"1"}],"next":"p2"}`,
		"p2": `{"postings":[{"id":"2"}],"next":"p3"}`,
		"p3": `{"postings":[{"id":"3"}]}`,
	}
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("skipToPostingId")
		requested = append(requested, cursor)
		fmt.Fprint(w, pages[cursor])
	}))
	defer srv.Close()

	c := New(Config{RequestsPerSecond: 1000}, nil, nil)
	snap, err := c.Fetch(context.Background(), apiSource(srv.URL))
	require.NoError(t, err)
	require.Equal(t, []string{"", "p2", "p3"}, requested)
	require.Len(t, snap.Pages, 3)
	require.Equal(t, "forum", snap.Source)
}

func TestFetch_StopsAtPageCap(t *testing.T) {
	t.Parallel()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprintf(w, `{"postings":[],"next":"c%d"}`, hits)
	}))
	defer srv.Close()

	src := apiSource(srv.URL)
	src.API.MaxPages = 3

	c := New(Config{RequestsPerSecond: 1000}, nil, nil)
	snap, err := c.Fetch(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 3, hits)
	require.Len(t, snap.Pages, 3)
}

func TestFetch_SendsConsentCookies(t *testing.T) {
	t.Parallel()

	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("consent"); err == nil {
			gotCookie = c.Value
		}
		fmt.Fprint(w, `{"postings":[]}`)
	}))
	defer srv.Close()

	cookies := &staticCookies{cookies: []*http.Cookie{{Name: "consent", Value: "granted"}}}
	c := New(Config{RequestsPerSecond: 1000}, cookies, nil)
	_, err := c.Fetch(context.Background(), apiSource(srv.URL))
	require.NoError(t, err)
	require.Equal(t, "granted", gotCookie)
	require.Equal(t, 1, cookies.calls)
}

func TestFetch_CookiesDoNotAccumulateAcrossFetches(t *testing.T) {
	t.Parallel()

	var counts []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n int
		for _, c := range r.Cookies() {
			if c.Name == "consent" {
				n++
			}
		}
		counts = append(counts, n)
		fmt.Fprint(w, `{"postings":[]}`)
	}))
	defer srv.Close()

	cookies := &staticCookies{cookies: []*http.Cookie{{Name: "consent", Value: "granted"}}}
	c := New(Config{RequestsPerSecond: 1000}, cookies, nil)
	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background(), apiSource(srv.URL))
		require.NoError(t, err)
	}
	require.Equal(t, []int{1, 1, 1}, counts)
}

func TestFetch_ForbiddenIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(Config{RequestsPerSecond: 1000}, nil, nil)
	_, err := c.Fetch(context.Background(), apiSource(srv.URL))
	require.ErrorIs(t, err, ticker.ErrUnauthorized)
}

func TestFetch_ServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{RequestsPerSecond: 1000}, nil, nil)
	_, err := c.Fetch(context.Background(), apiSource(srv.URL))
	require.Error(t, err)
	require.True(t, ticker.IsTransient(err))
}

func TestFetch_MalformedCursorIsLayoutChange(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"postings":[],"next":{"nested":true}}`)
	}))
	defer srv.Close()

	c := New(Config{RequestsPerSecond: 1000}, nil, nil)
	_, err := c.Fetch(context.Background(), apiSource(srv.URL))
	require.ErrorIs(t, err, ticker.ErrLayoutChanged)
}

func TestNextCursor(t *testing.T) {
	t.Parallel()

	api := ticker.APIFeed{CursorField: "next"}

	tests := []struct {
		name string
		body string
		want string
		more bool
	}{
		{name: "string cursor", body: `{"next":"abc"}`, want: "abc", more: true},
		{name: "numeric cursor keeps precision", body: `{"next":2000130527798}`, want: "2000130527798", more: true},
		{name: "missing cursor ends paging", body: `{}`, want: "", more: false},
		{name: "empty string ends paging", body: `{"next":""}`, want: "", more: false},
		{name: "zero ends paging", body: `{"next":0}`, want: "", more: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, more, err := nextCursor([]byte(tt.body), api)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.more, more)
		})
	}
}

func TestNextCursor_RejectsNonScalar(t *testing.T) {
	t.Parallel()

	_, _, err := nextCursor([]byte(`{"next":["a"]}`), ticker.APIFeed{CursorField: "next"})
	require.Error(t, err)
}
