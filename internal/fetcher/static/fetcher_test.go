package static

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/basislager/tickerchronik/internal/ticker"
)

func TestFetch_ReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>ticker</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "chronik-test"}, nil)
	snap, err := f.Fetch(context.Background(), ticker.Source{Key: "static", URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "static", snap.Source)
	require.Contains(t, string(snap.Body), "ticker")
	require.False(t, snap.CapturedAt.IsZero())
	require.Greater(t, snap.Duration, time.Duration(0))
}

func TestFetch_SendsUserAgent(t *testing.T) {
	t.Parallel()

	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.UserAgent()
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "chronik-test/1.0"}, nil)
	_, err := f.Fetch(context.Background(), ticker.Source{Key: "static", URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "chronik-test/1.0", gotAgent)
}

func TestFetch_ForbiddenIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := New(Config{}, nil)
	_, err := f.Fetch(context.Background(), ticker.Source{Key: "static", URL: srv.URL})
	require.ErrorIs(t, err, ticker.ErrUnauthorized)
	require.False(t, ticker.IsTransient(err))
}

func TestFetch_ServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := New(Config{}, nil)
	_, err := f.Fetch(context.Background(), ticker.Source{Key: "static", URL: srv.URL})
	require.Error(t, err)
	require.True(t, ticker.IsTransient(err))
}

func TestFetch_UnreachableHostIsTransient(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: time.Second}, nil)
	_, err := f.Fetch(context.Background(), ticker.Source{Key: "static", URL: "http://127.0.0.1:1/ticker"})
	require.Error(t, err)
	require.True(t, ticker.IsTransient(err))
}

func TestClassifyFetchError(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")

	require.ErrorIs(t, classifyFetchError(http.StatusUnauthorized, base), ticker.ErrUnauthorized)
	require.True(t, ticker.IsTransient(classifyFetchError(0, base)))
	require.True(t, ticker.IsTransient(classifyFetchError(http.StatusInternalServerError, base)))
}
