package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, baseURL string, retry RetryPolicy) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:        baseURL,
		Headers:        map[string]string{"Authorization": "Bearer token"},
		RequestTimeout: 5 * time.Second,
		Retry:          retry,
		Logger:         zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestClient_Get(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, RetryPolicy{})
	body, err := c.Get(context.Background(), "/api/0/issues", url.Values{"query": {"is:unresolved"}})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if string(body) != `{"ok": true}` {
		t.Errorf("body = %s", body)
	}
	if gotPath != "/api/0/issues" {
		t.Errorf("path = %s", gotPath)
	}
	if gotQuery.Get("query") != "is:unresolved" {
		t.Errorf("query = %v", gotQuery)
	}
	if gotAuth != "Bearer token" {
		t.Errorf("Authorization = %s", gotAuth)
	}
}

func TestClient_BaseURLWithPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api/0/", RetryPolicy{})
	if _, err := c.Get(context.Background(), "/issues", nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotPath != "/api/0/issues" {
		t.Errorf("path = %s, want /api/0/issues", gotPath)
	}
}

func TestClient_StatusError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, RetryPolicy{
		Enabled:     true,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	})

	_, err := c.Get(context.Background(), "/missing", nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("got %v, want StatusError", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Errorf("Code = %d, want 404", statusErr.Code)
	}
	// 404 is not retryable
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("upstream called %d times, want 1", got)
	}
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, RetryPolicy{
		Enabled:     true,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	})

	body, err := c.Get(context.Background(), "/flaky", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != `{"ok": true}` {
		t.Errorf("body = %s", body)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("upstream called %d times, want 3", got)
	}
}

func TestClient_AllAttemptsFailed(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, RetryPolicy{
		Enabled:     true,
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	})

	_, err := c.Get(context.Background(), "/broken", nil)
	if !errors.Is(err, ErrAllAttemptsFailed) {
		t.Errorf("got %v, want ErrAllAttemptsFailed", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("upstream called %d times, want 2", got)
	}
}

func TestClient_RetryDisabled(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, RetryPolicy{Enabled: false})

	_, err := c.Get(context.Background(), "/broken", nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusInternalServerError {
		t.Errorf("got %v, want 500 StatusError", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("upstream called %d times, want 1", got)
	}
}
