package httpds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newTestClient builds a client with retries and a recording no-op sleep.
func newTestClient(maxRetries int) (*Client, *[]time.Duration) {
	c := NewClient(Config{
		MaxRetries:     maxRetries,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     400 * time.Millisecond,
	})
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }
	return c, &slept
}

func TestDoSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, slept := newTestClient(3)
	resp, err := c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if len(*slept) != 0 {
		t.Fatalf("slept %v on a clean request; want no backoff", *slept)
	}
}

/*
TestDoRetriesTransient verifies that 5xx responses are retried with
exponentially growing backoff until the server recovers.
*/
func TestDoRetriesTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, slept := newTestClient(3)
	resp, err := c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("server saw %d calls; want 3", got)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Fatalf("backoffs=%v; want %v", *slept, want)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := newTestClient(2)
	if _, err := c.Get(context.Background(), srv.URL, nil); err == nil {
		t.Fatal("Get returned nil error after exhausting retries")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("server saw %d calls; want 3 (initial + 2 retries)", got)
	}
}

func TestDoNoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newTestClient(3)
	resp, err := c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d; want 404 returned to the caller", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("server saw %d calls; want 1 (4xx is final)", got)
	}
}

func TestDoEmptyURL(t *testing.T) {
	c, _ := newTestClient(0)
	if _, err := c.Do(context.Background(), http.MethodGet, "", nil); err == nil {
		t.Fatal("Do with empty URL returned nil error")
	}
}

func TestDoCanceledContext(t *testing.T) {
	c, _ := newTestClient(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Do(ctx, http.MethodGet, "http://example.invalid/", nil); err == nil {
		t.Fatal("Do with canceled context returned nil error")
	}
}

func TestBackoffDuration(t *testing.T) {
	initial := 100 * time.Millisecond
	max := 400 * time.Millisecond

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 400 * time.Millisecond}, // clamped
		{62, 400 * time.Millisecond},
		{63, 400 * time.Millisecond}, // overflow clamps to max
	}
	for _, tc := range tests {
		if got := backoffDuration(initial, tc.attempt, max); got != tc.want {
			t.Errorf("backoffDuration(attempt=%d)=%v; want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestIsRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 599} {
		if !isRetryableStatus(code) {
			t.Errorf("isRetryableStatus(%d)=false; want true", code)
		}
	}
	for _, code := range []int{200, 301, 400, 404, 416} {
		if isRetryableStatus(code) {
			t.Errorf("isRetryableStatus(%d)=true; want false", code)
		}
	}
}
