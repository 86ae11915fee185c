package httpds

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

const payload = "patient_id,wbc\np1,7.5\np2,6.1\np3,8.8\n"

// rangeServer serves payload with optional Range support and records the
// Range headers it received.
func rangeServer(t *testing.T, honorRange bool) (*httptest.Server, *[]string) {
	t.Helper()
	var ranges []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			return
		}

		rng := r.Header.Get("Range")
		ranges = append(ranges, rng)
		if rng == "" || !honorRange {
			fmt.Fprint(w, payload)
			return
		}

		var offset int
		if _, err := fmt.Sscanf(rng, "bytes=%d-", &offset); err != nil {
			t.Errorf("bad range header %q", rng)
		}
		if offset >= len(payload) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		fmt.Fprint(w, payload[offset:])
	}))
	t.Cleanup(srv.Close)
	return srv, &ranges
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestFetchResumeFresh(t *testing.T) {
	srv, ranges := rangeServer(t, true)
	dest := filepath.Join(t.TempDir(), "r.csv")

	c := NewClient(Config{})
	if err := c.FetchResume(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("FetchResume: %v", err)
	}
	if got := readFile(t, dest); got != payload {
		t.Fatalf("dest=%q; want full payload", got)
	}
	if len(*ranges) != 1 || (*ranges)[0] != "" {
		t.Fatalf("ranges=%v; want one un-ranged GET", *ranges)
	}
}

/*
TestFetchResumePartial verifies the resume path: with a byte prefix already
on disk, the fetch requests the remainder with a Range header and appends it,
yielding the complete file without re-downloading the prefix.
*/
func TestFetchResumePartial(t *testing.T) {
	srv, ranges := rangeServer(t, true)
	dest := filepath.Join(t.TempDir(), "r.csv")
	if err := os.WriteFile(dest, []byte(payload[:10]), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewClient(Config{})
	if err := c.FetchResume(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("FetchResume: %v", err)
	}
	if got := readFile(t, dest); got != payload {
		t.Fatalf("dest=%q; want full payload", got)
	}
	if len(*ranges) != 1 || !strings.HasPrefix((*ranges)[0], "bytes=10-") {
		t.Fatalf("ranges=%v; want a bytes=10- ranged GET", *ranges)
	}
}

func TestFetchResumeRangeIgnored(t *testing.T) {
	// A server that answers 200 to a ranged request forces a clean rewrite;
	// the destination must not end up with duplicated bytes.
	srv, _ := rangeServer(t, false)
	dest := filepath.Join(t.TempDir(), "r.csv")
	if err := os.WriteFile(dest, []byte(payload[:10]), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewClient(Config{})
	if err := c.FetchResume(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("FetchResume: %v", err)
	}
	if got := readFile(t, dest); got != payload {
		t.Fatalf("dest=%q; want full payload exactly once", got)
	}
}

func TestFetchResumeAlreadyComplete(t *testing.T) {
	srv, ranges := rangeServer(t, true)
	dest := filepath.Join(t.TempDir(), "r.csv")
	if err := os.WriteFile(dest, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewClient(Config{})
	if err := c.FetchResume(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("FetchResume: %v", err)
	}
	if got := readFile(t, dest); got != payload {
		t.Fatalf("dest=%q; file changed by a no-op fetch", got)
	}
	// The HEAD length check short-circuits; no GET is issued at all.
	if len(*ranges) != 0 {
		t.Fatalf("ranges=%v; want no GET for a complete file", *ranges)
	}
}

func TestFetchResumeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(Config{})
	dest := filepath.Join(t.TempDir(), "r.csv")
	if err := c.FetchResume(context.Background(), srv.URL, dest); err == nil {
		t.Fatal("FetchResume returned nil error for 404")
	}
	if _, err := os.Stat(dest); err == nil {
		t.Fatal("dest created despite failed fetch")
	}
}
