package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// allowAll bypasses SSRF validation so tests can hit loopback servers.
func allowAll(string) error { return nil }

func newTestFetcher(timeout time.Duration) *Fetcher {
	return New(Config{Timeout: timeout, URLValidator: allowAll})
}

func TestFetch_Success(t *testing.T) {
	// WHAT: A 200 response yields body, status, and a stable content hash.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("<rss></rss>"))
	}))
	defer srv.Close()

	res, err := newTestFetcher(5*time.Second).Fetch(context.Background(), srv.URL, "", "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(res.Body) != "<rss></rss>" {
		t.Errorf("body: %q", res.Body)
	}
	if res.ETag != `"v1"` {
		t.Errorf("etag: %q", res.ETag)
	}
	if len(res.Hash) != 64 {
		t.Errorf("hash length: %d", len(res.Hash))
	}
}

func TestFetch_NotModified(t *testing.T) {
	// WHAT: A 304 response comes back as NotModified, not an error.
	// WHY: Conditional GET is the cheap path for unchanged feeds.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte("content"))
	}))
	defer srv.Close()

	res, err := newTestFetcher(5*time.Second).Fetch(context.Background(), srv.URL, `"v1"`, "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !res.NotModified {
		t.Error("expected NotModified")
	}
}

func TestFetch_HTTPStatusError(t *testing.T) {
	// WHAT: 4xx/5xx become a typed Error with KindHTTPStatus and the code.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher(5*time.Second).Fetch(context.Background(), srv.URL, "", "")
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if fe.Kind != KindHTTPStatus || fe.Status != 404 {
		t.Errorf("kind=%s status=%d", fe.Kind, fe.Status)
	}
}

func TestFetch_Timeout(t *testing.T) {
	// WHAT: A slow server trips the configured timeout with KindTimeout.
	// WHY: One hung endpoint must not hold a scheduler worker forever.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := newTestFetcher(50*time.Millisecond).Fetch(context.Background(), srv.URL, "", "")
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if fe.Kind != KindTimeout {
		t.Errorf("kind: got %s, want timeout", fe.Kind)
	}
}

func TestFetch_CancelledContext(t *testing.T) {
	// WHAT: Cancelling the caller context aborts an in-flight fetch.
	// WHY: Scheduler stop must cancel checks rather than wait them out.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := newTestFetcher(10*time.Second).Fetch(ctx, srv.URL, "", "")
	if err == nil {
		t.Fatal("expected error after cancel")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("cancel did not abort the fetch promptly")
	}
}

func TestFetch_BodyLimit(t *testing.T) {
	// WHAT: Bodies are truncated at MaxBytes.
	// WHY: A misbehaving source must not exhaust memory.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 1024)))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second, MaxBytes: 100, URLValidator: allowAll})
	res, err := f.Fetch(context.Background(), srv.URL, "", "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Body) != 100 {
		t.Errorf("body length: got %d, want 100", len(res.Body))
	}
}

func TestFetch_BlockedURL(t *testing.T) {
	// WHAT: The default validator rejects loopback endpoints before any request.
	f := New(Config{})
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:9/x", "", "")
	if err == nil {
		t.Fatal("expected validation error")
	}
}
