// Package fetch implements the HTTP content fetcher for monitored
// sources, with conditional GET support and typed failure kinds.
package fetch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/veillelab/regwatch/safeurl"
)

// ErrorKind classifies a fetch failure.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindConnectionRefused ErrorKind = "connection_refused"
	KindHTTPStatus        ErrorKind = "http_status"
	KindOther             ErrorKind = "other"
)

// Error is a classified fetch failure.
type Error struct {
	Kind   ErrorKind
	Status int // set for KindHTTPStatus
	URL    string
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result contains the outcome of a successful fetch.
type Result struct {
	Body       []byte
	StatusCode int
	Hash       string // SHA-256 of body
	ETag       string
	LastMod    string
	NotModified bool // true on 304
}

// Config configures the fetcher.
type Config struct {
	Timeout  time.Duration // per-request timeout. Default: 30s.
	MaxBytes int64         // max response body size. Default: 10MB.
	// UserAgent sent with requests.
	UserAgent string
	// URLValidator validates URLs before fetch (SSRF prevention).
	// Default: safeurl.Validate.
	URLValidator func(string) error
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "regwatch/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = safeurl.Validate
	}
}

// Fetcher performs HTTP requests with conditional GET.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher with SSRF protection on redirects.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Fetcher{
		client: &http.Client{
			// No client-level timeout: cancellation runs through the
			// request context so callers control the deadline.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch retrieves a URL. The request is bounded by the configured
// timeout and by ctx, whichever expires first. Optional etag/lastMod
// enable conditional GET; a 304 comes back as NotModified with no body.
func (f *Fetcher) Fetch(ctx context.Context, url, etag, lastMod string) (*Result, error) {
	if err := f.config.URLValidator(url); err != nil {
		return nil, &Error{Kind: KindOther, URL: url, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: KindOther, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: classify(err), URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{
			StatusCode:  resp.StatusCode,
			NotModified: true,
			ETag:        resp.Header.Get("ETag"),
			LastMod:     resp.Header.Get("Last-Modified"),
		}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, &Error{Kind: KindHTTPStatus, Status: resp.StatusCode, URL: url,
			Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return nil, &Error{Kind: classify(err), URL: url, Err: err}
	}

	h := sha256.Sum256(body)
	return &Result{
		Body:       body,
		StatusCode: resp.StatusCode,
		Hash:       fmt.Sprintf("%x", h),
		ETag:       resp.Header.Get("ETag"),
		LastMod:    resp.Header.Get("Last-Modified"),
	}, nil
}

// classify maps transport errors to failure kinds.
func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}
	return KindOther
}
