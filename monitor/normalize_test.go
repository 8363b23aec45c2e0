package monitor

import (
	"errors"
	"testing"
)

func TestNormalizeEndpoint(t *testing.T) {
	// WHAT: equivalent URLs normalize to the same string so endpoint
	// dedup works; invalid ones are rejected with ErrInvalidInput.
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"lowercases host", "https://SEC.Example.GOV/rules", "https://sec.example.gov/rules", true},
		{"strips fragment", "https://x.example/page#section-2", "https://x.example/page", true},
		{"strips trailing slash", "https://x.example/feed/", "https://x.example/feed", true},
		{"keeps root", "https://x.example", "https://x.example", true},
		{"sorts query params", "https://x.example/q?b=2&a=1", "https://x.example/q?a=1&b=2", true},
		{"no https upgrade", "http://x.example/feed", "http://x.example/feed", true},
		{"empty", "", "", false},
		{"no scheme", "x.example/feed", "", false},
		{"ftp", "ftp://x.example/feed", "", false},
		{"missing host", "https:///path", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeEndpoint(tc.in)
			if tc.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tc.want {
					t.Errorf("got %q, want %q", got, tc.want)
				}
				return
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestNormalizeEndpoint_Idempotent(t *testing.T) {
	// WHAT: normalizing twice changes nothing.
	in := "https://SEC.Example.GOV/rules/?b=2&a=1#frag"
	once, err := NormalizeEndpoint(in)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	twice, err := NormalizeEndpoint(once)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if once != twice {
		t.Errorf("not idempotent: %q then %q", once, twice)
	}
}
