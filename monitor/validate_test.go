package monitor

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validSource() *Source {
	return &Source{
		ID:            "src-1",
		Name:          "SEC Press Releases",
		Endpoint:      "https://sec.example.gov/feed.xml",
		SourceType:    TypeFeed,
		CheckInterval: time.Hour,
	}
}

func TestValidateSourceInput(t *testing.T) {
	// WHAT: each operator-set field is bounds-checked; every rejection
	// wraps ErrInvalidInput.
	cases := []struct {
		name   string
		mutate func(*Source)
		ok     bool
	}{
		{"valid", func(*Source) {}, true},
		{"html type", func(s *Source) { s.SourceType = TypeHTML }, true},
		{"api type", func(s *Source) { s.SourceType = TypeAPI }, true},
		{"min interval", func(s *Source) { s.CheckInterval = time.Minute }, true},
		{"max interval", func(s *Source) { s.CheckInterval = 7 * 24 * time.Hour }, true},
		{"empty name", func(s *Source) { s.Name = "" }, false},
		{"name too long", func(s *Source) { s.Name = strings.Repeat("x", maxNameLen+1) }, false},
		{"empty endpoint", func(s *Source) { s.Endpoint = "" }, false},
		{"endpoint too long", func(s *Source) { s.Endpoint = "https://x/" + strings.Repeat("a", maxEndpointLen) }, false},
		{"unknown type", func(s *Source) { s.SourceType = "pdf" }, false},
		{"interval too short", func(s *Source) { s.CheckInterval = 30 * time.Second }, false},
		{"interval too long", func(s *Source) { s.CheckInterval = 8 * 24 * time.Hour }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := validSource()
			tc.mutate(s)
			err := validateSourceInput(s)
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}
