// Package extract turns raw fetched content into candidate change
// records. Extraction is a pure function of its inputs: no I/O, no
// shared state.
//
// Source types form a closed set (feed, html, api); each dispatches to
// its own parser.
package extract

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// ErrorKind classifies an extraction failure.
type ErrorKind string

const (
	KindMalformed       ErrorKind = "malformed"
	KindUnsupportedType ErrorKind = "unsupported_type"
)

// Error is a classified extraction failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Candidate is an unconfirmed extracted item. Ephemeral: produced and
// consumed within one check cycle.
type Candidate struct {
	SourceID    string
	Title       string
	ContentURL  string
	Description string
	Impact      string // LOW | MEDIUM | HIGH | CRITICAL
	PublishedAt time.Time
}

const maxCandidates = 100

// stripPolicy removes all markup, leaving plain text.
var stripPolicy = bluemonday.StrictPolicy()

// Extract parses content of the given source type into candidates.
// baseURL resolves relative links found in the content.
func Extract(sourceType, sourceID, baseURL string, content []byte) ([]Candidate, error) {
	switch sourceType {
	case "feed":
		return extractFeed(sourceID, baseURL, content)
	case "html":
		return extractHTML(sourceID, baseURL, content)
	case "api":
		return extractAPI(sourceID, baseURL, content)
	default:
		return nil, &Error{Kind: KindUnsupportedType,
			Err: fmt.Errorf("unknown source type %q", sourceType)}
	}
}

// cleanText strips markup and collapses whitespace.
func cleanText(s string) string {
	s = stripPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// parseWhen tries the date layouts seen across regulator feeds.
// Returns the zero time when no layout matches: published dates are
// optional on candidates.
func parseWhen(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	layouts := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC3339,
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
