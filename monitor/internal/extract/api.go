package extract

import (
	"encoding/json"
	"fmt"
)

// apiItem maps the field spellings seen across regulator JSON APIs.
type apiItem struct {
	Title       string `json:"title"`
	Name        string `json:"name"`
	Headline    string `json:"headline"`
	URL         string `json:"url"`
	Link        string `json:"link"`
	Href        string `json:"href"`
	ContentURL  string `json:"content_url"`
	Description string `json:"description"`
	Summary     string `json:"summary"`
	Published   string `json:"published"`
	PublishedAt string `json:"published_at"`
	Date        string `json:"date"`
}

// apiEnvelope matches object-wrapped responses: {"items": [...]} etc.
type apiEnvelope struct {
	Items   []apiItem `json:"items"`
	Results []apiItem `json:"results"`
	Entries []apiItem `json:"entries"`
	Data    []apiItem `json:"data"`
}

// extractAPI parses a JSON API response into candidates. Both a
// top-level array and the common envelope keys (items, results,
// entries, data) are accepted.
func extractAPI(sourceID, baseURL string, content []byte) ([]Candidate, error) {
	var items []apiItem
	if err := json.Unmarshal(content, &items); err != nil {
		var env apiEnvelope
		if err := json.Unmarshal(content, &env); err != nil {
			return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("parse json: %w", err)}
		}
		switch {
		case env.Items != nil:
			items = env.Items
		case env.Results != nil:
			items = env.Results
		case env.Entries != nil:
			items = env.Entries
		case env.Data != nil:
			items = env.Data
		default:
			return nil, &Error{Kind: KindMalformed,
				Err: fmt.Errorf("no recognizable item array in response")}
		}
	}

	if len(items) > maxCandidates {
		items = items[:maxCandidates]
	}

	candidates := make([]Candidate, 0, len(items))
	for _, item := range items {
		title := cleanText(first(item.Title, item.Name, item.Headline))
		link := resolveURL(baseURL, first(item.URL, item.Link, item.Href, item.ContentURL))
		if title == "" || link == "" {
			continue
		}
		desc := cleanText(first(item.Description, item.Summary))
		candidates = append(candidates, Candidate{
			SourceID:    sourceID,
			Title:       title,
			ContentURL:  link,
			Description: desc,
			Impact:      classifyImpact(title, desc),
			PublishedAt: parseWhen(first(item.Published, item.PublishedAt, item.Date)),
		})
	}
	return candidates, nil
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
