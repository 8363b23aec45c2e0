package extract

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
)

// extractFeed parses RSS 2.0 or Atom 1.0 XML into candidates.
// The format is auto-detected from the root element:
//   - <rss ...> or <rdf ...> → RSS
//   - <feed ...> → Atom
func extractFeed(sourceID, baseURL string, content []byte) ([]Candidate, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("empty feed")}
	}

	switch detectFeedFormat(trimmed) {
	case "rss":
		return extractRSS(sourceID, baseURL, content)
	case "atom":
		return extractAtom(sourceID, baseURL, content)
	default:
		return nil, &Error{Kind: KindMalformed,
			Err: fmt.Errorf("unknown feed format (expected <rss> or <feed>)")}
	}
}

func detectFeedFormat(content []byte) string {
	d := xml.NewDecoder(bytes.NewReader(content))
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok {
			switch strings.ToLower(se.Name.Local) {
			case "rss", "rdf":
				return "rss"
			case "feed":
				return "atom"
			default:
				return ""
			}
		}
	}
}

// resolveURL resolves a possibly relative link against the source endpoint.
func resolveURL(baseURL, link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return base.ResolveReference(ref).String()
}

// --- RSS 2.0 ---

type rssRoot struct {
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

func extractRSS(sourceID, baseURL string, content []byte) ([]Candidate, error) {
	var root rssRoot
	if err := xml.Unmarshal(content, &root); err != nil {
		return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("parse rss: %w", err)}
	}

	items := root.Channel.Items
	if len(items) > maxCandidates {
		items = items[:maxCandidates]
	}

	candidates := make([]Candidate, 0, len(items))
	for _, item := range items {
		title := cleanText(item.Title)
		link := resolveURL(baseURL, item.Link)
		if link == "" {
			link = resolveURL(baseURL, item.GUID)
		}
		if title == "" || link == "" {
			continue
		}
		desc := cleanText(item.Description)
		candidates = append(candidates, Candidate{
			SourceID:    sourceID,
			Title:       title,
			ContentURL:  link,
			Description: desc,
			Impact:      classifyImpact(title, desc),
			PublishedAt: parseWhen(item.PubDate),
		})
	}
	return candidates, nil
}

// --- Atom 1.0 ---

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	ID        string     `xml:"id"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

func extractAtom(sourceID, baseURL string, content []byte) ([]Candidate, error) {
	var root atomFeed
	if err := xml.Unmarshal(content, &root); err != nil {
		return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("parse atom: %w", err)}
	}

	entries := root.Entries
	if len(entries) > maxCandidates {
		entries = entries[:maxCandidates]
	}

	candidates := make([]Candidate, 0, len(entries))
	for _, entry := range entries {
		title := cleanText(entry.Title)
		link := resolveURL(baseURL, atomEntryLink(entry))
		if title == "" || link == "" {
			continue
		}
		published := entry.Published
		if published == "" {
			published = entry.Updated
		}
		desc := cleanText(entry.Summary)
		candidates = append(candidates, Candidate{
			SourceID:    sourceID,
			Title:       title,
			ContentURL:  link,
			Description: desc,
			Impact:      classifyImpact(title, desc),
			PublishedAt: parseWhen(published),
		})
	}
	return candidates, nil
}

// atomEntryLink prefers rel="alternate", then the entry ID if it is a URL.
func atomEntryLink(entry atomEntry) string {
	for _, l := range entry.Links {
		if l.Rel == "alternate" || l.Rel == "" {
			return l.Href
		}
	}
	if len(entry.Links) > 0 {
		return entry.Links[0].Href
	}
	if strings.HasPrefix(entry.ID, "http") {
		return entry.ID
	}
	return ""
}
