package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// minLinkTextLen filters out navigation chrome ("Home", "Next", ...).
const minLinkTextLen = 20

// extractHTML pulls document links out of a regulator listing page.
// It walks landmark containers (main, article, section, list items) and
// treats each sufficiently descriptive anchor as one candidate. Pages
// without landmarks fall back to a whole-document anchor scan.
func extractHTML(sourceID, baseURL string, content []byte) ([]Candidate, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("parse html: %w", err)}
	}

	anchors := collectAnchors(findLandmarks(doc))
	if len(anchors) == 0 {
		anchors = collectAnchors([]*html.Node{doc})
	}

	seen := make(map[string]bool)
	var candidates []Candidate
	for _, a := range anchors {
		if len(candidates) >= maxCandidates {
			break
		}
		title := cleanText(nodeText(a))
		if len(title) < minLinkTextLen {
			continue
		}
		link := resolveURL(baseURL, attrVal(a, "href"))
		if link == "" || strings.HasPrefix(link, "javascript:") || strings.HasPrefix(link, "mailto:") {
			continue
		}
		if seen[link] {
			continue
		}
		seen[link] = true
		candidates = append(candidates, Candidate{
			SourceID:   sourceID,
			Title:      title,
			ContentURL: link,
			Impact:     classifyImpact(title, ""),
		})
	}
	return candidates, nil
}

// findLandmarks returns content containers, skipping boilerplate
// (nav, header, footer, aside).
func findLandmarks(doc *html.Node) []*html.Node {
	var landmarks []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Nav, atom.Header, atom.Footer, atom.Aside, atom.Script, atom.Style:
				return
			case atom.Main, atom.Article, atom.Section, atom.Ul, atom.Ol, atom.Table:
				landmarks = append(landmarks, n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return landmarks
}

func collectAnchors(roots []*html.Node) []*html.Node {
	var anchors []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Nav, atom.Script, atom.Style:
				return
			case atom.A:
				anchors = append(anchors, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, root := range roots {
		walk(root)
	}
	return anchors
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
