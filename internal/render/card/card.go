// Package card reads the HTML fragments the news service sends for each item.
// It only looks at them for display; the sync engine never does.
package card

import (
	"html"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	nethtml "golang.org/x/net/html"

	"github.com/glabrego/newsdesk-cli/internal/feed"
)

// Summary is what a single list row needs.
type Summary struct {
	Title  string
	Link   string
	Source string
	Date   string
}

var titleSelectors = []string{".news-title", "h1", "h2", "h3", "h4", ".card-title", "a"}

// Inspect extracts a Summary from the card, falling back to the modal for
// anything the card does not carry.
func Inspect(p feed.Payload) Summary {
	var s Summary
	for _, fragment := range []string{p.Card, p.Modal} {
		doc := parse(fragment)
		if doc == nil {
			continue
		}
		if s.Title == "" {
			s.Title = firstText(doc, titleSelectors...)
		}
		if s.Link == "" {
			s.Link = firstLink(doc)
		}
		if s.Source == "" {
			s.Source = firstText(doc, ".news-source", ".source")
		}
		if s.Date == "" {
			s.Date = firstText(doc, ".news-date", "time")
		}
	}
	if s.Title == "" {
		s.Title = firstLine(Text(p.Card))
	}
	return s
}

// Text flattens a fragment to plain text, one block per line.
func Text(fragment string) string {
	return strings.Join(Lines(fragment, 0), "\n")
}

func parse(fragment string) *goquery.Document {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil
	}
	root, err := nethtml.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil
	}
	return goquery.NewDocumentFromNode(root)
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := normalize(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstLink(doc *goquery.Document) string {
	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return true
		}
		link = u.String()
		return false
	})
	return link
}

func normalize(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
