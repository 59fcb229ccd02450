package feed

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	nethtml "golang.org/x/net/html"
)

// LegacyLayout is the day-first format printed on news cards.
const LegacyLayout = "02/01/2006 15:04"

var ErrNoTimestamp = errors.New("no publication timestamp")

var reLegacyTimestamp = regexp.MustCompile(`\b(\d{2}/\d{2}/\d{4} \d{2}:\d{2})\b`)

// TimestampParser derives the publication instant of an item. A typed
// RFC 3339 value always wins; the card text is only consulted when the
// service did not send one.
type TimestampParser struct {
	Location *time.Location
}

func (p TimestampParser) Parse(published, card string) (time.Time, error) {
	if published = strings.TrimSpace(published); published != "" {
		t, err := time.Parse(time.RFC3339, published)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse published %q: %w", published, err)
		}
		return t, nil
	}
	if strings.TrimSpace(card) == "" {
		return time.Time{}, ErrNoTimestamp
	}
	return p.fromCard(card)
}

func (p TimestampParser) fromCard(card string) (time.Time, error) {
	root, err := nethtml.Parse(strings.NewReader(card))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse card html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	if attr, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(attr)); err == nil {
			return t, nil
		}
		if t, ok := p.legacy(attr); ok {
			return t, nil
		}
	}
	if t, ok := p.legacy(doc.Find(".news-date").First().Text()); ok {
		return t, nil
	}
	if t, ok := p.legacy(doc.Text()); ok {
		return t, nil
	}
	return time.Time{}, ErrNoTimestamp
}

func (p TimestampParser) legacy(text string) (time.Time, bool) {
	match := reLegacyTimestamp.FindStringSubmatch(text)
	if match == nil {
		return time.Time{}, false
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(LegacyLayout, match[1], loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
