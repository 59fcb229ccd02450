package newsapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/glabrego/newsdesk-cli/internal/feed"
)

type PollResponse struct {
	Items      []feed.Item
	Checkpoint time.Time
	Totals     *feed.Totals
}

type PageResponse struct {
	Items   []feed.Item
	Backups []feed.Item
	Totals  *feed.Totals
}

type DeleteResponse struct {
	Replacement *feed.Item
	Totals      *feed.Totals
}

type UndoResponse struct {
	Item   *feed.Item
	Totals *feed.Totals
}

type UpdateResponse struct {
	Message string
	Totals  *feed.Totals
}

type envelope struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	TotalNews  *int   `json:"total_news"`
	TotalPages *int   `json:"total_pages"`
}

func (e envelope) ok() error {
	if e.Status == "success" {
		return nil
	}
	if e.Message != "" {
		return fmt.Errorf("service reported %q: %s", e.Status, e.Message)
	}
	return fmt.Errorf("service reported status %q", e.Status)
}

func (e envelope) totals() *feed.Totals {
	if e.TotalNews == nil {
		return nil
	}
	t := feed.Totals{Items: *e.TotalNews}
	if e.TotalPages != nil {
		t.Pages = *e.TotalPages
		t.HasPages = true
	}
	return &t
}

// wireID accepts both JSON numbers and strings.
type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	*id = wireID(n.String())
	return nil
}

type wireCard struct {
	ID        wireID `json:"id"`
	Card      string `json:"card"`
	Modal     string `json:"modal"`
	Published string `json:"published"`
}

type replacement struct {
	ID        wireID `json:"id"`
	HTML      string `json:"html"`
	Modal     string `json:"modal"`
	Published string `json:"published"`
}

var errNoCardID = errors.New("card has no news-<id> element")

// cardID finds the item id in a card fragment rendered as id="news-<id>".
func cardID(card string) (feed.ID, error) {
	if strings.TrimSpace(card) == "" {
		return "", errNoCardID
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(card))
	if err != nil {
		return "", fmt.Errorf("parse card: %w", err)
	}
	var found feed.ID
	doc.Find(`[id^="news-"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw, _ := s.Attr("id")
		if v := strings.TrimPrefix(raw, "news-"); v != "" {
			found = feed.ID(v)
			return false
		}
		return true
	})
	if found == "" {
		return "", errNoCardID
	}
	return found, nil
}
