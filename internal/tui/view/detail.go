package view

import (
	"strings"
	"time"

	"github.com/glabrego/newsdesk-cli/internal/render/card"
)

type WrapFunc func(string, int) []string

func DetailMetaLines(row Row, loc *time.Location, width int, wrap WrapFunc) []string {
	title := strings.TrimSpace(row.Summary.Title)
	if title == "" {
		title = "(untitled)"
	}
	lines := make([]string, 0, 12)
	lines = append(lines, wrap(title, width)...)
	lines = append(lines, strings.Repeat("=", max(1, min(width, len([]rune(title))))))
	lines = append(lines, "")

	if row.Summary.Source != "" {
		lines = append(lines, wrap("Source: "+row.Summary.Source, width)...)
	}
	published := row.Item.PublishedAt
	if loc != nil {
		published = published.In(loc)
	}
	lines = append(lines, "Date: "+published.Format(time.RFC3339))
	if row.Summary.Link != "" {
		lines = append(lines, wrap("Link: "+row.Summary.Link, width)...)
	}
	lines = append(lines, "ID: "+string(row.Item.ID))
	return lines
}

// DetailLines renders the metadata block followed by the modal payload, or
// the card when the item has no modal.
func DetailLines(row Row, loc *time.Location, width, horizontalMargin int) []string {
	lines := DetailMetaLines(row, loc, width, card.Wrap)
	body := row.Item.Payload.Modal
	if strings.TrimSpace(body) == "" {
		body = row.Item.Payload.Card
	}
	if content := card.Lines(body, width); len(content) > 0 {
		lines = append(lines, "")
		lines = append(lines, content...)
	}
	return leftPadLines(lines, horizontalMargin)
}

func DetailMaxTop(linesLen, bodyHeight int) int {
	maxTop := linesLen - bodyHeight
	if maxTop < 0 {
		return 0
	}
	return maxTop
}

func RenderDetailLines(lines []string, top, maxLines int) string {
	if len(lines) == 0 {
		return ""
	}
	if top < 0 {
		top = 0
	}
	if top > len(lines)-1 {
		top = len(lines) - 1
	}
	end := len(lines)
	if maxLines > 0 && top+maxLines < end {
		end = top + maxLines
	}
	return strings.Join(lines[top:end], "\n") + "\n"
}

func leftPadLines(lines []string, margin int) []string {
	if margin <= 0 {
		return lines
	}
	pad := strings.Repeat(" ", margin)
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return lines
}
