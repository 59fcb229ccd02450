package view

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	tuitheme "github.com/glabrego/newsdesk-cli/internal/tui/theme"
)

var reANSICodes = regexp.MustCompile(`\x1b\[[0-9;]*m`)

type RowLineParams struct {
	Row          Row
	Now          time.Time
	Location     *time.Location
	RelativeTime bool
	ShowNumbers  bool
	Position     int
	Active       bool
	Width        int
}

func RenderRowLine(p RowLineParams, th tuitheme.Theme) string {
	dateLabel := "[" + DateLabel(p) + "]"

	cursorMarker := " "
	if p.Active {
		cursorMarker = ">"
	}
	freshMarker := " "
	if p.Row.Fresh {
		freshMarker = "+"
	}
	prefix := fmt.Sprintf("  %s%s ", cursorMarker, freshMarker)
	if p.ShowNumbers {
		prefix = fmt.Sprintf("  %s%s%2d. ", cursorMarker, freshMarker, p.Position+1)
	}

	source := strings.TrimSpace(p.Row.Summary.Source)
	sourceLabel := ""
	if source != "" {
		sourceLabel = source + " "
	}
	available := p.Width - visibleLen(prefix) - 1 - visibleLen(sourceLabel) - visibleLen(dateLabel)
	if available < 1 {
		available = 1
	}

	label := strings.TrimSpace(p.Row.Summary.Title)
	if label == "" {
		label = "(untitled " + string(p.Row.Item.ID) + ")"
	}
	label = truncateRunes(label, available)
	styled := th.StyleItemTitle(p.Row.Fresh, label)
	gap := p.Width - visibleLen(prefix) - visibleLen(label) - visibleLen(sourceLabel) - visibleLen(dateLabel)
	if gap < 1 {
		gap = 1
	}
	right := dateLabel
	if sourceLabel != "" {
		right = th.Source.Render(source) + " " + dateLabel
	}
	return th.RenderActiveLine(p.Active, prefix+styled+strings.Repeat(" ", gap)+right)
}

// DateLabel formats the row's publication instant, in Location when set.
func DateLabel(p RowLineParams) string {
	published := p.Row.Item.PublishedAt
	if p.RelativeTime {
		return RelativeTimeLabel(p.Now, published)
	}
	if published.IsZero() {
		return "unknown"
	}
	if p.Location != nil {
		published = published.In(p.Location)
	}
	return published.Format("02/01/2006 15:04")
}

func RelativeTimeLabel(now, then time.Time) string {
	if now.IsZero() {
		now = time.Now()
	}
	if then.IsZero() {
		return "unknown"
	}
	d := now.Sub(then)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d/(24*time.Hour)), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

func truncateRunes(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return strings.Repeat(".", maxLen)
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}

func visibleLen(s string) int {
	return utf8.RuneCountInString(stripANSIText(s))
}

func stripANSIText(s string) string {
	return reANSICodes.ReplaceAllString(s, "")
}
