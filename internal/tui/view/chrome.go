package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/glabrego/newsdesk-cli/internal/feed"
	"github.com/glabrego/newsdesk-cli/internal/notify"
	tuitheme "github.com/glabrego/newsdesk-cli/internal/tui/theme"
)

type FooterParams struct {
	Page       int
	Shown      int
	Totals     feed.Totals
	HasTotals  bool
	Checkpoint time.Time
	Query      string
}

func Footer(p FooterParams, th tuitheme.Theme) string {
	total := "?"
	pages := "?"
	if p.HasTotals {
		total = fmt.Sprintf("%d", p.Totals.Items)
		if p.Totals.HasPages {
			pages = fmt.Sprintf("%d", p.Totals.Pages)
		}
	}
	parts := []string{
		th.MetaLabel.Render("page") + " " + th.MetaValue.Render(fmt.Sprintf("%d/%s", p.Page, pages)),
		th.MetaValue.Render(fmt.Sprintf("%d shown", p.Shown)),
		th.MetaLabel.Render("total") + " " + th.Count.Render(total),
	}
	if !p.Checkpoint.IsZero() {
		parts = append(parts, th.MetaLabel.Render("checked")+" "+th.MetaValue.Render(p.Checkpoint.Local().Format(time.TimeOnly)))
	}
	if p.Query != "" {
		parts = append(parts, th.MetaLabel.Render("query")+" "+th.MetaValue.Render(fmt.Sprintf("%q", p.Query)))
	}
	return strings.Join(parts, " • ")
}

// Message renders the status line. spinner is shown in front of the state
// while work is outstanding.
func Message(busy bool, spinner, status, warning string, th tuitheme.Theme) string {
	stateLabel := th.StateIdle.Render("state")
	state := "idle"
	switch {
	case warning != "":
		stateLabel = th.StateWarn.Render("state")
		state = "warning"
	case busy:
		stateLabel = th.StateLoad.Render("state")
		state = "syncing"
		if spinner != "" {
			state = spinner + " " + state
		}
	}
	main := "Ready"
	if status != "" {
		main = status
	} else if warning != "" {
		main = warning
	}
	return fmt.Sprintf("%s: %s | %s", stateLabel, state, th.MetaValue.Render(main))
}

// Banner renders the new-items notification, or "" while it is hidden.
func Banner(s notify.State, th tuitheme.Theme) string {
	if !s.Shown() {
		return ""
	}
	noun := "new items"
	if s.Pending == 1 {
		noun = "new item"
	}
	seconds := int((s.Remaining + time.Second - 1) / time.Second)
	if s.Phase == notify.Frozen {
		return th.BannerFrozen.Render(fmt.Sprintf("%d %s (paused, %ds left)", s.Pending, noun, seconds))
	}
	return th.Banner.Render(fmt.Sprintf("%d %s (%ds) • space to dismiss", s.Pending, noun, seconds))
}
