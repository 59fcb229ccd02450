package theme

import (
	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Title      lipgloss.Style
	ModePill   lipgloss.Style
	Section    lipgloss.Style
	Count      lipgloss.Style
	ActiveLine lipgloss.Style
	MetaLabel  lipgloss.Style
	MetaValue  lipgloss.Style
	StateIdle  lipgloss.Style
	StateWarn  lipgloss.Style
	StateLoad  lipgloss.Style

	Banner       lipgloss.Style
	BannerFrozen lipgloss.Style

	TitleFresh lipgloss.Style
	TitleItem  lipgloss.Style
	Source     lipgloss.Style
}

func Default() Theme {
	cpMauve := lipgloss.Color("#cba6f7")
	cpRed := lipgloss.Color("#f38ba8")
	cpPeach := lipgloss.Color("#fab387")
	cpYellow := lipgloss.Color("#f9e2af")
	cpGreen := lipgloss.Color("#a6e3a1")
	cpTeal := lipgloss.Color("#94e2d5")
	cpLavender := lipgloss.Color("#b4befe")
	cpText := lipgloss.Color("#cdd6f4")
	cpSubtext1 := lipgloss.Color("#bac2de")
	cpOverlay1 := lipgloss.Color("#7f849c")
	cpSurface0 := lipgloss.Color("#313244")
	cpBase := lipgloss.Color("#1e1e2e")

	return Theme{
		Title:      lipgloss.NewStyle().Bold(true).Foreground(cpMauve),
		ModePill:   lipgloss.NewStyle().Foreground(cpLavender).Background(cpSurface0).Padding(0, 1),
		Section:    lipgloss.NewStyle().Bold(true).Foreground(cpTeal),
		Count:      lipgloss.NewStyle().Foreground(cpYellow).Bold(true),
		ActiveLine: lipgloss.NewStyle().Background(cpSurface0).Foreground(cpText),
		MetaLabel:  lipgloss.NewStyle().Foreground(cpOverlay1),
		MetaValue:  lipgloss.NewStyle().Foreground(cpSubtext1),
		StateIdle:  lipgloss.NewStyle().Foreground(cpGreen),
		StateWarn:  lipgloss.NewStyle().Foreground(cpRed),
		StateLoad:  lipgloss.NewStyle().Foreground(cpPeach),

		Banner:       lipgloss.NewStyle().Bold(true).Foreground(cpBase).Background(cpGreen).Padding(0, 1),
		BannerFrozen: lipgloss.NewStyle().Foreground(cpBase).Background(cpOverlay1).Padding(0, 1),

		TitleFresh: lipgloss.NewStyle().Bold(true).Foreground(cpGreen),
		TitleItem:  lipgloss.NewStyle().Foreground(cpText),
		Source:     lipgloss.NewStyle().Italic(true).Foreground(cpOverlay1),
	}
}

// StyleItemTitle highlights items that arrived since the notification was
// last cleared.
func (t Theme) StyleItemTitle(fresh bool, title string) string {
	if title == "" {
		return title
	}
	if fresh {
		return t.TitleFresh.Render(title)
	}
	return t.TitleItem.Render(title)
}

func (t Theme) RenderActiveLine(active bool, line string) string {
	if !active {
		return line
	}
	return t.ActiveLine.Render(line)
}
