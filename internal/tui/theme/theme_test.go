package theme

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func TestStyleItemTitle_ByFreshness(t *testing.T) {
	lipgloss.SetColorProfile(termenv.ANSI)
	th := Default()

	fresh := th.StyleItemTitle(true, "Nueva")
	if !strings.Contains(fresh, "\x1b[") {
		t.Fatalf("expected styled fresh title, got %q", fresh)
	}

	seen := th.StyleItemTitle(false, "Vista")
	if !strings.Contains(seen, "\x1b[") {
		t.Fatalf("expected styled title, got %q", seen)
	}
	if fresh == th.StyleItemTitle(false, "Nueva") {
		t.Fatal("expected fresh and seen titles to differ")
	}

	if got := th.StyleItemTitle(true, ""); got != "" {
		t.Fatalf("expected empty title to stay empty, got %q", got)
	}
}

func TestRenderActiveLine(t *testing.T) {
	lipgloss.SetColorProfile(termenv.ANSI)
	th := Default()

	if got := th.RenderActiveLine(false, "line"); got != "line" {
		t.Fatalf("expected inactive line untouched, got %q", got)
	}
	if got := th.RenderActiveLine(true, "line"); !strings.Contains(got, "\x1b[") {
		t.Fatalf("expected styled active line, got %q", got)
	}
}
