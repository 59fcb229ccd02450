package card

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	nethtml "golang.org/x/net/html"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#b4befe"))
	quotePrefix  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7f849c")).Render("│ ")
)

// Lines renders a fragment as wrapped terminal lines. A width below 1
// disables wrapping and styling.
func Lines(fragment string, width int) []string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil
	}
	doc, err := nethtml.Parse(strings.NewReader("<html><body>" + fragment + "</body></html>"))
	if err != nil {
		return wrapText(normalize(fragment), width)
	}
	body := findBody(doc)
	if body == nil {
		return wrapText(normalize(fragment), width)
	}
	r := renderer{width: width, styled: width > 0}
	return trimBlankLines(r.nodes(body))
}

// Wrap collapses whitespace in text and wraps it to width.
func Wrap(text string, width int) []string {
	return wrapText(normalize(text), width)
}

type renderer struct {
	width  int
	styled bool
}

func (r renderer) nodes(parent *nethtml.Node) []string {
	var lines []string
	var inline []string
	flush := func() {
		text := normalize(strings.Join(inline, " "))
		inline = inline[:0]
		lines = appendBlock(lines, wrapText(text, r.width))
	}

	for node := parent.FirstChild; node != nil; node = node.NextSibling {
		switch node.Type {
		case nethtml.TextNode:
			inline = append(inline, node.Data)
		case nethtml.ElementNode:
			if !isBlock(node.Data) {
				inline = append(inline, collectText(node))
				continue
			}
			flush()
			lines = appendBlock(lines, r.block(node))
		}
	}
	flush()
	return lines
}

func (r renderer) block(node *nethtml.Node) []string {
	switch strings.ToLower(node.Data) {
	case "script", "style", "noscript", "button", "form":
		return nil
	case "h1", "h2", "h3", "h4", "h5", "h6":
		lines := wrapText(normalize(collectText(node)), r.width)
		if r.styled {
			for i, line := range lines {
				lines[i] = headingStyle.Render(line)
			}
		}
		return lines
	case "blockquote":
		inner := r.nodes(node)
		for i, line := range inner {
			if strings.TrimSpace(line) != "" {
				inner[i] = quotePrefix + line
			}
		}
		return inner
	case "li":
		return prefixed(wrapText(normalize(collectText(node)), r.width-2), "- ", "  ")
	case "hr":
		return []string{strings.Repeat("-", 24)}
	default:
		return r.nodes(node)
	}
}

func appendBlock(lines, block []string) []string {
	if len(block) == 0 {
		return lines
	}
	if len(lines) > 0 && lines[len(lines)-1] != "" {
		lines = append(lines, "")
	}
	return append(lines, block...)
}

func prefixed(lines []string, first, rest string) []string {
	for i := range lines {
		if i == 0 {
			lines[i] = first + lines[i]
		} else {
			lines[i] = rest + lines[i]
		}
	}
	return lines
}

func isBlock(tag string) bool {
	switch strings.ToLower(tag) {
	case "p", "div", "section", "article", "main", "header", "footer", "aside", "nav",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "blockquote", "figure",
		"figcaption", "hr", "table", "tr", "pre", "script", "style", "noscript", "button", "form":
		return true
	}
	return false
}

func findBody(node *nethtml.Node) *nethtml.Node {
	if node.Type == nethtml.ElementNode && node.Data == "body" {
		return node
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if found := findBody(child); found != nil {
			return found
		}
	}
	return nil
}

func collectText(node *nethtml.Node) string {
	if node.Type == nethtml.TextNode {
		return node.Data
	}
	if node.Type == nethtml.ElementNode {
		switch node.Data {
		case "script", "style", "button":
			return ""
		}
	}
	var b strings.Builder
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		b.WriteString(collectText(child))
		b.WriteByte(' ')
	}
	return b.String()
}

func trimBlankLines(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	if start == end {
		return nil
	}
	return lines[start:end]
}

func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	if width < 1 {
		return []string{text}
	}
	var out []string
	line := ""
	for _, word := range strings.Fields(text) {
		for utf8.RuneCountInString(word) > width {
			if line != "" {
				out = append(out, line)
				line = ""
			}
			runes := []rune(word)
			out = append(out, string(runes[:width]))
			word = string(runes[width:])
		}
		switch {
		case line == "":
			line = word
		case utf8.RuneCountInString(line)+1+utf8.RuneCountInString(word) <= width:
			line += " " + word
		default:
			out = append(out, line)
			line = word
		}
	}
	if line != "" {
		out = append(out, line)
	}
	return out
}
