package view

import (
	"github.com/glabrego/newsdesk-cli/internal/feed"
	"github.com/glabrego/newsdesk-cli/internal/render/card"
)

type Row struct {
	Item    feed.Item
	Summary card.Summary
	Fresh   bool
}

// Grid is the on-screen list. It applies the sync engine's render
// operations and keeps a parsed summary per row so View never reparses
// payloads.
type Grid struct {
	rows []Row
}

func NewGrid() *Grid {
	return &Grid{}
}

// InsertAt places item at index, clamped to the current bounds.
func (g *Grid) InsertAt(index int, item feed.Item) {
	if i := g.IndexOf(item.ID); i >= 0 {
		g.rows = append(g.rows[:i], g.rows[i+1:]...)
	}
	if index < 0 {
		index = 0
	}
	if index > len(g.rows) {
		index = len(g.rows)
	}
	row := Row{Item: item, Summary: card.Inspect(item.Payload)}
	g.rows = append(g.rows, Row{})
	copy(g.rows[index+1:], g.rows[index:])
	g.rows[index] = row
}

func (g *Grid) RemoveItem(id feed.ID) {
	if i := g.IndexOf(id); i >= 0 {
		g.rows = append(g.rows[:i], g.rows[i+1:]...)
	}
}

// Reorder replaces the whole grid. Rows already on screen keep their summary
// and freshness.
func (g *Grid) Reorder(items []feed.Item) {
	known := make(map[feed.ID]Row, len(g.rows))
	for _, row := range g.rows {
		known[row.Item.ID] = row
	}
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		if prev, ok := known[item.ID]; ok && prev.Item.Payload == item.Payload {
			prev.Item = item
			rows = append(rows, prev)
			continue
		}
		rows = append(rows, Row{Item: item, Summary: card.Inspect(item.Payload)})
	}
	g.rows = rows
}

func (g *Grid) Len() int { return len(g.rows) }

func (g *Grid) Rows() []Row { return g.rows }

func (g *Grid) At(index int) (Row, bool) {
	if index < 0 || index >= len(g.rows) {
		return Row{}, false
	}
	return g.rows[index], true
}

func (g *Grid) IDs() []feed.ID {
	out := make([]feed.ID, 0, len(g.rows))
	for _, row := range g.rows {
		out = append(out, row.Item.ID)
	}
	return out
}

func (g *Grid) IndexOf(id feed.ID) int {
	for i, row := range g.rows {
		if row.Item.ID == id {
			return i
		}
	}
	return -1
}

// MarkFresh flags rows that arrived with a poll until ClearFresh.
func (g *Grid) MarkFresh(ids []feed.ID) {
	for _, id := range ids {
		if i := g.IndexOf(id); i >= 0 {
			g.rows[i].Fresh = true
		}
	}
}

func (g *Grid) ClearFresh() {
	for i := range g.rows {
		g.rows[i].Fresh = false
	}
}
