package feed

import (
	"sort"
	"time"
)

// ID identifies a news item for its whole lifetime. The remote service may
// send numbers or strings; both are kept in their textual form.
type ID string

// Payload is the rendered content of an item. The engine never looks inside it.
type Payload struct {
	Card  string
	Modal string
}

type Item struct {
	ID          ID
	PublishedAt time.Time
	Payload     Payload
}

// Totals are the aggregate counts reported by the remote service.
// HasPages separates a reported zero page count from an absent one.
type Totals struct {
	Items    int
	Pages    int
	HasPages bool
}

func SortNewestFirst(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
}

func IDs(items []Item) []ID {
	out := make([]ID, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}
