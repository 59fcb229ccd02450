package feedsync

import "github.com/glabrego/newsdesk-cli/internal/feed"

// Counter holds the server-reported totals. It is only ever set from server
// values, never adjusted locally.
type Counter struct {
	totals    feed.Totals
	known     bool
	observers []func(feed.Totals)
}

// Observe registers fn to be called after every effective change.
func (c *Counter) Observe(fn func(feed.Totals)) {
	if fn != nil {
		c.observers = append(c.observers, fn)
	}
}

// Apply stores the totals and reports whether anything observable changed.
// Totals without a page count keep the last known one.
func (c *Counter) Apply(t feed.Totals) bool {
	if !t.HasPages {
		t.Pages, t.HasPages = c.totals.Pages, c.totals.HasPages
	}
	if c.known && t == c.totals {
		return false
	}
	c.totals = t
	c.known = true
	for _, fn := range c.observers {
		fn(t)
	}
	return true
}

func (c *Counter) Totals() (feed.Totals, bool) {
	return c.totals, c.known
}
