package feed

import "time"

// Checkpoint is the boundary already retrieved from the remote feed.
// It never moves backwards.
type Checkpoint struct {
	last time.Time
}

func NewCheckpoint(start time.Time) Checkpoint {
	return Checkpoint{last: start}
}

func (c Checkpoint) Last() time.Time { return c.last }

// Advance moves the checkpoint to t and reports whether it moved.
// A t older than the current checkpoint is ignored.
func (c *Checkpoint) Advance(t time.Time) bool {
	if t.IsZero() || t.Before(c.last) {
		return false
	}
	moved := !t.Equal(c.last)
	c.last = t
	return moved
}
