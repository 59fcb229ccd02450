package feedsync

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/glabrego/newsdesk-cli/internal/feed"
	"github.com/glabrego/newsdesk-cli/internal/notify"
)

var base = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func day(n int) feed.Item {
	return feed.Item{
		ID:          feed.ID(fmt.Sprintf("d%02d", n)),
		PublishedAt: base.AddDate(0, 0, n-1),
		Payload:     feed.Payload{Card: fmt.Sprintf("<div>day %d</div>", n)},
	}
}

func days(from, to int) []feed.Item {
	var out []feed.Item
	for n := to; n >= from; n-- {
		out = append(out, day(n))
	}
	return out
}

type fakeRenderer struct {
	ops   []string
	order []feed.ID
}

func (r *fakeRenderer) InsertAt(index int, item feed.Item) {
	r.ops = append(r.ops, fmt.Sprintf("insert %d %s", index, item.ID))
	r.order = append(r.order, "")
	copy(r.order[index+1:], r.order[index:])
	r.order[index] = item.ID
}

func (r *fakeRenderer) RemoveItem(id feed.ID) {
	r.ops = append(r.ops, "remove "+string(id))
	for i, got := range r.order {
		if got == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

func (r *fakeRenderer) Reorder(items []feed.Item) {
	r.ops = append(r.ops, "reorder")
	r.order = feed.IDs(items)
}

type countingRecorder struct {
	nopRecorder
	skipped, failed, rolledBack, evicted int
}

func (c *countingRecorder) PollSkipped()      { c.skipped++ }
func (c *countingRecorder) PollFailed()       { c.failed++ }
func (c *countingRecorder) DeleteRolledBack() { c.rolledBack++ }
func (c *countingRecorder) Evicted(n int)     { c.evicted += n }

func newEngine(t *testing.T, opts ...Option) (*Engine, *fakeRenderer) {
	t.Helper()
	r := &fakeRenderer{}
	e := New(feed.DefaultCapacity, notify.New(10*time.Second), r, opts...)
	return e, r
}

func totals(items, pages int) *feed.Totals {
	return &feed.Totals{Items: items, Pages: pages, HasPages: true}
}

func TestEngine_PollMergesAndNotifies(t *testing.T) {
	rec := &countingRecorder{}
	e, r := newEngine(t, WithCheckpoint(base), WithRecorder(rec))
	e.Load(PageResult{Items: days(1, 25), Totals: totals(40, 2)})

	since, ok := e.BeginPoll()
	require.True(t, ok)
	require.Equal(t, base, since)

	now := base.Add(time.Hour)
	out := e.ApplyPoll(PollResult{
		Items:      []feed.Item{day(27), day(26), day(28)},
		Checkpoint: now,
		Totals:     totals(43, 2),
	}, now)

	require.Equal(t, feed.IDs(days(4, 28)), feed.IDs(e.Items()))
	require.Len(t, out.Merge.Evicted, 3)
	require.Equal(t, 3, rec.evicted)
	require.NotNil(t, out.Notify)
	require.False(t, out.NeedCount)
	require.Equal(t, 3, e.Notifier().State(now).Pending)
	require.Equal(t, now, e.Checkpoint())
	require.Equal(t, feed.IDs(e.Items()), r.order, "renderer mirrors the list")

	got, _ := e.Totals()
	require.Equal(t, feed.Totals{Items: 43, Pages: 2, HasPages: true}, got)
}

func TestEngine_PollWithoutItemsStillAdvancesCheckpoint(t *testing.T) {
	e, r := newEngine(t, WithCheckpoint(base))
	e.Load(PageResult{Items: days(1, 5)})
	r.ops = nil

	e.BeginPoll()
	next := base.Add(30 * time.Second)
	out := e.ApplyPoll(PollResult{Checkpoint: next}, next)

	require.Equal(t, next, e.Checkpoint())
	require.True(t, out.Merge.Empty())
	require.Nil(t, out.Notify)
	require.Empty(t, r.ops)
	require.Equal(t, notify.Hidden, e.Notifier().State(next).Phase)
}

func TestEngine_PollWithItemsButNoTotalsAsksForCount(t *testing.T) {
	e, _ := newEngine(t, WithCheckpoint(base))
	e.BeginPoll()

	out := e.ApplyPoll(PollResult{Items: []feed.Item{day(3)}, Checkpoint: base.Add(time.Minute)}, base)

	require.True(t, out.NeedCount)
	_, known := e.Totals()
	require.False(t, known)
}

func TestEngine_PollsAreSerialized(t *testing.T) {
	rec := &countingRecorder{}
	e, _ := newEngine(t, WithCheckpoint(base), WithRecorder(rec))

	_, ok := e.BeginPoll()
	require.True(t, ok)
	_, ok = e.BeginPoll()
	require.False(t, ok, "a second poll must wait for the first")
	require.Equal(t, 1, rec.skipped)

	e.FailPoll(errors.New("connection refused"))
	require.Equal(t, 1, rec.failed)
	require.Equal(t, base, e.Checkpoint(), "failed poll keeps the checkpoint")

	since, ok := e.BeginPoll()
	require.True(t, ok)
	require.Equal(t, base, since, "the same window is retried")
}

func TestEngine_DeleteRollbackRestoresState(t *testing.T) {
	rec := &countingRecorder{}
	e, r := newEngine(t, WithRecorder(rec))
	e.Load(PageResult{Items: days(1, 10)})
	before := feed.IDs(e.Items())

	ticket, err := e.BeginDelete("d05")
	require.NoError(t, err)
	require.Equal(t, feed.ID("d05"), ticket.ID)
	require.Equal(t, 1, ticket.Page)
	require.False(t, e.Counter().known)
	require.NotContains(t, feed.IDs(e.Items()), feed.ID("d05"), "removal is visible before the request")
	require.NotContains(t, r.order, feed.ID("d05"))

	e.RollbackDelete("d05", errors.New("HTTP 500"))

	require.Equal(t, before, feed.IDs(e.Items()))
	require.Equal(t, before, r.order)
	require.False(t, e.DeletePending("d05"))
	require.Equal(t, 1, rec.rolledBack)
}

func TestEngine_DeleteSameIDTwiceIsRejected(t *testing.T) {
	e, _ := newEngine(t)
	e.Load(PageResult{Items: days(1, 3)})

	_, err := e.BeginDelete("d02")
	require.NoError(t, err)
	_, err = e.BeginDelete("d02")
	require.ErrorIs(t, err, ErrDeleteInFlight)

	_, err = e.BeginDelete("nope")
	require.ErrorIs(t, err, ErrUnknownItem)

	// Different ids may be in flight together.
	_, err = e.BeginDelete("d03")
	require.NoError(t, err)
}

func TestEngine_ConfirmDeleteWithoutReplacementShrinks(t *testing.T) {
	e, _ := newEngine(t)
	e.Load(PageResult{Items: days(1, 10), Totals: totals(100, 4)})

	e.BeginDelete("d04")
	e.ConfirmDelete("d04", DeleteResult{Totals: totals(97, 4)})

	require.Equal(t, 9, e.Len())
	got, _ := e.Totals()
	require.Equal(t, 97, got.Items, "server count wins over local arithmetic")
	require.Equal(t, []feed.ID{"d04"}, e.UndoStack())
}

func TestEngine_ConfirmDeleteMergesReplacement(t *testing.T) {
	e, r := newEngine(t)
	e.Load(PageResult{Items: days(5, 29)})

	e.BeginDelete("d20")
	replacement := day(4)
	e.ConfirmDelete("d20", DeleteResult{Replacement: &replacement, Totals: totals(60, 3)})

	require.Equal(t, 25, e.Len())
	last, _ := e.list.At(24)
	require.Equal(t, feed.ID("d04"), last.ID)
	require.Equal(t, feed.IDs(e.Items()), r.order)
}

func TestEngine_ConfirmDeleteFallsBackToBackup(t *testing.T) {
	e, _ := newEngine(t)
	e.Load(PageResult{Items: days(3, 6), Backups: []feed.Item{day(2), day(1)}})

	e.BeginDelete("d05")
	e.ConfirmDelete("d05", DeleteResult{})

	require.Equal(t, []feed.ID{"d06", "d04", "d03", "d02"}, feed.IDs(e.Items()))
	require.Equal(t, []feed.ID{"d01"}, feed.IDs(e.Backups()))
}

func TestEngine_ConflictKeepsLocalRemovalAndCounts(t *testing.T) {
	e, _ := newEngine(t)
	e.Load(PageResult{Items: days(1, 3), Totals: totals(30, 2)})

	e.BeginDelete("d01")
	e.ConflictDelete("d01", nil)

	require.Equal(t, []feed.ID{"d03", "d02"}, feed.IDs(e.Items()))
	got, _ := e.Totals()
	require.Equal(t, 30, got.Items, "no counts means counter stays untouched")
	require.Empty(t, e.UndoStack())
}

func TestEngine_PollDoesNotResurrectPendingDelete(t *testing.T) {
	e, _ := newEngine(t, WithCheckpoint(base))
	e.Load(PageResult{Items: days(1, 5)})
	e.BeginDelete("d03")

	e.BeginPoll()
	e.ApplyPoll(PollResult{Items: []feed.Item{day(3), day(6)}, Checkpoint: base.Add(time.Minute)}, base)

	require.Equal(t, []feed.ID{"d06", "d05", "d04", "d02", "d01"}, feed.IDs(e.Items()))

	e.RollbackDelete("d03", errors.New("timeout"))
	require.Equal(t, feed.IDs(days(1, 6)), feed.IDs(e.Items()))
}

func TestEngine_UndoStackIsBounded(t *testing.T) {
	e, _ := newEngine(t)
	e.Load(PageResult{Items: days(1, 10)})

	for n := 1; n <= 7; n++ {
		id := day(n).ID
		e.BeginDelete(id)
		e.ConfirmDelete(id, DeleteResult{})
	}
	require.Len(t, e.UndoStack(), maxUndo)

	id, err := e.BeginUndo()
	require.NoError(t, err)
	require.Equal(t, feed.ID("d07"), id)

	restored := day(7)
	res := e.ApplyUndo(id, UndoResult{Item: &restored, Totals: totals(4, 1)})
	require.Len(t, res.Inserted, 1)
	require.True(t, e.list.Contains("d07"))

	for range maxUndo - 1 {
		_, err = e.BeginUndo()
		require.NoError(t, err)
	}
	_, err = e.BeginUndo()
	require.ErrorIs(t, err, ErrNothingToUndo)
}

func TestEngine_CounterSyncIsIdempotent(t *testing.T) {
	e, _ := newEngine(t)
	var seen []feed.Totals
	e.Counter().Observe(func(t feed.Totals) { seen = append(seen, t) })

	require.True(t, e.ApplyTotals(feed.Totals{Items: 100, Pages: 4, HasPages: true}))
	require.False(t, e.ApplyTotals(feed.Totals{Items: 100, Pages: 4, HasPages: true}))
	require.Len(t, seen, 1)

	require.False(t, e.ApplyTotals(feed.Totals{Items: 100}), "missing pages keeps the last value")
	require.True(t, e.ApplyTotals(feed.Totals{Items: 99}))
	require.Equal(t, feed.Totals{Items: 99, Pages: 4, HasPages: true}, seen[len(seen)-1])
}

func TestEngine_LoadHidesPendingDeletes(t *testing.T) {
	e, r := newEngine(t)
	e.Load(PageResult{Items: days(1, 4)})
	e.BeginDelete("d02")

	e.Load(PageResult{Items: days(1, 4), Backups: []feed.Item{day(4)}})

	require.Equal(t, []feed.ID{"d04", "d03", "d01"}, feed.IDs(e.Items()))
	require.Equal(t, feed.IDs(e.Items()), r.order)
	require.Empty(t, e.Backups(), "backups already on screen are ignored")
}

func TestEngine_CounterTakesReportedZeroPages(t *testing.T) {
	e, _ := newEngine(t)

	require.True(t, e.ApplyTotals(feed.Totals{Items: 1, Pages: 1, HasPages: true}))
	require.True(t, e.ApplyTotals(feed.Totals{Items: 0, Pages: 0, HasPages: true}))

	got, ok := e.Totals()
	require.True(t, ok)
	require.Equal(t, feed.Totals{Items: 0, Pages: 0, HasPages: true}, got)
}
