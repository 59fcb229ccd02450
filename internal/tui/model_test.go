package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/glabrego/newsdesk-cli/internal/feed"
	"github.com/glabrego/newsdesk-cli/internal/feedsync"
	"github.com/glabrego/newsdesk-cli/internal/notify"
	"github.com/glabrego/newsdesk-cli/internal/tui/actions"
	"github.com/glabrego/newsdesk-cli/internal/tui/view"
)

var testNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

type fakeService struct {
	page      feedsync.PageResult
	poll      feedsync.PollResult
	del       feedsync.DeleteResult
	deleteErr error
	undo      feedsync.UndoResult
	totals    feed.Totals
	saved     [][]feed.Item
	savedAt   []time.Time
	deleted   []feed.ID
}

func (f *fakeService) FetchPage(context.Context, int, string) (feedsync.PageResult, error) {
	return f.page, nil
}

func (f *fakeService) Poll(context.Context, time.Time) (feedsync.PollResult, error) {
	return f.poll, nil
}

func (f *fakeService) Delete(_ context.Context, id feed.ID, _ int) (feedsync.DeleteResult, error) {
	f.deleted = append(f.deleted, id)
	return f.del, f.deleteErr
}

func (f *fakeService) Undo(context.Context, feed.ID) (feedsync.UndoResult, error) {
	return f.undo, nil
}

func (f *fakeService) Count(context.Context) (feed.Totals, error) { return f.totals, nil }

func (f *fakeService) UpdateFeed(context.Context) (string, *feed.Totals, error) {
	return "feed updated", &f.totals, nil
}

func (f *fakeService) SaveSnapshot(_ context.Context, items []feed.Item, _ *feed.Totals, takenAt time.Time) error {
	f.saved = append(f.saved, items)
	f.savedAt = append(f.savedAt, takenAt)
	return nil
}

// newsItem builds an item published hoursAgo hours before testNow.
func newsItem(id string, hoursAgo int) feed.Item {
	return feed.Item{
		ID:          feed.ID(id),
		PublishedAt: testNow.Add(-time.Duration(hoursAgo) * time.Hour),
		Payload: feed.Payload{
			Card:  fmt.Sprintf(`<div id="news-%s"><h3 class="news-title"><a href="https://news.example.com/%s">Noticia %s</a></h3></div>`, id, id, id),
			Modal: fmt.Sprintf(`<div class="modal"><p>Cuerpo de la noticia %s.</p></div>`, id),
		},
	}
}

func newTestModel(t *testing.T, svc actions.Service, capacity int, seed ...feed.Item) Model {
	t.Helper()
	grid := view.NewGrid()
	engine := feedsync.New(capacity, notify.New(10*time.Second), grid, feedsync.WithCheckpoint(testNow))
	engine.Restore(seed, nil)
	m := NewModel(svc, engine, grid, Options{PollInterval: time.Hour, Location: time.UTC})
	m.nowFn = func() time.Time { return testNow }
	m.loadingPage = false
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func keyPress(r string) tea.KeyMsg {
	switch r {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(r)}
}

// drain runs cmd and any batched children. Only use it where no timer
// commands can be part of the batch.
func drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, drain(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

func TestModelView_ShowsItems(t *testing.T) {
	m := newTestModel(t, nil, 5, newsItem("2", 1), newsItem("1", 2))

	out := m.View()
	require.Contains(t, out, "Newsdesk")
	require.Contains(t, out, "Noticia 2")
	require.Contains(t, out, "Noticia 1")
	require.Contains(t, out, "> ")
	require.Contains(t, out, "page 1/?")
	require.NotContains(t, out, "new item")
}

func TestModelView_EmptyAndLoading(t *testing.T) {
	m := newTestModel(t, nil, 5)
	require.Contains(t, m.View(), "No news available.")

	m.loadingPage = true
	require.Contains(t, m.View(), "Loading news...")
}

func TestModelUpdate_NavigateAndOpenDetail(t *testing.T) {
	m := newTestModel(t, nil, 5, newsItem("2", 1), newsItem("1", 2))

	m, _ = update(t, m, keyPress("j"))
	require.Equal(t, 1, m.cursor)
	m, _ = update(t, m, keyPress("j"))
	require.Equal(t, 1, m.cursor, "cursor stays on the last row")

	m, _ = update(t, m, keyPress("enter"))
	require.True(t, m.inDetail)
	require.Equal(t, feed.ID("1"), m.detailID)
	require.Contains(t, m.View(), "Cuerpo de la noticia 1.")

	m, _ = update(t, m, keyPress("esc"))
	require.False(t, m.inDetail)
}

func TestModelUpdate_PageLoadReplacesListAndSaves(t *testing.T) {
	svc := &fakeService{}
	m := newTestModel(t, svc, 5, newsItem("9", 1))
	m.loadingPage = true

	m, cmd := update(t, m, actions.PageLoadSuccessMsg{
		Page:   1,
		Source: "init",
		Result: feedsync.PageResult{
			Items:  []feed.Item{newsItem("3", 1), newsItem("2", 2)},
			Totals: &feed.Totals{Items: 12, Pages: 3, HasPages: true},
		},
	})
	require.False(t, m.loadingPage)
	require.Equal(t, []feed.ID{"3", "2"}, m.grid.IDs())
	require.Contains(t, m.View(), "page 1/3")

	drain(cmd)
	require.Len(t, svc.saved, 1)
	require.Equal(t, []feed.ID{"3", "2"}, feed.IDs(svc.saved[0]))
	require.Equal(t, []time.Time{testNow}, svc.savedAt, "snapshots carry the model clock")
}

func TestModelUpdate_PollShowsBannerAndFreshRows(t *testing.T) {
	svc := &fakeService{}
	m := newTestModel(t, svc, 5, newsItem("2", 5), newsItem("1", 6))

	m, cmd := update(t, m, actions.PollTickMsg{OnDemand: true})
	require.NotNil(t, cmd)
	require.True(t, m.engine.PollInFlight())

	m, _ = update(t, m, actions.PollTickMsg{OnDemand: true})
	require.True(t, m.engine.PollInFlight(), "second tick must not start another poll")

	m, cmd = update(t, m, actions.PollSuccessMsg{Result: feedsync.PollResult{
		Items:      []feed.Item{newsItem("4", 1), newsItem("3", 2)},
		Checkpoint: testNow.Add(time.Minute),
		Totals:     &feed.Totals{Items: 4, Pages: 1, HasPages: true},
	}})
	require.NotNil(t, cmd)
	require.False(t, m.engine.PollInFlight())
	require.Equal(t, []feed.ID{"4", "3", "2", "1"}, m.grid.IDs())
	require.Equal(t, testNow.Add(time.Minute), m.engine.Checkpoint())
	require.Equal(t, feed.ID("2"), m.currentID(), "cursor follows the item it was on")

	out := m.View()
	require.Contains(t, out, "2 new items (10s)")
	row, _ := m.grid.At(0)
	require.True(t, row.Fresh)

	m, _ = update(t, m, keyPress(" "))
	require.False(t, m.engine.Notifier().State(testNow).Shown())
	row, _ = m.grid.At(0)
	require.False(t, row.Fresh)
	require.NotContains(t, m.View(), "new items")
}

func TestModelUpdate_PollWithoutTotalsRequestsCount(t *testing.T) {
	svc := &fakeService{totals: feed.Totals{Items: 40, Pages: 2, HasPages: true}}
	m := newTestModel(t, svc, 5)

	m, _ = update(t, m, actions.PollTickMsg{OnDemand: true})
	m, _ = update(t, m, actions.PollSuccessMsg{Result: feedsync.PollResult{
		Items:      []feed.Item{newsItem("1", 1)},
		Checkpoint: testNow,
	}})
	require.Equal(t, 1, m.inflight, "count resync should be outstanding")

	m, _ = update(t, m, actions.CountSuccessMsg{Totals: svc.totals})
	totals, ok := m.engine.Totals()
	require.True(t, ok)
	require.Equal(t, 40, totals.Items)
	require.Zero(t, m.inflight)
}

func TestModelUpdate_PollErrorKeepsCheckpoint(t *testing.T) {
	m := newTestModel(t, &fakeService{}, 5, newsItem("1", 1))

	m, _ = update(t, m, actions.PollTickMsg{OnDemand: true})
	m, _ = update(t, m, actions.PollErrorMsg{Err: errors.New("timeout")})
	require.False(t, m.engine.PollInFlight())
	require.Equal(t, testNow, m.engine.Checkpoint())
	require.Nil(t, m.err, "poll failures are not surfaced")
}

func TestModelUpdate_NotificationFollowsFocus(t *testing.T) {
	m := newTestModel(t, &fakeService{}, 5)
	m, _ = update(t, m, actions.PollTickMsg{OnDemand: true})
	m, _ = update(t, m, actions.PollSuccessMsg{Result: feedsync.PollResult{
		Items:      []feed.Item{newsItem("1", 1)},
		Checkpoint: testNow,
	}})

	m, cmd := update(t, m, tea.BlurMsg{})
	require.Nil(t, cmd)
	state := m.engine.Notifier().State(testNow)
	require.Equal(t, notify.Frozen, state.Phase)
	require.Contains(t, m.View(), "paused")

	m, cmd = update(t, m, tea.FocusMsg{})
	require.NotNil(t, cmd, "resuming schedules the remaining countdown")
	require.Equal(t, notify.Running, m.engine.Notifier().State(testNow).Phase)

	stale := m.engine.Notifier().Generation() - 1
	m, _ = update(t, m, actions.NotifyExpireMsg{Generation: stale})
	require.True(t, m.engine.Notifier().State(testNow).Shown(), "stale expiry is ignored")

	m, _ = update(t, m, actions.NotifyExpireMsg{Generation: m.engine.Notifier().Generation()})
	require.False(t, m.engine.Notifier().State(testNow).Shown())
}

func TestModelUpdate_DeleteRollbackRestoresRow(t *testing.T) {
	svc := &fakeService{deleteErr: errors.New("connection reset"), totals: feed.Totals{Items: 3, Pages: 1, HasPages: true}}
	m := newTestModel(t, svc, 5, newsItem("3", 1), newsItem("2", 2), newsItem("1", 3))
	m, _ = update(t, m, keyPress("j"))

	m, cmd := update(t, m, keyPress("d"))
	require.Equal(t, []feed.ID{"3", "1"}, m.grid.IDs(), "row disappears before the request")
	require.True(t, m.engine.DeletePending("2"))

	msgs := drain(cmd)
	require.Len(t, msgs, 1)
	failed, ok := msgs[0].(actions.DeleteErrorMsg)
	require.True(t, ok, "expected DeleteErrorMsg, got %T", msgs[0])

	m, _ = update(t, m, failed)
	require.Equal(t, []feed.ID{"3", "2", "1"}, m.grid.IDs())
	require.False(t, m.engine.DeletePending("2"))
	require.Contains(t, m.status, "restored")
	require.Equal(t, 1, m.inflight, "count resync follows a rollback")
}

func TestModelUpdate_DeleteConfirmPullsReplacementAndUndo(t *testing.T) {
	replacement := newsItem("0", 10)
	svc := &fakeService{
		del:  feedsync.DeleteResult{Replacement: &replacement, Totals: &feed.Totals{Items: 2, Pages: 1, HasPages: true}},
		undo: feedsync.UndoResult{Totals: &feed.Totals{Items: 3, Pages: 1, HasPages: true}},
	}
	m := newTestModel(t, svc, 2, newsItem("2", 1), newsItem("1", 2))

	m, cmd := update(t, m, keyPress("x"))
	msgs := drain(cmd)
	require.Len(t, msgs, 1)
	m, _ = update(t, m, msgs[0])
	require.Equal(t, []feed.ID{"1", "0"}, m.grid.IDs())
	require.Equal(t, []feed.ID{"2"}, svc.deleted)
	require.Equal(t, "Deleted", m.status)
	require.Equal(t, []feed.ID{"2"}, m.engine.UndoStack())

	restored := newsItem("2", 1)
	svc.undo.Item = &restored
	m, cmd = update(t, m, keyPress("u"))
	msgs = drain(cmd)
	require.Len(t, msgs, 1)
	m, _ = update(t, m, msgs[0])
	require.Equal(t, []feed.ID{"2", "1"}, m.grid.IDs())
	require.Empty(t, m.engine.UndoStack())

	m, _ = update(t, m, keyPress("u"))
	require.Equal(t, "Nothing to undo", m.status)
}

func TestModelUpdate_UndoEvictionClosesDetail(t *testing.T) {
	replacement := newsItem("0", 10)
	svc := &fakeService{del: feedsync.DeleteResult{Replacement: &replacement}}
	m := newTestModel(t, svc, 2, newsItem("2", 1), newsItem("1", 2))

	m, cmd := update(t, m, keyPress("d"))
	msgs := drain(cmd)
	require.Len(t, msgs, 1)
	m, _ = update(t, m, msgs[0])
	require.Equal(t, []feed.ID{"1", "0"}, m.grid.IDs())

	m, _ = update(t, m, keyPress("G"))
	m, _ = update(t, m, keyPress("enter"))
	require.True(t, m.inDetail)
	require.Equal(t, feed.ID("0"), m.detailID)

	restored := newsItem("2", 1)
	svc.undo = feedsync.UndoResult{Item: &restored}
	m, cmd = update(t, m, keyPress("u"))
	msgs = drain(cmd)
	require.Len(t, msgs, 1)
	m, _ = update(t, m, msgs[0])

	require.Equal(t, []feed.ID{"2", "1"}, m.grid.IDs())
	require.False(t, m.inDetail, "the restored item pushed the open one out")
}

func TestModelUpdate_DeleteConflictKeepsRemoval(t *testing.T) {
	m := newTestModel(t, &fakeService{}, 5, newsItem("2", 1), newsItem("1", 2))
	m, _ = update(t, m, keyPress("d"))

	m, _ = update(t, m, actions.DeleteConflictMsg{ID: "2"})
	require.Equal(t, []feed.ID{"1"}, m.grid.IDs())
	require.Equal(t, "Already deleted", m.status)
	_, ok := m.engine.Totals()
	require.False(t, ok, "counts stay untouched without server totals")
}

func TestModelUpdate_EvictionClosesDetail(t *testing.T) {
	m := newTestModel(t, &fakeService{}, 2, newsItem("2", 5), newsItem("1", 6))
	m, _ = update(t, m, keyPress("j"))
	m, _ = update(t, m, keyPress("enter"))
	require.True(t, m.inDetail)

	m, _ = update(t, m, actions.PollTickMsg{OnDemand: true})
	m, _ = update(t, m, actions.PollSuccessMsg{Result: feedsync.PollResult{
		Items:      []feed.Item{newsItem("3", 1)},
		Checkpoint: testNow,
		Totals:     &feed.Totals{Items: 3, Pages: 2, HasPages: true},
	}})
	require.Equal(t, []feed.ID{"3", "2"}, m.grid.IDs())
	require.False(t, m.inDetail)
	require.Equal(t, "Item left the list", m.status)
}

func TestModelUpdate_UpdateFeedAppliesCounts(t *testing.T) {
	svc := &fakeService{totals: feed.Totals{Items: 50, Pages: 2, HasPages: true}}
	m := newTestModel(t, svc, 5)

	m, cmd := update(t, m, keyPress("r"))
	require.Equal(t, "Updating feed...", m.status)
	msgs := drain(cmd)
	require.Len(t, msgs, 1)

	m, cmd = update(t, m, msgs[0])
	require.NotNil(t, cmd)
	require.Equal(t, "feed updated", m.status)
	totals, _ := m.engine.Totals()
	require.Equal(t, 50, totals.Items)
}

func TestModelUpdate_OpenAndCopyLink(t *testing.T) {
	m := newTestModel(t, nil, 5, newsItem("7", 1))
	var opened, copied string
	m.openURLFn = func(u string) error { opened = u; return nil }
	m.copyURLFn = func(u string) error { copied = u; return nil }

	_, cmd := update(t, m, keyPress("o"))
	msg := cmd()
	success, ok := msg.(actions.OpenURLSuccessMsg)
	require.True(t, ok)
	require.True(t, success.Opened)
	require.Equal(t, "https://news.example.com/7", opened)

	_, cmd = update(t, m, keyPress("y"))
	_ = cmd()
	require.Equal(t, "https://news.example.com/7", copied)

	m.grid.Reorder([]feed.Item{{ID: "8", Payload: feed.Payload{Card: "<p>sin enlace</p>"}}})
	m, _ = update(t, m, keyPress("o"))
	require.Contains(t, m.status, "no link")
}

func TestModelUpdate_ClearStatusOnlyForLatest(t *testing.T) {
	m := newTestModel(t, nil, 5)
	m, _ = update(t, m, keyPress("u"))
	m.status = "Nothing to undo"
	m.statusID = 2

	m, _ = update(t, m, actions.ClearStatusMsg{ID: 1})
	require.Equal(t, "Nothing to undo", m.status)
	m, _ = update(t, m, actions.ClearStatusMsg{ID: 2})
	require.Empty(t, m.status)
}

func TestModelUpdate_HelpToggle(t *testing.T) {
	m := newTestModel(t, nil, 5, newsItem("1", 1))
	m, _ = update(t, m, keyPress("?"))
	require.True(t, m.showHelp)
	out := m.View()
	require.Contains(t, out, "update feed")
	require.False(t, strings.Contains(out, "Noticia 1"), "help hides the list")

	m, _ = update(t, m, keyPress("esc"))
	require.False(t, m.showHelp)
}

func TestModelUpdate_QuitKey(t *testing.T) {
	m := newTestModel(t, nil, 5)
	_, cmd := update(t, m, keyPress("q"))
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	require.True(t, ok)
}
