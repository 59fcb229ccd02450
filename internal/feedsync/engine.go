// Package feedsync keeps a client-held news list in step with the remote
// service: periodic polls merged by publication time, optimistic deletes with
// rollback, and server-authoritative counters.
//
// An Engine is not safe for concurrent use. Every method runs to completion
// without blocking; network calls happen outside the engine and their results
// are fed back through the Apply*/Confirm*/Fail* methods from the same
// goroutine that issued the Begin* call.
package feedsync

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/glabrego/newsdesk-cli/internal/feed"
	"github.com/glabrego/newsdesk-cli/internal/notify"
)

const maxUndo = 5

var (
	ErrDeleteInFlight = errors.New("delete already in flight")
	ErrUnknownItem    = errors.New("item not in list")
	ErrNothingToUndo  = errors.New("nothing to undo")
)

// Renderer receives ordered view operations. It never sees engine internals.
type Renderer interface {
	InsertAt(index int, item feed.Item)
	RemoveItem(id feed.ID)
	Reorder(items []feed.Item)
}

// Recorder receives engine events for metrics.
type Recorder interface {
	PollSucceeded(items int)
	PollFailed()
	PollSkipped()
	Evicted(n int)
	DeleteConfirmed()
	DeleteConflicted()
	DeleteRolledBack()
}

type PageResult struct {
	Items   []feed.Item
	Backups []feed.Item
	Totals  *feed.Totals
}

type PollResult struct {
	Items      []feed.Item
	Checkpoint time.Time
	Totals     *feed.Totals
}

type DeleteResult struct {
	Replacement *feed.Item
	Totals      *feed.Totals
}

type UndoResult struct {
	Item   *feed.Item
	Totals *feed.Totals
}

// PollOutcome tells the caller what follow-up work a poll result needs.
type PollOutcome struct {
	Merge     feed.MergeResult
	Notify    *notify.Arm
	NeedCount bool
}

type DeleteTicket struct {
	ID   feed.ID
	Page int
}

type pendingDelete struct {
	item  feed.Item
	index int
}

type Engine struct {
	list       *feed.List
	checkpoint feed.Checkpoint
	counter    Counter
	notifier   *notify.Timer
	renderer   Renderer
	logger     *log.Logger
	recorder   Recorder

	page         int
	pollInFlight bool
	pending      map[feed.ID]pendingDelete
	backups      []feed.Item
	undo         []feed.ID
}

type Option func(*Engine)

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

func WithCheckpoint(start time.Time) Option {
	return func(e *Engine) { e.checkpoint = feed.NewCheckpoint(start) }
}

func WithPage(page int) Option {
	return func(e *Engine) { e.SetPage(page) }
}

func New(capacity int, notifier *notify.Timer, renderer Renderer, opts ...Option) *Engine {
	e := &Engine{
		list:       feed.NewList(capacity),
		checkpoint: feed.NewCheckpoint(time.Now().UTC()),
		notifier:   notifier,
		renderer:   renderer,
		logger:     log.New(io.Discard),
		recorder:   nopRecorder{},
		page:       1,
		pending:    make(map[feed.ID]pendingDelete),
	}
	if e.notifier == nil {
		e.notifier = notify.New(10 * time.Second)
	}
	if e.renderer == nil {
		e.renderer = nopRenderer{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Items() []feed.Item          { return e.list.Items() }
func (e *Engine) Len() int                    { return e.list.Len() }
func (e *Engine) Checkpoint() time.Time       { return e.checkpoint.Last() }
func (e *Engine) Notifier() *notify.Timer     { return e.notifier }
func (e *Engine) Counter() *Counter           { return &e.counter }
func (e *Engine) PollInFlight() bool          { return e.pollInFlight }
func (e *Engine) Page() int                   { return e.page }
func (e *Engine) Backups() []feed.Item        { return append([]feed.Item(nil), e.backups...) }
func (e *Engine) UndoStack() []feed.ID        { return append([]feed.ID(nil), e.undo...) }
func (e *Engine) Totals() (feed.Totals, bool) { return e.counter.Totals() }

func (e *Engine) DeletePending(id feed.ID) bool {
	_, ok := e.pending[id]
	return ok
}

func (e *Engine) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	e.page = page
}

// Load replaces the list with a freshly fetched page. Items with a delete in
// flight stay hidden.
func (e *Engine) Load(res PageResult) {
	items := make([]feed.Item, 0, len(res.Items))
	for _, item := range res.Items {
		if _, deleting := e.pending[item.ID]; deleting {
			continue
		}
		items = append(items, item)
	}
	dropped := e.list.Replace(items)
	if len(dropped) > 0 {
		e.logger.Debug("page load exceeded capacity", "dropped", len(dropped))
	}
	e.backups = nil
	e.addBackups(res.Backups)
	e.renderer.Reorder(e.list.Items())
	if res.Totals != nil {
		e.counter.Apply(*res.Totals)
	}
	e.logger.Info("page loaded", "page", e.page, "items", e.list.Len(), "backups", len(e.backups))
}

// Restore shows a cached list before the first page load. It never touches
// the checkpoint.
func (e *Engine) Restore(items []feed.Item, totals *feed.Totals) {
	e.list.Replace(items)
	e.renderer.Reorder(e.list.Items())
	if totals != nil {
		e.counter.Apply(*totals)
	}
}

// BeginPoll returns the checkpoint to poll from, or false when a poll is
// already outstanding.
func (e *Engine) BeginPoll() (time.Time, bool) {
	if e.pollInFlight {
		e.recorder.PollSkipped()
		e.logger.Debug("poll skipped, previous poll still in flight")
		return time.Time{}, false
	}
	e.pollInFlight = true
	return e.checkpoint.Last(), true
}

func (e *Engine) ApplyPoll(res PollResult, now time.Time) PollOutcome {
	e.pollInFlight = false
	if !e.checkpoint.Advance(res.Checkpoint) && res.Checkpoint.Before(e.checkpoint.Last()) {
		e.logger.Warn("server checkpoint older than current, keeping current",
			"current", e.checkpoint.Last(), "reported", res.Checkpoint)
	}
	e.recorder.PollSucceeded(len(res.Items))

	var out PollOutcome
	if len(res.Items) == 0 {
		return out
	}

	out.Merge = e.merge(res.Items)
	if arm, ok := e.notifier.Accumulate(len(res.Items), now); ok {
		out.Notify = &arm
	}
	if res.Totals != nil {
		e.counter.Apply(*res.Totals)
	} else {
		out.NeedCount = true
	}
	e.logger.Info("poll merged",
		"received", len(res.Items),
		"inserted", len(out.Merge.Inserted),
		"evicted", len(out.Merge.Evicted),
		"checkpoint", e.checkpoint.Last())
	return out
}

// FailPoll records a failed poll. The checkpoint stays where it was so the
// same window is retried.
func (e *Engine) FailPoll(err error) {
	e.pollInFlight = false
	e.recorder.PollFailed()
	e.logger.Warn("poll failed", "err", err, "checkpoint", e.checkpoint.Last())
}

// BeginDelete removes the item locally before the remote call is made.
func (e *Engine) BeginDelete(id feed.ID) (DeleteTicket, error) {
	if _, ok := e.pending[id]; ok {
		return DeleteTicket{}, fmt.Errorf("delete %s: %w", id, ErrDeleteInFlight)
	}
	item, idx, ok := e.list.Remove(id)
	if !ok {
		return DeleteTicket{}, fmt.Errorf("delete %s: %w", id, ErrUnknownItem)
	}
	e.pending[id] = pendingDelete{item: item, index: idx}
	e.renderer.RemoveItem(id)
	return DeleteTicket{ID: id, Page: e.page}, nil
}

func (e *Engine) ConfirmDelete(id feed.ID, res DeleteResult) feed.MergeResult {
	if _, ok := e.pending[id]; !ok {
		e.logger.Warn("delete confirmation for unknown attempt", "id", id)
		return feed.MergeResult{}
	}
	delete(e.pending, id)
	e.recorder.DeleteConfirmed()
	if res.Totals != nil {
		e.counter.Apply(*res.Totals)
	}
	e.pushUndo(id)

	var merged feed.MergeResult
	switch {
	case res.Replacement != nil:
		merged = e.merge([]feed.Item{*res.Replacement})
	default:
		if backup, ok := e.takeBackup(); ok {
			merged = e.merge([]feed.Item{backup})
		}
	}
	e.logger.Info("delete confirmed", "id", id, "replacement", len(merged.Inserted) > 0)
	return merged
}

// ConflictDelete handles a delete the server reports as already gone. The
// local removal stands; counts are applied only if the server sent them.
func (e *Engine) ConflictDelete(id feed.ID, totals *feed.Totals) {
	if _, ok := e.pending[id]; !ok {
		return
	}
	delete(e.pending, id)
	e.recorder.DeleteConflicted()
	if totals != nil {
		e.counter.Apply(*totals)
	}
	e.logger.Info("delete conflict, item already gone", "id", id)
}

// RollbackDelete puts the item back where it was.
func (e *Engine) RollbackDelete(id feed.ID, cause error) feed.MergeResult {
	p, ok := e.pending[id]
	if !ok {
		return feed.MergeResult{}
	}
	delete(e.pending, id)
	e.recorder.DeleteRolledBack()

	res := e.list.Restore(p.item, p.index)
	e.render(res)
	e.logger.Warn("delete rolled back", "id", id, "err", cause)
	return res
}

// BeginUndo pops the most recently confirmed delete.
func (e *Engine) BeginUndo() (feed.ID, error) {
	if len(e.undo) == 0 {
		return "", ErrNothingToUndo
	}
	id := e.undo[0]
	e.undo = e.undo[1:]
	return id, nil
}

func (e *Engine) ApplyUndo(id feed.ID, res UndoResult) feed.MergeResult {
	if res.Totals != nil {
		e.counter.Apply(*res.Totals)
	}
	if res.Item == nil {
		return feed.MergeResult{}
	}
	merged := e.merge([]feed.Item{*res.Item})
	e.logger.Info("undo applied", "id", id, "restored", len(merged.Inserted) > 0)
	return merged
}

func (e *Engine) ApplyTotals(t feed.Totals) bool {
	return e.counter.Apply(t)
}

func (e *Engine) merge(items []feed.Item) feed.MergeResult {
	admitted := make([]feed.Item, 0, len(items))
	for _, item := range items {
		if _, deleting := e.pending[item.ID]; deleting {
			continue
		}
		admitted = append(admitted, item)
	}
	res := e.list.Merge(admitted)
	e.render(res)
	e.dropBackups(res.Inserted)
	return res
}

func (e *Engine) render(res feed.MergeResult) {
	for _, item := range res.Evicted {
		e.renderer.RemoveItem(item.ID)
	}
	if len(res.Evicted) > 0 {
		e.recorder.Evicted(len(res.Evicted))
	}
	placed := make([]int, 0, len(res.Inserted))
	byIndex := make(map[int]feed.Item, len(res.Inserted))
	for _, item := range res.Inserted {
		if idx := e.list.IndexOf(item.ID); idx >= 0 {
			placed = append(placed, idx)
			byIndex[idx] = item
		}
	}
	sort.Ints(placed)
	for _, idx := range placed {
		e.renderer.InsertAt(idx, byIndex[idx])
	}
}

func (e *Engine) pushUndo(id feed.ID) {
	e.undo = append([]feed.ID{id}, e.undo...)
	if len(e.undo) > maxUndo {
		e.undo = e.undo[:maxUndo]
	}
}

func (e *Engine) addBackups(items []feed.Item) {
	for _, item := range items {
		if e.list.Contains(item.ID) || e.hasBackup(item.ID) {
			continue
		}
		e.backups = append(e.backups, item)
	}
}

func (e *Engine) hasBackup(id feed.ID) bool {
	for _, b := range e.backups {
		if b.ID == id {
			return true
		}
	}
	return false
}

func (e *Engine) takeBackup() (feed.Item, bool) {
	for i, b := range e.backups {
		if e.list.Contains(b.ID) {
			continue
		}
		e.backups = append(e.backups[:i:i], e.backups[i+1:]...)
		return b, true
	}
	return feed.Item{}, false
}

func (e *Engine) dropBackups(items []feed.Item) {
	if len(items) == 0 || len(e.backups) == 0 {
		return
	}
	gone := make(map[feed.ID]struct{}, len(items))
	for _, item := range items {
		gone[item.ID] = struct{}{}
	}
	kept := e.backups[:0]
	for _, b := range e.backups {
		if _, ok := gone[b.ID]; !ok {
			kept = append(kept, b)
		}
	}
	e.backups = kept
}

type nopRecorder struct{}

func (nopRecorder) PollSucceeded(int) {}
func (nopRecorder) PollFailed()       {}
func (nopRecorder) PollSkipped()      {}
func (nopRecorder) Evicted(int)       {}
func (nopRecorder) DeleteConfirmed()  {}
func (nopRecorder) DeleteConflicted() {}
func (nopRecorder) DeleteRolledBack() {}

type nopRenderer struct{}

func (nopRenderer) InsertAt(int, feed.Item) {}
func (nopRenderer) RemoveItem(feed.ID)      {}
func (nopRenderer) Reorder([]feed.Item)     {}
