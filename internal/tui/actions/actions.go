package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/glabrego/newsdesk-cli/internal/feed"
	"github.com/glabrego/newsdesk-cli/internal/feedsync"
	"github.com/glabrego/newsdesk-cli/internal/newsapi"
	"github.com/glabrego/newsdesk-cli/internal/notify"
)

const requestTimeout = 10 * time.Second

type Service interface {
	FetchPage(ctx context.Context, page int, query string) (feedsync.PageResult, error)
	Poll(ctx context.Context, since time.Time) (feedsync.PollResult, error)
	Delete(ctx context.Context, id feed.ID, page int) (feedsync.DeleteResult, error)
	Undo(ctx context.Context, id feed.ID) (feedsync.UndoResult, error)
	Count(ctx context.Context) (feed.Totals, error)
	UpdateFeed(ctx context.Context) (string, *feed.Totals, error)
	SaveSnapshot(ctx context.Context, items []feed.Item, totals *feed.Totals, takenAt time.Time) error
}

type PageLoadSuccessMsg struct {
	Page     int
	Result   feedsync.PageResult
	Duration time.Duration
	Source   string
}

type PageLoadErrorMsg struct {
	Page     int
	Err      error
	Duration time.Duration
	Source   string
}

// PollTickMsg fires on every poll interval. Interval ticks reschedule
// themselves; on-demand ticks do not.
type PollTickMsg struct {
	OnDemand bool
}

type PollSuccessMsg struct {
	Result   feedsync.PollResult
	Duration time.Duration
}

type PollErrorMsg struct {
	Err error
}

type DeleteSuccessMsg struct {
	ID     feed.ID
	Result feedsync.DeleteResult
}

// DeleteConflictMsg reports a delete for an item the service no longer has.
type DeleteConflictMsg struct {
	ID     feed.ID
	Totals *feed.Totals
}

type DeleteErrorMsg struct {
	ID  feed.ID
	Err error
}

type UndoSuccessMsg struct {
	ID     feed.ID
	Result feedsync.UndoResult
}

type UndoErrorMsg struct {
	ID  feed.ID
	Err error
}

type CountSuccessMsg struct {
	Totals feed.Totals
}

type CountErrorMsg struct {
	Err error
}

type UpdateFeedSuccessMsg struct {
	Message string
	Totals  *feed.Totals
}

type UpdateFeedErrorMsg struct {
	Err error
}

type SnapshotErrorMsg struct {
	Err error
}

type NotifyExpireMsg struct {
	Generation int
}

type OpenURLSuccessMsg struct {
	Status string
	Opened bool
}

type OpenURLErrorMsg struct {
	Err error
}

type ClearStatusMsg struct {
	ID int
}

func LoadPageCmd(service Service, page int, query, source string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		start := time.Now()

		res, err := service.FetchPage(ctx, page, query)
		if err != nil {
			return PageLoadErrorMsg{Page: page, Err: err, Duration: time.Since(start), Source: source}
		}
		return PageLoadSuccessMsg{Page: page, Result: res, Duration: time.Since(start), Source: source}
	}
}

func PollTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return PollTickMsg{}
	})
}

func PollNowCmd() tea.Cmd {
	return func() tea.Msg { return PollTickMsg{OnDemand: true} }
}

func PollCmd(service Service, since time.Time) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		start := time.Now()

		res, err := service.Poll(ctx, since)
		if err != nil {
			return PollErrorMsg{Err: err}
		}
		return PollSuccessMsg{Result: res, Duration: time.Since(start)}
	}
}

func DeleteCmd(service Service, ticket feedsync.DeleteTicket) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		res, err := service.Delete(ctx, ticket.ID, ticket.Page)
		switch {
		case errors.Is(err, newsapi.ErrConflict):
			return DeleteConflictMsg{ID: ticket.ID, Totals: res.Totals}
		case err != nil:
			return DeleteErrorMsg{ID: ticket.ID, Err: err}
		}
		return DeleteSuccessMsg{ID: ticket.ID, Result: res}
	}
}

func UndoCmd(service Service, id feed.ID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		res, err := service.Undo(ctx, id)
		if err != nil {
			return UndoErrorMsg{ID: id, Err: err}
		}
		return UndoSuccessMsg{ID: id, Result: res}
	}
}

func CountCmd(service Service) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		totals, err := service.Count(ctx)
		if err != nil {
			return CountErrorMsg{Err: err}
		}
		return CountSuccessMsg{Totals: totals}
	}
}

func UpdateFeedCmd(service Service) tea.Cmd {
	return func() tea.Msg {
		// The service fetches its sources before answering.
		ctx, cancel := context.WithTimeout(context.Background(), 3*requestTimeout)
		defer cancel()

		message, totals, err := service.UpdateFeed(ctx)
		if err != nil {
			return UpdateFeedErrorMsg{Err: err}
		}
		return UpdateFeedSuccessMsg{Message: message, Totals: totals}
	}
}

// SaveSnapshotCmd persists items as they were at takenAt. Commands run
// concurrently; the stamp lets the store drop a save that lost the race.
// Success produces no message.
func SaveSnapshotCmd(service Service, items []feed.Item, totals *feed.Totals, takenAt time.Time) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := service.SaveSnapshot(ctx, items, totals, takenAt); err != nil {
			return SnapshotErrorMsg{Err: err}
		}
		return nil
	}
}

func NotifyExpireCmd(arm notify.Arm) tea.Cmd {
	return tea.Tick(arm.After, func(time.Time) tea.Msg {
		return NotifyExpireMsg{Generation: arm.Generation}
	})
}

func ClearStatusCmd(id int, after time.Duration) tea.Cmd {
	return tea.Tick(after, func(time.Time) tea.Msg {
		return ClearStatusMsg{ID: id}
	})
}

func OpenURLCmd(url string, openFn, copyFn func(string) error) tea.Cmd {
	return func() tea.Msg {
		if openFn != nil {
			if err := openFn(url); err == nil {
				return OpenURLSuccessMsg{Status: "Opened link in browser", Opened: true}
			}
		}
		if copyFn != nil {
			if err := copyFn(url); err == nil {
				return OpenURLSuccessMsg{Status: "Could not open browser, link copied to clipboard"}
			}
		}
		return OpenURLErrorMsg{Err: fmt.Errorf("could not open link or copy to clipboard")}
	}
}

func CopyURLCmd(url string, copyFn func(string) error) tea.Cmd {
	return func() tea.Msg {
		if copyFn != nil {
			if err := copyFn(url); err == nil {
				return OpenURLSuccessMsg{Status: "Link copied to clipboard"}
			}
		}
		return OpenURLErrorMsg{Err: fmt.Errorf("could not copy link to clipboard")}
	}
}
