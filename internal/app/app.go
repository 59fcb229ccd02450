package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/glabrego/newsdesk-cli/internal/feed"
	"github.com/glabrego/newsdesk-cli/internal/feedsync"
	"github.com/glabrego/newsdesk-cli/internal/newsapi"
	"github.com/glabrego/newsdesk-cli/internal/storage"
)

type NewsClient interface {
	Poll(ctx context.Context, since time.Time) (newsapi.PollResponse, error)
	Page(ctx context.Context, page int, query string) (newsapi.PageResponse, error)
	Delete(ctx context.Context, id feed.ID, page int) (newsapi.DeleteResponse, error)
	Undo(ctx context.Context, id feed.ID) (newsapi.UndoResponse, error)
	Count(ctx context.Context) (feed.Totals, error)
	UpdateFeed(ctx context.Context) (newsapi.UpdateResponse, error)
}

type Repository interface {
	SaveSnapshot(ctx context.Context, snap storage.Snapshot) error
	LoadSnapshot(ctx context.Context) (storage.Snapshot, bool, error)
}

// Service adapts the remote client and the local cache to the shapes the
// sync engine consumes.
type Service struct {
	client NewsClient
	repo   Repository
	logger *log.Logger
	now    func() time.Time
}

func NewService(client NewsClient, repo Repository, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Service{client: client, repo: repo, logger: logger.WithPrefix("app"), now: time.Now}
}

func (s *Service) FetchPage(ctx context.Context, page int, query string) (feedsync.PageResult, error) {
	res, err := s.client.Page(ctx, page, query)
	if err != nil {
		return feedsync.PageResult{}, fmt.Errorf("fetch page %d: %w", page, err)
	}
	return feedsync.PageResult{Items: res.Items, Backups: res.Backups, Totals: res.Totals}, nil
}

func (s *Service) Poll(ctx context.Context, since time.Time) (feedsync.PollResult, error) {
	res, err := s.client.Poll(ctx, since)
	if err != nil {
		return feedsync.PollResult{}, fmt.Errorf("poll since %s: %w", since.Format(time.RFC3339), err)
	}
	return feedsync.PollResult{Items: res.Items, Checkpoint: res.Checkpoint, Totals: res.Totals}, nil
}

// Delete confirms a delete remotely. On a conflict the returned result still
// carries whatever counts the service sent.
func (s *Service) Delete(ctx context.Context, id feed.ID, page int) (feedsync.DeleteResult, error) {
	res, err := s.client.Delete(ctx, id, page)
	out := feedsync.DeleteResult{Replacement: res.Replacement, Totals: res.Totals}
	if err != nil {
		return out, fmt.Errorf("delete %s: %w", id, err)
	}
	return out, nil
}

func (s *Service) Undo(ctx context.Context, id feed.ID) (feedsync.UndoResult, error) {
	res, err := s.client.Undo(ctx, id)
	if err != nil {
		return feedsync.UndoResult{}, fmt.Errorf("undo delete of %s: %w", id, err)
	}
	return feedsync.UndoResult{Item: res.Item, Totals: res.Totals}, nil
}

func (s *Service) Count(ctx context.Context) (feed.Totals, error) {
	totals, err := s.client.Count(ctx)
	if err != nil {
		return feed.Totals{}, fmt.Errorf("resync counts: %w", err)
	}
	return totals, nil
}

func (s *Service) UpdateFeed(ctx context.Context) (string, *feed.Totals, error) {
	res, err := s.client.UpdateFeed(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("update feed: %w", err)
	}
	return res.Message, res.Totals, nil
}

// LoadCached returns the last saved list, or ok=false when there is none.
func (s *Service) LoadCached(ctx context.Context) (storage.Snapshot, bool, error) {
	snap, ok, err := s.repo.LoadSnapshot(ctx)
	if err != nil {
		return storage.Snapshot{}, false, fmt.Errorf("load snapshot from cache: %w", err)
	}
	if ok {
		s.logger.Debug("snapshot loaded", "items", len(snap.Items), "saved_at", snap.SavedAt)
	}
	return snap, ok, nil
}

// SaveSnapshot stores items as seen at takenAt (now when zero). Saves run
// concurrently, so one taken before the stored snapshot is dropped.
func (s *Service) SaveSnapshot(ctx context.Context, items []feed.Item, totals *feed.Totals, takenAt time.Time) error {
	if takenAt.IsZero() {
		takenAt = s.now()
	}
	snap := storage.Snapshot{Items: items, Totals: totals, SavedAt: takenAt}
	err := s.repo.SaveSnapshot(ctx, snap)
	if errors.Is(err, storage.ErrStaleSnapshot) {
		s.logger.Debug("older snapshot dropped", "taken_at", takenAt, "items", len(items))
		return nil
	}
	if err != nil {
		return fmt.Errorf("save snapshot to cache: %w", err)
	}
	return nil
}
