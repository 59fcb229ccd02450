package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glabrego/newsdesk-cli/internal/feed"
	"github.com/glabrego/newsdesk-cli/internal/newsapi"
	"github.com/glabrego/newsdesk-cli/internal/storage"
)

type fakeClient struct {
	page      newsapi.PageResponse
	poll      newsapi.PollResponse
	del       newsapi.DeleteResponse
	undo      newsapi.UndoResponse
	totals    feed.Totals
	update    newsapi.UpdateResponse
	err       error
	lastSince time.Time
	lastPage  int
}

func (f *fakeClient) Poll(_ context.Context, since time.Time) (newsapi.PollResponse, error) {
	f.lastSince = since
	return f.poll, f.err
}

func (f *fakeClient) Page(_ context.Context, page int, _ string) (newsapi.PageResponse, error) {
	f.lastPage = page
	return f.page, f.err
}

func (f *fakeClient) Delete(_ context.Context, _ feed.ID, page int) (newsapi.DeleteResponse, error) {
	f.lastPage = page
	return f.del, f.err
}

func (f *fakeClient) Undo(context.Context, feed.ID) (newsapi.UndoResponse, error) {
	return f.undo, f.err
}

func (f *fakeClient) Count(context.Context) (feed.Totals, error) { return f.totals, f.err }

func (f *fakeClient) UpdateFeed(context.Context) (newsapi.UpdateResponse, error) {
	return f.update, f.err
}

type fakeRepo struct {
	saved   *storage.Snapshot
	stored  storage.Snapshot
	has     bool
	saveErr error
	loadErr error
}

func (f *fakeRepo) SaveSnapshot(_ context.Context, snap storage.Snapshot) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = &snap
	return nil
}

func (f *fakeRepo) LoadSnapshot(context.Context) (storage.Snapshot, bool, error) {
	return f.stored, f.has, f.loadErr
}

func TestService_FetchPage_ConvertsResponse(t *testing.T) {
	item := feed.Item{ID: "1", PublishedAt: time.Now().UTC()}
	client := &fakeClient{page: newsapi.PageResponse{
		Items:   []feed.Item{item},
		Backups: []feed.Item{{ID: "2"}},
		Totals:  &feed.Totals{Items: 2, Pages: 1, HasPages: true},
	}}
	svc := NewService(client, &fakeRepo{}, nil)

	res, err := svc.FetchPage(context.Background(), 3, "")
	if err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}
	if client.lastPage != 3 {
		t.Fatalf("expected page 3 to be requested, got %d", client.lastPage)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "1" || len(res.Backups) != 1 {
		t.Fatalf("unexpected page result: %+v", res)
	}
	if res.Totals == nil || res.Totals.Items != 2 {
		t.Fatalf("unexpected totals: %+v", res.Totals)
	}
}

func TestService_Poll_WrapsErrorKind(t *testing.T) {
	cause := &newsapi.Error{Op: "check new news", Kind: newsapi.KindDecode, Err: errors.New("bad json")}
	svc := NewService(&fakeClient{err: cause}, &fakeRepo{}, nil)

	_, err := svc.Poll(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, newsapi.ErrDecode) {
		t.Fatalf("expected decode failure to survive wrapping, got %v", err)
	}
}

func TestService_Delete_KeepsCountsOnConflict(t *testing.T) {
	cause := &newsapi.Error{Op: "delete news", Kind: newsapi.KindConflict, Status: 404, Err: errors.New("gone")}
	client := &fakeClient{del: newsapi.DeleteResponse{Totals: &feed.Totals{Items: 8}}, err: cause}
	svc := NewService(client, &fakeRepo{}, nil)

	res, err := svc.Delete(context.Background(), "4", 2)
	if !errors.Is(err, newsapi.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if res.Totals == nil || res.Totals.Items != 8 {
		t.Fatalf("expected counts to be passed through, got %+v", res.Totals)
	}
	if client.lastPage != 2 {
		t.Fatalf("expected page context 2, got %d", client.lastPage)
	}
}

func TestService_SaveSnapshot_StampsTime(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(&fakeClient{}, repo, nil)
	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	err := svc.SaveSnapshot(context.Background(), []feed.Item{{ID: "1"}}, &feed.Totals{Items: 1, Pages: 1, HasPages: true}, time.Time{})
	if err != nil {
		t.Fatalf("SaveSnapshot returned error: %v", err)
	}
	if repo.saved == nil || !repo.saved.SavedAt.Equal(fixed) || len(repo.saved.Items) != 1 {
		t.Fatalf("unexpected saved snapshot: %+v", repo.saved)
	}
}

func TestService_SaveSnapshot_KeepsCallerStampAndDropsStale(t *testing.T) {
	taken := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	repo := &fakeRepo{}
	svc := NewService(&fakeClient{}, repo, nil)

	if err := svc.SaveSnapshot(context.Background(), nil, nil, taken); err != nil {
		t.Fatalf("SaveSnapshot returned error: %v", err)
	}
	if repo.saved == nil || !repo.saved.SavedAt.Equal(taken) {
		t.Fatalf("expected caller stamp to be stored, got %+v", repo.saved)
	}

	repo.saveErr = storage.ErrStaleSnapshot
	if err := svc.SaveSnapshot(context.Background(), nil, nil, taken.Add(-time.Second)); err != nil {
		t.Fatalf("expected a stale save to be dropped silently, got %v", err)
	}
}

func TestService_LoadCached(t *testing.T) {
	repo := &fakeRepo{stored: storage.Snapshot{Items: []feed.Item{{ID: "2"}}}, has: true}
	svc := NewService(&fakeClient{}, repo, nil)

	snap, ok, err := svc.LoadCached(context.Background())
	if err != nil {
		t.Fatalf("LoadCached returned error: %v", err)
	}
	if !ok || len(snap.Items) != 1 || snap.Items[0].ID != "2" {
		t.Fatalf("unexpected cached snapshot: %+v ok=%v", snap, ok)
	}

	repo.loadErr = errors.New("disk gone")
	if _, _, err := svc.LoadCached(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
}

func TestService_UpdateFeed(t *testing.T) {
	svc := NewService(&fakeClient{update: newsapi.UpdateResponse{Message: "ok", Totals: &feed.Totals{Items: 5}}}, &fakeRepo{}, nil)

	msg, totals, err := svc.UpdateFeed(context.Background())
	if err != nil {
		t.Fatalf("UpdateFeed returned error: %v", err)
	}
	if msg != "ok" || totals == nil || totals.Items != 5 {
		t.Fatalf("unexpected update result: %q %+v", msg, totals)
	}
}
