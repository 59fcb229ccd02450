// Package newsapitest provides an in-memory news service that speaks the
// same JSON endpoints as the real one.
package newsapitest

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/glabrego/newsdesk-cli/internal/feed"
)

const backupCount = 5

type Article struct {
	ID        int
	Title     string
	URL       string
	Published time.Time
	// Added is when the service ingested the article; polls compare
	// against it, not against Published.
	Added   time.Time
	Deleted bool
}

type Server struct {
	mu       sync.Mutex
	articles []*Article
	nextID   int
	failures map[string][]int
	calls    map[string]int

	PageSize int
	// LegacyDates omits the typed published field so clients have to read
	// the date printed on the card.
	LegacyDates bool
	Now         func() time.Time

	router chi.Router
}

func New() *Server {
	s := &Server{
		nextID:   1,
		failures: make(map[string][]int),
		calls:    make(map[string]int),
		PageSize: feed.DefaultCapacity,
		Now:      time.Now,
	}
	r := chi.NewRouter()
	r.Route("/noticias", func(r chi.Router) {
		r.Get("/get-page/", s.handlePage)
		r.Get("/check-new-news/", s.handleCheck)
		r.Get("/get-news-count/", s.handleCount)
		r.Get("/update-feed/", s.handleUpdate)
		r.Post("/delete/{id}/", s.handleDelete)
		r.Post("/undo/{id}/", s.handleUndo)
	})
	s.router = r
	return s
}

// Start serves s on a local listener until the test ends.
func Start(tb testing.TB) (*Server, *httptest.Server) {
	tb.Helper()
	s := New()
	ts := httptest.NewServer(s)
	tb.Cleanup(ts.Close)
	return s, ts
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Add ingests an article and returns its id.
func (s *Server) Add(title string, published time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &Article{
		ID:        s.nextID,
		Title:     title,
		URL:       fmt.Sprintf("https://news.example.com/%d", s.nextID),
		Published: published,
		Added:     s.Now(),
	}
	s.nextID++
	s.articles = append(s.articles, a)
	return a.ID
}

// FailNext makes the next call to the named endpoint ("delete", "undo",
// "check", "page", "count", "update") answer with status.
func (s *Server) FailNext(endpoint string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[endpoint] = append(s.failures[endpoint], status)
}

func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

func (s *Server) Deleted(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.find(id)
	return a != nil && a.Deleted
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail(w, "page") {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	visible := s.visible(r.URL.Query().Get("q"))
	start := min((page-1)*s.PageSize, len(visible))
	end := min(start+s.PageSize, len(visible))
	backupEnd := min(end+backupCount, len(visible))

	resp := s.counts()
	resp["cards"] = s.cards(visible[start:end])
	resp["backup_cards"] = s.cards(visible[end:backupEnd])
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail(w, "check") {
		return
	}
	since, err := time.Parse(time.RFC3339Nano, r.URL.Query().Get("last_checked"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	var fresh []*Article
	for _, a := range s.visible("") {
		if a.Added.After(since) {
			fresh = append(fresh, a)
		}
	}
	resp := s.counts()
	resp["news_cards"] = s.cards(fresh)
	resp["current_time"] = s.Now().UTC().Format(time.RFC3339Nano)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail(w, "count") {
		return
	}
	writeJSON(w, http.StatusOK, s.counts())
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail(w, "update") {
		return
	}
	resp := s.counts()
	resp["message"] = "feed updated"
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail(w, "delete") {
		return
	}
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	a := s.find(id)
	if a == nil || a.Deleted {
		resp := s.counts()
		resp["status"] = "error"
		resp["message"] = "not found"
		writeJSON(w, http.StatusNotFound, resp)
		return
	}
	a.Deleted = true

	page, _ := strconv.Atoi(r.FormValue("current_page"))
	if page < 1 {
		page = 1
	}
	resp := s.counts()
	visible := s.visible("")
	if offset := page*s.PageSize - 1; offset >= 0 && offset < len(visible) {
		next := visible[offset]
		resp["html"] = s.card(next)
		resp["modal"] = s.modal(next)
		if !s.LegacyDates {
			resp["published"] = next.Published.UTC().Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail(w, "undo") {
		return
	}
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	a := s.find(id)
	if a == nil || !a.Deleted {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "error", "message": "nothing to restore"})
		return
	}
	a.Deleted = false
	resp := s.counts()
	resp["id"] = a.ID
	resp["html"] = s.card(a)
	resp["modal"] = s.modal(a)
	if !s.LegacyDates {
		resp["published"] = a.Published.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) fail(w http.ResponseWriter, endpoint string) bool {
	s.calls[endpoint]++
	queue := s.failures[endpoint]
	if len(queue) == 0 {
		return false
	}
	status := queue[0]
	s.failures[endpoint] = queue[1:]
	writeJSON(w, status, map[string]any{"status": "error", "message": http.StatusText(status)})
	return true
}

func (s *Server) find(id int) *Article {
	for _, a := range s.articles {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (s *Server) visible(query string) []*Article {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []*Article
	for _, a := range s.articles {
		if a.Deleted {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(a.Title), query) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Published.After(out[j].Published) })
	return out
}

func (s *Server) counts() map[string]any {
	total := len(s.visible(""))
	return map[string]any{
		"status":      "success",
		"total_news":  total,
		"total_pages": (total + s.PageSize - 1) / s.PageSize,
	}
}

func (s *Server) cards(articles []*Article) []map[string]any {
	out := make([]map[string]any, 0, len(articles))
	for _, a := range articles {
		c := map[string]any{"id": a.ID, "card": s.card(a), "modal": s.modal(a)}
		if !s.LegacyDates {
			c["published"] = a.Published.UTC().Format(time.RFC3339)
		}
		out = append(out, c)
	}
	return out
}

func (s *Server) card(a *Article) string {
	return fmt.Sprintf(`<div id="news-%d" class="news-card-container"><div class="news-card">`+
		`<h3 class="news-title"><a href="%s">%s</a></h3>`+
		`<span class="news-date">%s</span></div></div>`,
		a.ID, html.EscapeString(a.URL), html.EscapeString(a.Title), a.Published.UTC().Format(feed.LegacyLayout))
}

func (s *Server) modal(a *Article) string {
	return fmt.Sprintf(`<div id="modal-%d" class="modal"><h2>%s</h2><p>%s</p><a href="%s">Leer más</a></div>`,
		a.ID, html.EscapeString(a.Title), html.EscapeString(a.Title), html.EscapeString(a.URL))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
