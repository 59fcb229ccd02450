package newsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/glabrego/newsdesk-cli/internal/feed"
)

const (
	SessionCookie = "sessionid"
	CSRFCookie    = "csrftoken"
)

type Client struct {
	baseURL  string
	session  string
	csrf     string
	http     *http.Client
	limiter  *rate.Limiter
	parser   feed.TimestampParser
	logger   *log.Logger
	newReqID func() string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero or less disables it.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l.WithPrefix("newsapi")
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(c *Client) { c.parser.Location = loc }
}

func NewClient(baseURL, session, csrf string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		session:  session,
		csrf:     csrf,
		http:     &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		logger:   log.New(io.Discard),
		newReqID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Poll asks for items published after since.
func (c *Client) Poll(ctx context.Context, since time.Time) (PollResponse, error) {
	const op = "check new news"
	q := make(url.Values)
	q.Set("last_checked", since.UTC().Format(time.RFC3339Nano))

	var body struct {
		envelope
		Cards       []wireCard `json:"news_cards"`
		CurrentTime string     `json:"current_time"`
	}
	if err := c.do(ctx, op, http.MethodGet, "/noticias/check-new-news/?"+q.Encode(), nil, false, &body); err != nil {
		return PollResponse{}, err
	}

	items, err := c.items(op, body.Cards)
	if err != nil {
		return PollResponse{}, err
	}
	checkpoint, err := time.Parse(time.RFC3339Nano, body.CurrentTime)
	if err != nil {
		return PollResponse{}, decodeError(op, fmt.Errorf("current_time %q: %w", body.CurrentTime, err))
	}
	return PollResponse{Items: items, Checkpoint: checkpoint, Totals: body.totals()}, nil
}

func (c *Client) Page(ctx context.Context, page int, query string) (PageResponse, error) {
	const op = "get page"
	if page < 1 {
		page = 1
	}
	q := make(url.Values)
	q.Set("page", strconv.Itoa(page))
	q.Set("order", "desc")
	if query != "" {
		q.Set("q", query)
	}

	var body struct {
		envelope
		Cards   []wireCard `json:"cards"`
		Backups []wireCard `json:"backup_cards"`
	}
	if err := c.do(ctx, op, http.MethodGet, "/noticias/get-page/?"+q.Encode(), nil, false, &body); err != nil {
		return PageResponse{}, err
	}

	items, err := c.items(op, body.Cards)
	if err != nil {
		return PageResponse{}, err
	}
	backups, err := c.items(op, body.Backups)
	if err != nil {
		return PageResponse{}, err
	}
	return PageResponse{Items: items, Backups: backups, Totals: body.totals()}, nil
}

// Delete removes an item on the server. page is the page the user is looking
// at; the server uses it to pick a replacement.
func (c *Client) Delete(ctx context.Context, id feed.ID, page int) (DeleteResponse, error) {
	const op = "delete news"
	form := make(url.Values)
	form.Set("current_page", strconv.Itoa(page))
	form.Set("order", "desc")

	var body struct {
		envelope
		replacement
	}
	path := "/noticias/delete/" + url.PathEscape(string(id)) + "/"
	if err := c.do(ctx, op, http.MethodPost, path, form, true, &body); err != nil {
		if errors.Is(err, ErrConflict) {
			return DeleteResponse{Totals: body.totals()}, err
		}
		return DeleteResponse{}, err
	}

	// The delete is committed at this point; an unreadable replacement only
	// costs the backfill.
	item, err := c.replacementItem(op, body.replacement)
	if err != nil {
		c.logger.Warn("replacement dropped", "op", op, "id", id, "err", err)
	}
	return DeleteResponse{Replacement: item, Totals: body.totals()}, nil
}

func (c *Client) Undo(ctx context.Context, id feed.ID) (UndoResponse, error) {
	const op = "undo delete"
	var body struct {
		envelope
		replacement
	}
	path := "/noticias/undo/" + url.PathEscape(string(id)) + "/"
	if err := c.do(ctx, op, http.MethodPost, path, url.Values{}, true, &body); err != nil {
		return UndoResponse{}, err
	}
	if body.ID == "" {
		body.ID = wireID(id)
	}
	// Same as Delete: the undo went through even if the card cannot be read,
	// the item shows up again with the next page load.
	item, err := c.replacementItem(op, body.replacement)
	if err != nil {
		c.logger.Warn("restored item dropped", "op", op, "id", id, "err", err)
	}
	return UndoResponse{Item: item, Totals: body.totals()}, nil
}

func (c *Client) Count(ctx context.Context) (feed.Totals, error) {
	const op = "get news count"
	var body envelope
	if err := c.do(ctx, op, http.MethodGet, "/noticias/get-news-count/", nil, false, &body); err != nil {
		return feed.Totals{}, err
	}
	t := body.totals()
	if t == nil {
		return feed.Totals{}, decodeError(op, errors.New("response has no total_news"))
	}
	return *t, nil
}

// UpdateFeed asks the service to fetch its sources.
func (c *Client) UpdateFeed(ctx context.Context) (UpdateResponse, error) {
	const op = "update feed"
	var body envelope
	if err := c.do(ctx, op, http.MethodGet, "/noticias/update-feed/", nil, false, &body); err != nil {
		return UpdateResponse{}, err
	}
	return UpdateResponse{Message: body.Message, Totals: body.totals()}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, form url.Values, itemScoped bool, out interface{ ok() error }) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return networkError(op, err)
	}

	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}
	req, err := c.newRequest(ctx, method, path, reqBody)
	if err != nil {
		return err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return networkError(op, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := statusError(op, resp.StatusCode, strings.TrimSpace(string(body)), itemScoped)
		if apiErr.Kind == KindConflict {
			// Counts may still be present on a conflict.
			_ = json.NewDecoder(bytes.NewReader(body)).Decode(out)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return decodeError(op, fmt.Errorf("decode response: %w", err))
	}
	if err := out.ok(); err != nil {
		return networkError(op, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	fullURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-Request-ID", c.newReqID())
	if c.csrf != "" {
		req.Header.Set("X-CSRFToken", c.csrf)
		req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: c.csrf})
	}
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: c.session})
	}
	return req, nil
}

func (c *Client) items(op string, cards []wireCard) ([]feed.Item, error) {
	items := make([]feed.Item, 0, len(cards))
	for _, wc := range cards {
		item, err := c.item(wc)
		if err != nil {
			return nil, decodeError(op, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Client) item(wc wireCard) (feed.Item, error) {
	id := feed.ID(wc.ID)
	if id == "" {
		var err error
		if id, err = cardID(wc.Card); err != nil {
			return feed.Item{}, fmt.Errorf("card without id: %w", err)
		}
	}
	published, err := c.parser.Parse(wc.Published, wc.Card)
	if err != nil {
		return feed.Item{}, fmt.Errorf("item %s: %w", id, err)
	}
	return feed.Item{
		ID:          id,
		PublishedAt: published,
		Payload:     feed.Payload{Card: wc.Card, Modal: wc.Modal},
	}, nil
}

func (c *Client) replacementItem(op string, r replacement) (*feed.Item, error) {
	if strings.TrimSpace(r.HTML) == "" {
		return nil, nil
	}
	item, err := c.item(wireCard{ID: r.ID, Card: r.HTML, Modal: r.Modal, Published: r.Published})
	if err != nil {
		return nil, decodeError(op, err)
	}
	return &item, nil
}
