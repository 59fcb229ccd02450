package tui

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/glabrego/newsdesk-cli/internal/feed"
	"github.com/glabrego/newsdesk-cli/internal/feedsync"
	"github.com/glabrego/newsdesk-cli/internal/tui/actions"
	"github.com/glabrego/newsdesk-cli/internal/tui/platform"
	tuistate "github.com/glabrego/newsdesk-cli/internal/tui/state"
	tuitheme "github.com/glabrego/newsdesk-cli/internal/tui/theme"
	"github.com/glabrego/newsdesk-cli/internal/tui/view"
)

const (
	statusTTL  = 3 * time.Second
	warningTTL = 5 * time.Second
)

// ActionRecorder counts user actions.
type ActionRecorder interface {
	Action(name string)
}

type Options struct {
	PollInterval time.Duration
	Query        string
	Location     *time.Location
	Logger       *log.Logger
	Recorder     ActionRecorder
}

type Model struct {
	service  actions.Service
	engine   *feedsync.Engine
	grid     *view.Grid
	theme    tuitheme.Theme
	keys     keyMap
	help     help.Model
	spinner  spinner.Model
	logger   *log.Logger
	recorder ActionRecorder

	pollInterval time.Duration
	query        string
	location     *time.Location

	cursor      int
	showHelp    bool
	inDetail    bool
	detailID    feed.ID
	detailTop   int
	width       int
	height      int
	loadingPage bool
	inflight    int
	spinning    bool
	status      string
	statusID    int
	err         error

	openURLFn func(string) error
	copyURLFn func(string) error
	nowFn     func() time.Time
}

// NewModel builds the UI around an engine whose renderer is grid. Anything
// already restored into the engine is shown until the first page load.
func NewModel(service actions.Service, engine *feedsync.Engine, grid *view.Grid, opts Options) Model {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return Model{
		loadingPage:  service != nil,
		spinning:     service != nil,
		service:      service,
		engine:       engine,
		grid:         grid,
		theme:        tuitheme.Default(),
		keys:         defaultKeyMap(),
		help:         help.New(),
		spinner:      spinner.New(spinner.WithSpinner(spinner.Dot)),
		logger:       opts.Logger.WithPrefix("tui"),
		recorder:     opts.Recorder,
		pollInterval: opts.PollInterval,
		query:        opts.Query,
		location:     opts.Location,
		openURLFn:    platform.OpenInBrowser,
		copyURLFn:    platform.CopyToClipboard,
		nowFn:        time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	if m.service == nil {
		return nil
	}
	return tea.Batch(
		actions.LoadPageCmd(m.service, m.engine.Page(), m.query, "init"),
		actions.PollTickCmd(m.pollInterval),
		m.spinner.Tick,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tea.FocusMsg:
		return m.setVisible(true)
	case tea.BlurMsg:
		return m.setVisible(false)
	case tea.MouseMsg:
		m.engine.Notifier().Interact()
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			m.moveCursorBy(-1)
		case tea.MouseButtonWheelDown:
			m.moveCursorBy(1)
		}
		return m, nil
	case tea.KeyMsg:
		m.engine.Notifier().Interact()
		return m.handleKey(msg)
	case spinner.TickMsg:
		if !m.busy() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.spinning = true
		return m, cmd

	case actions.PageLoadSuccessMsg:
		anchor := m.currentID()
		m.loadingPage = false
		m.err = nil
		m.engine.SetPage(msg.Page)
		m.engine.Load(msg.Result)
		m.followAnchor(anchor)
		m.closeDetailIfGone()
		if msg.Source != "init" {
			m.status = fmt.Sprintf("Loaded page %d", msg.Page)
		}
		m.logger.Info("page loaded", "page", msg.Page, "source", msg.Source, "duration", msg.Duration)
		return m, m.saveSnapshotCmd()
	case actions.PageLoadErrorMsg:
		m.loadingPage = false
		m.status = ""
		m.err = msg.Err
		m.logger.Error("page load failed", "page", msg.Page, "source", msg.Source, "duration", msg.Duration, "err", msg.Err)
		return m, nil

	case actions.PollTickMsg:
		var cmds []tea.Cmd
		if !msg.OnDemand {
			cmds = append(cmds, actions.PollTickCmd(m.pollInterval))
		}
		if m.service == nil {
			return m, tea.Batch(cmds...)
		}
		since, ok := m.engine.BeginPoll()
		if !ok {
			return m, tea.Batch(cmds...)
		}
		cmds = append(cmds, actions.PollCmd(m.service, since), m.startSpinner())
		return m, tea.Batch(cmds...)
	case actions.PollSuccessMsg:
		anchor := m.currentID()
		out := m.engine.ApplyPoll(msg.Result, m.nowFn())
		m.grid.MarkFresh(feed.IDs(out.Merge.Inserted))
		m.followAnchor(anchor)
		m.closeDetailIfGone()

		var cmds []tea.Cmd
		if out.Notify != nil {
			cmds = append(cmds, actions.NotifyExpireCmd(*out.Notify))
		}
		if out.NeedCount {
			cmds = append(cmds, m.countCmd())
		}
		if !out.Merge.Empty() {
			cmds = append(cmds, m.saveSnapshotCmd())
		}
		return m, tea.Batch(cmds...)
	case actions.PollErrorMsg:
		m.engine.FailPoll(msg.Err)
		return m, nil

	case actions.DeleteSuccessMsg:
		m.settle()
		anchor := m.currentID()
		m.engine.ConfirmDelete(msg.ID, msg.Result)
		m.followAnchor(anchor)
		m.closeDetailIfGone()
		return m.withStatus("Deleted", statusTTL, m.saveSnapshotCmd())
	case actions.DeleteConflictMsg:
		m.settle()
		m.engine.ConflictDelete(msg.ID, msg.Totals)
		return m.withStatus("Already deleted", statusTTL, m.saveSnapshotCmd())
	case actions.DeleteErrorMsg:
		m.settle()
		anchor := m.currentID()
		m.engine.RollbackDelete(msg.ID, msg.Err)
		m.followAnchor(anchor)
		m.closeDetailIfGone()
		m.logger.Warn("delete failed", "id", msg.ID, "err", msg.Err)
		count := m.countCmd()
		return m.withStatus("Delete failed, item restored", warningTTL, count, m.saveSnapshotCmd())

	case actions.UndoSuccessMsg:
		m.settle()
		anchor := m.currentID()
		m.engine.ApplyUndo(msg.ID, msg.Result)
		m.followAnchor(anchor)
		m.closeDetailIfGone()
		return m.withStatus("Delete undone", statusTTL, m.saveSnapshotCmd())
	case actions.UndoErrorMsg:
		m.settle()
		m.logger.Warn("undo failed", "id", msg.ID, "err", msg.Err)
		return m.withStatus("Undo failed", warningTTL)

	case actions.CountSuccessMsg:
		m.settle()
		m.engine.ApplyTotals(msg.Totals)
		return m, nil
	case actions.CountErrorMsg:
		m.settle()
		m.logger.Warn("count resync failed", "err", msg.Err)
		return m, nil

	case actions.UpdateFeedSuccessMsg:
		m.settle()
		if msg.Totals != nil {
			m.engine.ApplyTotals(*msg.Totals)
		}
		status := strings.TrimSpace(msg.Message)
		if status == "" {
			status = "Feed updated"
		}
		return m.withStatus(status, statusTTL, actions.PollNowCmd())
	case actions.UpdateFeedErrorMsg:
		m.settle()
		m.logger.Warn("update feed failed", "err", msg.Err)
		return m.withStatus("Update failed: "+msg.Err.Error(), warningTTL)

	case actions.SnapshotErrorMsg:
		m.logger.Warn("snapshot not saved", "err", msg.Err)
		return m, nil

	case actions.NotifyExpireMsg:
		if m.engine.Notifier().Expire(msg.Generation) {
			m.grid.ClearFresh()
		}
		return m, nil

	case actions.OpenURLSuccessMsg:
		m.err = nil
		return m.withStatus(msg.Status, statusTTL)
	case actions.OpenURLErrorMsg:
		m.err = nil
		return m.withStatus(msg.Err.Error(), warningTTL)
	case actions.ClearStatusMsg:
		if msg.ID == m.statusID {
			m.status = ""
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Help) {
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil
	}
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if key.Matches(msg, m.keys.Dismiss) {
		if m.engine.Notifier().Dismiss() {
			m.grid.ClearFresh()
		}
		return m, nil
	}

	if m.showHelp {
		if key.Matches(msg, m.keys.Back) {
			m.showHelp = false
			m.help.ShowAll = false
		}
		return m, nil
	}

	if m.inDetail {
		switch {
		case key.Matches(msg, m.keys.Back):
			m.inDetail = false
			m.detailTop = 0
		case key.Matches(msg, m.keys.Up):
			if m.detailTop > 0 {
				m.detailTop--
			}
		case key.Matches(msg, m.keys.Down):
			maxTop := view.DetailMaxTop(len(m.detailLines()), m.detailBodyHeight())
			if m.detailTop < maxTop {
				m.detailTop++
			}
		case key.Matches(msg, m.keys.OpenLink):
			return m.openCurrentLink()
		case key.Matches(msg, m.keys.CopyLink):
			return m.copyCurrentLink()
		case key.Matches(msg, m.keys.Delete):
			return m.deleteCurrent()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveCursorBy(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursorBy(1)
	case key.Matches(msg, m.keys.Top):
		m.cursor = 0
	case key.Matches(msg, m.keys.Bottom):
		m.cursor = tuistate.ClampCursor(m.grid.Len()-1, m.grid.Len())
	case key.Matches(msg, m.keys.PageUp):
		m.moveCursorBy(-tuistate.PageStep(m.height, m.bannerShown()))
	case key.Matches(msg, m.keys.PageDown):
		m.moveCursorBy(tuistate.PageStep(m.height, m.bannerShown()))
	case key.Matches(msg, m.keys.Open):
		row, ok := m.grid.At(m.cursor)
		if !ok {
			return m, nil
		}
		m.inDetail = true
		m.detailID = row.Item.ID
		m.detailTop = 0
	case key.Matches(msg, m.keys.Delete):
		return m.deleteCurrent()
	case key.Matches(msg, m.keys.Undo):
		return m.undoLast()
	case key.Matches(msg, m.keys.Update):
		return m.updateFeed()
	case key.Matches(msg, m.keys.Reload):
		return m.loadPage(m.engine.Page())
	case key.Matches(msg, m.keys.PrevPage):
		if m.engine.Page() <= 1 {
			return m.withStatus("Already on the first page", statusTTL)
		}
		return m.loadPage(m.engine.Page() - 1)
	case key.Matches(msg, m.keys.NextPage):
		if totals, ok := m.engine.Totals(); ok && totals.HasPages && m.engine.Page() >= totals.Pages {
			return m.withStatus("Already on the last page", statusTTL)
		}
		return m.loadPage(m.engine.Page() + 1)
	case key.Matches(msg, m.keys.OpenLink):
		return m.openCurrentLink()
	case key.Matches(msg, m.keys.CopyLink):
		return m.copyCurrentLink()
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.theme.Title.Render("Newsdesk"))
	b.WriteString(" ")
	b.WriteString(m.theme.ModePill.Render(m.mode()))
	b.WriteString("\n")
	if banner := view.Banner(m.engine.Notifier().State(m.nowFn()), m.theme); banner != "" {
		b.WriteString(banner)
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n\n")

	switch {
	case m.showHelp:
	case m.inDetail:
		b.WriteString(view.RenderDetailLines(m.detailLines(), m.detailTop, m.detailBodyHeight()))
	case m.grid.Len() == 0 && m.loadingPage:
		b.WriteString("Loading news...\n")
	case m.grid.Len() == 0:
		b.WriteString("No news available.\n")
	default:
		start, end := tuistate.CenteredWindow(m.grid.Len(), m.cursor, m.listBodyHeight())
		b.WriteString(view.RenderListBody(view.ListRenderInput{
			Len:       m.grid.Len(),
			Start:     start,
			End:       end,
			Cursor:    m.cursor,
			RenderRow: m.renderRow,
		}))
	}

	b.WriteString("\n")
	b.WriteString(m.messagePanel())
	b.WriteString("\n")
	b.WriteString(m.footer())
	b.WriteString("\n")
	return b.String()
}

func (m Model) mode() string {
	switch {
	case m.showHelp:
		return "help"
	case m.inDetail:
		return "detail"
	default:
		return "list"
	}
}

func (m Model) renderRow(index int, active bool) string {
	row, _ := m.grid.At(index)
	return view.RenderRowLine(view.RowLineParams{
		Row:      row,
		Now:      m.nowFn(),
		Location: m.location,
		Position: index,
		Active:   active,
		Width:    m.contentWidth(),
	}, m.theme)
}

func (m Model) messagePanel() string {
	warning := ""
	if m.err != nil {
		warning = m.err.Error()
	}
	return view.Message(m.busy(), m.spinner.View(), m.status, warning, m.theme)
}

func (m Model) footer() string {
	totals, ok := m.engine.Totals()
	return view.Footer(view.FooterParams{
		Page:       m.engine.Page(),
		Shown:      m.grid.Len(),
		Totals:     totals,
		HasTotals:  ok,
		Checkpoint: m.engine.Checkpoint(),
		Query:      m.query,
	}, m.theme)
}

func (m Model) detailLines() []string {
	idx := m.grid.IndexOf(m.detailID)
	row, ok := m.grid.At(idx)
	if !ok {
		return []string{"No item selected."}
	}
	return view.DetailLines(row, m.location, m.contentWidth(), 0)
}

func (m Model) deleteCurrent() (tea.Model, tea.Cmd) {
	id := m.currentID()
	if m.inDetail {
		id = m.detailID
	}
	if id == "" || m.service == nil {
		return m, nil
	}
	ticket, err := m.engine.BeginDelete(id)
	if err != nil {
		if errors.Is(err, feedsync.ErrDeleteInFlight) {
			return m.withStatus("Delete already in progress", statusTTL)
		}
		return m.withStatus(err.Error(), warningTTL)
	}
	m.recorder.Action("delete")
	m.cursor = tuistate.ClampCursor(m.cursor, m.grid.Len())
	m.closeDetailIfGone()
	m.inflight++
	spin := m.startSpinner()
	return m, tea.Batch(actions.DeleteCmd(m.service, ticket), spin)
}

func (m Model) undoLast() (tea.Model, tea.Cmd) {
	if m.service == nil {
		return m, nil
	}
	id, err := m.engine.BeginUndo()
	if err != nil {
		return m.withStatus("Nothing to undo", statusTTL)
	}
	m.recorder.Action("undo")
	m.inflight++
	m.status = "Undoing delete..."
	spin := m.startSpinner()
	return m, tea.Batch(actions.UndoCmd(m.service, id), spin)
}

func (m Model) updateFeed() (tea.Model, tea.Cmd) {
	if m.service == nil {
		return m, nil
	}
	m.recorder.Action("update")
	m.inflight++
	m.status = "Updating feed..."
	m.err = nil
	spin := m.startSpinner()
	return m, tea.Batch(actions.UpdateFeedCmd(m.service), spin)
}

func (m Model) loadPage(page int) (tea.Model, tea.Cmd) {
	if m.service == nil {
		return m, nil
	}
	m.recorder.Action("page")
	m.loadingPage = true
	m.status = ""
	m.err = nil
	spin := m.startSpinner()
	return m, tea.Batch(actions.LoadPageCmd(m.service, page, m.query, "manual"), spin)
}

func (m Model) openCurrentLink() (tea.Model, tea.Cmd) {
	link, err := m.currentLink()
	if err != nil {
		return m.withStatus(err.Error(), warningTTL)
	}
	m.recorder.Action("open")
	return m, actions.OpenURLCmd(link, m.openURLFn, m.copyURLFn)
}

func (m Model) copyCurrentLink() (tea.Model, tea.Cmd) {
	link, err := m.currentLink()
	if err != nil {
		return m.withStatus(err.Error(), warningTTL)
	}
	m.recorder.Action("copy")
	return m, actions.CopyURLCmd(link, m.copyURLFn)
}

func (m Model) currentLink() (string, error) {
	idx := m.cursor
	if m.inDetail {
		idx = m.grid.IndexOf(m.detailID)
	}
	row, ok := m.grid.At(idx)
	if !ok {
		return "", fmt.Errorf("no item selected")
	}
	return platform.ValidateLink(row.Summary.Link)
}

// setVisible maps terminal focus to page visibility. Resuming a frozen
// notification schedules its remaining countdown.
func (m Model) setVisible(visible bool) (tea.Model, tea.Cmd) {
	arm, ok := m.engine.Notifier().SetVisible(visible, m.nowFn())
	if !m.engine.Notifier().State(m.nowFn()).Shown() {
		m.grid.ClearFresh()
	}
	if !ok {
		return m, nil
	}
	return m, actions.NotifyExpireCmd(arm)
}

func (m Model) withStatus(status string, ttl time.Duration, cmds ...tea.Cmd) (tea.Model, tea.Cmd) {
	m.status = status
	m.statusID++
	cmds = append(cmds, actions.ClearStatusCmd(m.statusID, ttl))
	return m, tea.Batch(cmds...)
}

func (m Model) saveSnapshotCmd() tea.Cmd {
	if m.service == nil {
		return nil
	}
	var totals *feed.Totals
	if t, ok := m.engine.Totals(); ok {
		totals = &t
	}
	return actions.SaveSnapshotCmd(m.service, m.engine.Items(), totals, m.nowFn())
}

func (m *Model) countCmd() tea.Cmd {
	if m.service == nil {
		return nil
	}
	m.inflight++
	return actions.CountCmd(m.service)
}

func (m *Model) settle() {
	if m.inflight > 0 {
		m.inflight--
	}
}

func (m *Model) startSpinner() tea.Cmd {
	if m.spinning {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

func (m Model) busy() bool {
	return m.loadingPage || m.inflight > 0 || m.engine.PollInFlight()
}

func (m Model) bannerShown() bool {
	return m.engine.Notifier().State(m.nowFn()).Shown()
}

func (m Model) currentID() feed.ID {
	row, ok := m.grid.At(m.cursor)
	if !ok {
		return ""
	}
	return row.Item.ID
}

func (m *Model) followAnchor(anchor feed.ID) {
	m.cursor = tuistate.FollowAnchor(m.grid.IDs(), anchor, m.cursor)
}

func (m *Model) moveCursorBy(delta int) {
	m.cursor = tuistate.ClampCursor(m.cursor+delta, m.grid.Len())
}

// closeDetailIfGone leaves the detail view when its item was evicted or
// deleted.
func (m *Model) closeDetailIfGone() {
	if !m.inDetail || m.grid.IndexOf(m.detailID) >= 0 {
		return
	}
	m.inDetail = false
	m.detailTop = 0
	m.status = "Item left the list"
}

func (m Model) contentWidth() int {
	if m.width <= 0 {
		return 80
	}
	return m.width
}

func (m Model) chromeLines() int {
	lines := 6
	if m.bannerShown() {
		lines++
	}
	return lines
}

func (m Model) listBodyHeight() int {
	if m.height <= 0 {
		return 0
	}
	return max(3, m.height-m.chromeLines())
}

func (m Model) detailBodyHeight() int {
	if m.height <= 0 {
		return 0
	}
	return max(3, m.height-m.chromeLines())
}

type nopRecorder struct{}

func (nopRecorder) Action(string) {}
