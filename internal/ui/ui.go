package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/shared"
	"github.com/desertthunder/beatq/internal/tasks"
)

// DefaultInterval is how often the watcher re-reads the store.
const DefaultInterval = time.Second

// ViewState represents the current view in the TUI.
type ViewState int

const (
	BatchListView ViewState = iota
	BatchView
)

// Source reads batches for display.
type Source interface {
	Batches(ctx context.Context) ([]*models.Batch, error)
	Status(ctx context.Context, batchID string) (*models.BatchWithTracks, error)
}

// Controller acts on batches and tracks. A nil Controller makes the watcher read-only.
type Controller interface {
	Cancel(ctx context.Context, batchID string) error
	Retry(ctx context.Context, trackID string) error
	Skip(ctx context.Context, trackID string) error
	ResolveManual(ctx context.Context, trackID, videoID string) error
}

// Options configures a [Model].
type Options struct {
	BatchID  string                      // open this batch directly
	Interval time.Duration               // poll interval, [DefaultInterval] when zero
	Updates  <-chan tasks.ProgressUpdate // optional live updates
}

// Model represents the TUI application state.
type Model struct {
	ctx        context.Context
	view       ViewState
	source     Source
	control    Controller
	opts       Options
	width      int
	height     int
	batchList  list.Model
	trackList  list.Model
	current    *models.BatchWithTracks
	bar        progress.Model
	input      textinput.Model
	resolving  string // track awaiting a typed video id
	lastUpdate string
	status     string
	err        error
	help       help.Model
	keys       keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, source Source, control Controller, opts Options) *Model {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	input := textinput.New()
	input.Placeholder = "video id"
	input.CharLimit = 64

	m := &Model{
		ctx:       ctx,
		view:      BatchListView,
		source:    source,
		control:   control,
		opts:      opts,
		batchList: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		trackList: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		bar:       progress.New(progress.WithDefaultGradient()),
		input:     input,
		help:      help.New(),
		keys:      newKeyMap(),
	}
	m.batchList.Title = "Batches"
	if opts.BatchID != "" {
		m.view = BatchView
	}
	return m
}

// Init fetches the first snapshot and starts polling.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick(), m.waitForProgress())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.batchList.SetSize(msg.Width-4, msg.Height-8)
		m.trackList.SetSize(msg.Width-4, msg.Height-10)
		m.bar.Width = max(msg.Width-8, 10)
		return m, nil

	case tea.KeyMsg:
		if m.resolving != "" {
			return m.handleResolveKeys(msg)
		}
		switch m.view {
		case BatchListView:
			return m.handleBatchListKeys(msg)
		case BatchView:
			return m.handleBatchKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTick:
		return m, tea.Batch(m.fetch(), m.tick())

	case MsgBatchesFetched:
		data := msg.data.(batchesFetched)
		m.err = data.err
		if data.err != nil {
			return m, nil
		}
		items := make([]list.Item, len(data.batches))
		for i, b := range data.batches {
			items[i] = batchItem{batch: b}
		}
		return m, m.batchList.SetItems(items)

	case MsgBatchFetched:
		data := msg.data.(batchFetched)
		m.err = data.err
		if data.err != nil {
			return m, nil
		}
		m.current = data.batch
		items := make([]list.Item, len(data.batch.Tracks))
		for i, t := range data.batch.Tracks {
			items[i] = trackItem{track: t}
		}
		m.trackList.Title = data.batch.Batch.SourceName
		return m, m.trackList.SetItems(items)

	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		m.lastUpdate = update.Message
		return m, m.waitForProgress()

	case MsgUpdatesClosed:
		m.opts.Updates = nil
		return m, nil

	case MsgActionDone:
		data := msg.data.(actionDone)
		if data.err != nil {
			m.status = styles.err.Render(fmt.Sprintf("%s failed: %v", data.action, data.err))
		} else {
			m.status = styles.ok.Render(data.action + " done")
		}
		return m, m.fetch()
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case BatchListView:
		body = m.renderBatchList()
	case BatchView:
		body = m.renderBatch()
	}

	if m.err != nil {
		body = fmt.Sprintf("%s\n%s", body, styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	return body
}

func (m *Model) handleBatchListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.batchList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetch()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.batchList.SelectedItem().(batchItem); ok {
			m.opts.BatchID = item.batch.ID
			m.view = BatchView
			m.current = nil
			m.status = ""
			return m, m.fetch()
		}
		return m, nil
	}
	return m.updateLists(msg)
}

func (m *Model) handleBatchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = BatchListView
		m.status = ""
		return m, m.fetch()
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetch()
	}

	if m.control != nil {
		switch {
		case key.Matches(msg, m.keys.cancel):
			id := m.opts.BatchID
			return m, m.act("cancel", func() error { return m.control.Cancel(m.ctx, id) })
		case key.Matches(msg, m.keys.retry):
			if t := m.selectedTrack(); t != nil {
				return m, m.act("retry", func() error { return m.control.Retry(m.ctx, t.ID) })
			}
		case key.Matches(msg, m.keys.skip):
			if t := m.selectedTrack(); t != nil {
				return m, m.act("skip", func() error { return m.control.Skip(m.ctx, t.ID) })
			}
		case key.Matches(msg, m.keys.resolve):
			if t := m.selectedTrack(); t != nil && t.Status == models.TrackMatchingManual {
				m.resolving = t.ID
				m.input.SetValue("")
				return m, m.input.Focus()
			}
			return m, nil
		}
	}
	return m.updateLists(msg)
}

func (m *Model) handleResolveKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.resolving = ""
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		trackID, videoID := m.resolving, strings.TrimSpace(m.input.Value())
		m.resolving = ""
		m.input.Blur()
		return m, m.act("match", func() error { return m.control.ResolveManual(m.ctx, trackID, videoID) })
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case BatchListView:
		m.batchList, cmd = m.batchList.Update(msg)
	case BatchView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) selectedTrack() *models.Track {
	if item, ok := m.trackList.SelectedItem().(trackItem); ok {
		return item.track
	}
	return nil
}

func (m *Model) fetch() tea.Cmd {
	if m.view == BatchView {
		id := m.opts.BatchID
		return func() tea.Msg {
			bt, err := m.source.Status(m.ctx, id)
			return batchFetchedMsg(bt, err)
		}
	}
	return func() tea.Msg {
		batches, err := m.source.Batches(m.ctx)
		return batchesFetchedMsg(batches, err)
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) act(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg(action, fn())
	}
}

func (m *Model) waitForProgress() tea.Cmd {
	updates := m.opts.Updates
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case update, ok := <-updates:
			if !ok {
				return updatesClosedMsg()
			}
			return progressUpdateMsg(update)
		case <-m.ctx.Done():
			return updatesClosedMsg()
		}
	}
}

func (m *Model) renderBatchList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.refresh, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n%s\n\n%s", m.batchList.View(), m.renderLastUpdate(), helpView)
}

func (m *Model) renderBatch() string {
	if m.current == nil {
		return styles.help.Render("Loading batch...")
	}

	b := m.current.Batch
	title := styles.title.Render(b.SourceName)
	state := styles.forBatch(b.State).Render(string(b.State))
	if b.ErrorCode != models.ErrorNone {
		state = fmt.Sprintf("%s (%s)", state, b.ErrorCode)
	}
	info := fmt.Sprintf("%s • %d completed • %d failed • %d total • %s • %d retries",
		state, b.CompletedCount, b.FailedCount, b.TotalTracks, shared.FormatBytes(b.TotalBytesDownloaded), b.TotalRetries)

	var out strings.Builder
	out.WriteString(fmt.Sprintf("%s\n%s\n%s\n\n", title, info, m.bar.ViewAs(b.Progress())))

	if m.resolving != "" {
		out.WriteString(fmt.Sprintf("Video for %s: %s\n", m.trackLabel(m.resolving), m.input.View()))
		out.WriteString(styles.help.Render("enter to confirm, esc to abort"))
		return out.String()
	}

	out.WriteString(m.trackList.View())
	if m.status != "" {
		out.WriteString("\n" + m.status)
	}
	out.WriteString("\n" + m.renderLastUpdate())

	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	if m.control != nil {
		helpKeys = []key.Binding{m.keys.cancel, m.keys.retry, m.keys.skip, m.keys.resolve, m.keys.back, m.keys.quit}
	}
	out.WriteString("\n\n" + m.help.ShortHelpView(helpKeys))
	return out.String()
}

func (m *Model) renderLastUpdate() string {
	if m.lastUpdate == "" {
		return ""
	}
	return styles.help.Render(m.lastUpdate)
}

func (m *Model) trackLabel(id string) string {
	if m.current != nil {
		if t := m.current.Find(id); t != nil {
			return t.Label()
		}
	}
	return id
}
