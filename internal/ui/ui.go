package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/tasks"
)

// Screen identifies the view currently rendered by the TUI.
type Screen int

const (
	HistoryScreen Screen = iota
	UploadScreen
	WatchScreen
	ResultScreen
	DownloadScreen
)

// Backend is the part of the processor client the TUI drives directly.
type Backend interface {
	tasks.Downloader
	Upload(ctx context.Context, path string) (*models.UploadResponse, error)
	Cleanup(ctx context.Context, taskID string) error
}

// History is the local record of uploads. It is optional.
type History interface {
	List(criteria map[string]any) ([]*models.TaskRecord, error)
	RecordUpload(resp *models.UploadResponse) (*models.TaskRecord, error)
	RecordSnapshot(ctx context.Context, snap models.Snapshot) error
	MarkCleanedUp(taskID string) error
}

// ModelOpts holds the TUI's dependencies.
type ModelOpts struct {
	Backend     Backend
	Subscriber  tasks.Subscriber
	History     History
	DownloadDir string
	File        string // uploaded on start when set
}

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	opts   ModelOpts
	status *tasks.StatusView
	events chan Msg

	screen   Screen
	width    int
	height   int
	history  list.Model
	spinner  spinner.Model
	bar      progress.Model
	help     help.Model
	input    textinput.Model
	keys     keyMap
	taskID   string
	filename string
	state    tasks.ViewState
	failure  string
	notice   string
	err      error

	progressChan chan tasks.ProgressUpdate
	downloadDone chan Msg
	progress     tasks.ProgressUpdate
	downloads    *tasks.DownloadResult
}

// NewModel creates a new TUI model with the provided dependencies.
//
// Status changes reach the model through a [tasks.StatusView]; terminal events are never dropped, intermediate ones may be.
func NewModel(ctx context.Context, opts ModelOpts) *Model {
	if opts.DownloadDir == "" {
		opts.DownloadDir = "downloads"
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.title.UnsetMarginBottom()

	input := textinput.New()
	input.Placeholder = "path/to/report.json"
	input.CharLimit = 1024
	input.Width = 50

	m := &Model{
		ctx:     ctx,
		opts:    opts,
		events:  make(chan Msg, 32),
		screen:  HistoryScreen,
		history: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:    help.New(),
		input:   input,
		keys:    newKeyMap(),
		state:   tasks.DefaultViewState(),
	}
	m.history.Title = "Uploads"

	m.status = tasks.NewStatusView(ctx, opts.Subscriber, tasks.ViewCallbacks{})
	m.status.OnChange(func(st tasks.ViewState) {
		select {
		case m.events <- stateChangedMsg(m.status.TaskID(), st):
		default:
		}
	})
	return m
}

// Screen returns the screen currently shown.
func (m *Model) Screen() Screen { return m.screen }

// Close disposes the status view.
func (m *Model) Close() { m.status.Close() }

// Init uploads the configured file or loads the history list.
func (m *Model) Init() tea.Cmd {
	if m.opts.File != "" {
		m.screen = UploadScreen
		m.filename = m.opts.File
		return tea.Batch(m.spinner.Tick, m.upload(m.opts.File))
	}
	return tea.Batch(m.spinner.Tick, m.loadHistory())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.history.SetSize(msg.Width-4, msg.Height-6)
		m.bar.Width = min(60, max(10, msg.Width-10))
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateList(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgHistoryLoaded:
		data := msg.data.(struct {
			records []*models.TaskRecord
			err     error
		})
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		items := make([]list.Item, len(data.records))
		for i, r := range data.records {
			items[i] = historyItem{record: r}
		}
		return m, m.history.SetItems(items)

	case MsgUploaded:
		data := msg.data.(struct {
			resp *models.UploadResponse
			err  error
		})
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		if m.opts.History != nil {
			m.opts.History.RecordUpload(data.resp)
		}
		m.filename = data.resp.Filename
		return m, m.watch(data.resp.TaskID)

	case MsgStateChanged:
		if msg.taskID != m.taskID || m.screen != WatchScreen {
			return m, m.waitForEvent()
		}
		m.state = msg.data.(tasks.ViewState)
		return m, m.waitForEvent()

	case MsgTaskComplete, MsgTaskFailed, MsgTaskVanished:
		if msg.taskID != m.taskID {
			return m, m.waitForEvent()
		}
		m.state = m.status.State()
		m.screen = ResultScreen
		switch msg.kind {
		case MsgTaskFailed:
			m.failure = msg.data.(string)
		case MsgTaskVanished:
			m.failure = "The processor no longer knows this task."
		}
		m.record()
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgDownloadsComplete:
		data := msg.data.(struct {
			result *tasks.DownloadResult
			err    error
		})
		m.progressChan, m.downloadDone = nil, nil
		m.downloads = data.result
		m.err = data.err
		m.screen = ResultScreen
		return m, nil

	case MsgCleanedUp:
		if err, _ := msg.data.(error); err != nil {
			m.notice = styles.warn.Render(fmt.Sprintf("Cleanup failed: %v", err))
			return m, nil
		}
		if m.opts.History != nil {
			m.opts.History.MarkCleanedUp(msg.taskID)
		}
		m.notice = styles.ok.Render("Remote task cleaned up")
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.input.Focused() && msg.Type != tea.KeyCtrlC {
		return m.handleInput(msg)
	}
	if key.Matches(msg, m.keys.quit) && !m.history.SettingFilter() {
		m.status.Close()
		return m, tea.Quit
	}

	switch m.screen {
	case HistoryScreen:
		switch {
		case key.Matches(msg, m.keys.upload) && !m.history.SettingFilter():
			m.screen = UploadScreen
			m.err = nil
			m.input.SetValue("")
			return m, m.input.Focus()
		case key.Matches(msg, m.keys.enter) && !m.history.SettingFilter():
			if item, ok := m.history.SelectedItem().(historyItem); ok {
				m.filename = item.record.Filename()
				return m, m.watch(item.record.TaskID())
			}
		case key.Matches(msg, m.keys.refresh):
			return m, m.loadHistory()
		}
		return m.updateList(msg)

	case UploadScreen:
		if m.err != nil && key.Matches(msg, m.keys.reset) {
			return m, m.reset()
		}

	case WatchScreen:
		if key.Matches(msg, m.keys.reset) {
			return m, m.reset()
		}

	case ResultScreen:
		switch {
		case key.Matches(msg, m.keys.download) && m.state.Status == models.StatusComplete:
			m.screen = DownloadScreen
			return m, m.startDownloads()
		case key.Matches(msg, m.keys.cleanup):
			return m, m.cleanup(m.taskID)
		case key.Matches(msg, m.keys.reset):
			return m, m.reset()
		}
	}
	return m, nil
}

// handleInput edits the upload path and submits it on enter.
func (m *Model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		path := strings.TrimSpace(m.input.Value())
		if path == "" {
			return m, nil
		}
		m.input.Blur()
		m.filename = path
		return m, m.upload(path)
	case tea.KeyEsc:
		m.input.Blur()
		return m, m.reset()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.screen != HistoryScreen {
		return m, nil
	}
	var cmd tea.Cmd
	m.history, cmd = m.history.Update(msg)
	return m, cmd
}

// watch points the status view at taskID and starts listening for its events.
func (m *Model) watch(taskID string) tea.Cmd {
	m.taskID = taskID
	m.state = tasks.DefaultViewState()
	m.failure, m.notice, m.err = "", "", nil
	m.downloads = nil
	m.screen = WatchScreen

	m.status.SetCallbacks(tasks.ViewCallbacks{
		OnComplete: func() { m.send(taskCompleteMsg(taskID)) },
		OnError:    func(message string) { m.send(taskFailedMsg(taskID, message)) },
		OnVanished: func() { m.send(taskVanishedMsg(taskID)) },
	})
	m.status.SetTask(taskID)
	return m.waitForEvent()
}

// send delivers a terminal event, waiting for room unless the TUI is shutting down.
func (m *Model) send(msg Msg) {
	select {
	case m.events <- msg:
	case <-m.ctx.Done():
	}
}

func (m *Model) reset() tea.Cmd {
	m.status.SetTask("")
	m.taskID, m.filename = "", ""
	m.state = tasks.DefaultViewState()
	m.failure, m.notice, m.err = "", "", nil
	m.downloads = nil
	m.screen = HistoryScreen
	return m.loadHistory()
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return <-events
	}
}

func (m *Model) loadHistory() tea.Cmd {
	h := m.opts.History
	return func() tea.Msg {
		if h == nil {
			return historyLoadedMsg(nil, nil)
		}
		records, err := h.List(map[string]any{"limit": 50})
		return historyLoadedMsg(records, err)
	}
}

func (m *Model) upload(path string) tea.Cmd {
	ctx, backend := m.ctx, m.opts.Backend
	return func() tea.Msg {
		resp, err := backend.Upload(ctx, path)
		return uploadedMsg(resp, err)
	}
}

func (m *Model) cleanup(taskID string) tea.Cmd {
	ctx, backend := m.ctx, m.opts.Backend
	return func() tea.Msg {
		return cleanedUpMsg(taskID, backend.Cleanup(ctx, taskID))
	}
}

// record stores the outcome in the history, best effort.
func (m *Model) record() {
	if m.opts.History == nil {
		return
	}
	m.opts.History.RecordSnapshot(m.ctx, m.snapshot())
}

func (m *Model) snapshot() models.Snapshot {
	snap := models.Snapshot{
		TaskID:   m.taskID,
		Filename: m.filename,
		Status:   m.state.Status,
		Progress: m.state.Progress,
		Files:    m.state.Files,
	}
	if m.state.Status == models.StatusFailed {
		snap.Error = m.failure
	}
	return snap
}

func (m *Model) startDownloads() tea.Cmd {
	progressChan := make(chan tasks.ProgressUpdate, 50)
	done := make(chan Msg, 1)
	m.progressChan, m.downloadDone = progressChan, done
	m.progress = tasks.ProgressUpdate{}

	ctx, backend, snap := m.ctx, m.opts.Backend, m.snapshot()
	opts := tasks.DownloadOpts{Dir: m.opts.DownloadDir}
	go func() {
		result, err := tasks.DownloadAll(ctx, progressChan, backend, snap, opts)
		close(progressChan)
		done <- downloadsCompleteMsg(result, err)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progressChan, done := m.progressChan, m.downloadDone
	return func() tea.Msg {
		if progressChan == nil {
			return nil
		}
		update, ok := <-progressChan
		if !ok {
			return <-done
		}
		return progressUpdateMsg(update)
	}
}

// View renders the UI based on the current screen.
func (m *Model) View() string {
	switch m.screen {
	case HistoryScreen:
		return m.renderHistory()
	case UploadScreen:
		return m.renderUpload()
	case WatchScreen:
		return m.renderWatch()
	case ResultScreen:
		return m.renderResult()
	case DownloadScreen:
		return m.renderDownloads()
	default:
		return ""
	}
}

func (m *Model) renderHistory() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}
	if len(m.history.Items()) == 0 {
		title := styles.title.Render("mrx")
		return fmt.Sprintf("%s\nNo uploads yet. Press u to upload a JSON file.\n\n%s",
			title, m.help.ShortHelpView([]key.Binding{m.keys.upload, m.keys.quit}))
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.upload, m.keys.refresh, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.history.View(), helpView)
}

func (m *Model) renderUpload() string {
	if m.input.Focused() {
		title := styles.title.Render("Upload a JSON file")
		return fmt.Sprintf("%s\n%s\n\n%s", title, m.input.View(), styles.help.Render("enter upload • esc back"))
	}

	title := styles.title.Render("Uploading")
	if m.err != nil {
		return fmt.Sprintf("%s\n%s\n\n%s", title,
			styles.err.Render(fmt.Sprintf("Upload failed: %v", m.err)),
			m.help.ShortHelpView([]key.Binding{m.keys.reset, m.keys.quit}))
	}
	return fmt.Sprintf("%s\n%s %s", title, m.spinner.View(), m.filename)
}

func (m *Model) renderWatch() string {
	title := styles.title.Render(fmt.Sprintf("Processing %s", m.filename))

	var line string
	switch m.state.Status {
	case models.StatusQueued:
		line = fmt.Sprintf("%s Waiting in queue...", m.spinner.View())
	default:
		line = fmt.Sprintf("%s %s %d%%", m.spinner.View(), styles.Status(m.state.Status), m.state.Progress)
	}

	body := fmt.Sprintf("%s\n\n%s\n%s", line, m.bar.ViewAs(float64(m.state.Progress)/100), styles.help.Render("task "+m.taskID))
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.reset, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s", title, body, helpView)
}

func (m *Model) renderResult() string {
	var b strings.Builder

	switch m.state.Status {
	case models.StatusComplete:
		b.WriteString(styles.ok.Render("✓ Processing complete"))
		b.WriteString("\n\n")
		files := make([]string, 0, len(m.state.Files))
		for _, f := range m.state.Files {
			files = append(files, fmt.Sprintf("%-6s %s", f.Type, f.Filename))
		}
		if len(files) == 0 {
			files = append(files, "No artifacts produced")
		}
		b.WriteString(styles.box.Render(strings.Join(files, "\n")))
	default:
		message := m.failure
		if message == "" {
			message = models.DefaultFailureMessage
		}
		b.WriteString(styles.err.Render("✗ " + message))
	}

	if m.downloads != nil {
		fmt.Fprintf(&b, "\n\nDownloaded %d/%d files to %s", m.downloads.Successful, len(m.downloads.Files), m.downloads.Dir)
		for _, f := range m.downloads.Files {
			if f.Error != nil {
				fmt.Fprintf(&b, "\n  %s", styles.warn.Render(fmt.Sprintf("• %s: %v", f.File.Filename, f.Error)))
			}
		}
	}
	if m.err != nil {
		fmt.Fprintf(&b, "\n\n%s", styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	if m.notice != "" {
		fmt.Fprintf(&b, "\n\n%s", m.notice)
	}

	bindings := []key.Binding{m.keys.cleanup, m.keys.reset, m.keys.quit}
	if m.state.Status == models.StatusComplete {
		bindings = append([]key.Binding{m.keys.download}, bindings...)
	}
	fmt.Fprintf(&b, "\n\n%s", m.help.ShortHelpView(bindings))
	return b.String()
}

func (m *Model) renderDownloads() string {
	title := styles.title.Render("Downloading artifacts")
	line := m.progress.Message
	if line == "" {
		line = "Starting..."
	}
	return fmt.Sprintf("%s\n%s %s", title, m.spinner.View(), line)
}
