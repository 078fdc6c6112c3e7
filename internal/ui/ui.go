package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/plexsync/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ConfirmView ViewState = iota
	SyncView
	ResultView
)

// plannedPreview caps how many planned writes the result view lists.
const plannedPreview = 10

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	cancel   context.CancelFunc
	engine   tasks.SyncEngine
	opts     tasks.Options
	onFinish func(*tasks.Result)

	view         ViewState
	width        int
	height       int
	spinner      spinner.Model
	progressChan chan tasks.ProgressUpdate
	resultChan   chan *tasks.Result
	progress     tasks.ProgressUpdate
	result       *tasks.Result
	help         help.Model
	keys         keyMap
}

// NewModel creates a TUI model that runs engine with opts. onFinish, when set, is called with
// every finished result, for example to record it in the history.
func NewModel(ctx context.Context, engine tasks.SyncEngine, opts tasks.Options, onFinish func(*tasks.Result)) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.title.UnsetMarginBottom()

	return &Model{
		ctx:      ctx,
		engine:   engine,
		opts:     opts,
		onFinish: onFinish,
		view:     ConfirmView,
		spinner:  s,
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init starts the spinner; the run itself starts from the confirm view.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Result is the last finished run, or nil.
func (m *Model) Result() *tasks.Result { return m.result }

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case SyncView:
			return m.handleSyncKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.progress = msg.data.(tasks.ProgressUpdate)
			return m, m.waitForProgress()
		case MsgSyncComplete:
			m.result = msg.data.(*tasks.Result)
			m.progressChan, m.resultChan = nil, nil
			m.cancel = nil
			m.view = ResultView
			if m.onFinish != nil && m.result != nil {
				m.onFinish(m.result)
			}
			return m, nil
		}
	}

	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ConfirmView:
		return m.renderConfirm()
	case SyncView:
		return m.renderSync()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.dryRun):
		m.opts.DryRun = !m.opts.DryRun
	case key.Matches(msg, m.keys.twoWay):
		m.opts.TwoWay = !m.opts.TwoWay
	case key.Matches(msg, m.keys.start):
		m.view = SyncView
		m.progress = tasks.ProgressUpdate{}
		return m, m.startSync()
	}
	return m, nil
}

func (m *Model) handleSyncKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.cancel, m.keys.quit) && m.cancel != nil {
		// The engine stops at the next item and reports Failed with context.Canceled.
		m.cancel()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.view = ConfirmView
		m.result = nil
	}
	return m, nil
}

func (m *Model) startSync() tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	progress := make(chan tasks.ProgressUpdate, 50)
	results := make(chan *tasks.Result, 1)
	m.progressChan, m.resultChan = progress, results

	opts := m.opts
	go func() {
		defer cancel()
		result := m.engine.Run(ctx, opts, progress)
		results <- result
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, results := m.progressChan, m.resultChan
	return func() tea.Msg {
		if progress == nil {
			return syncCompleteMsg(nil)
		}

		update, ok := <-progress
		if !ok {
			return syncCompleteMsg(<-results)
		}
		return progressUpdateMsg(update)
	}
}

func onOff(b bool) string {
	if b {
		return styles.ok.Render("on")
	}
	return styles.help.Render("off")
}

func (m *Model) row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, styles.label.Render(label), value)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render("Plex ⇄ Trakt sync")

	libraries := "all movie and show libraries"
	if len(m.opts.Libraries) > 0 {
		libraries = strings.Join(m.opts.Libraries, ", ")
	}

	var sections []string
	if m.opts.Watched {
		sections = append(sections, "watched")
	}
	if m.opts.Ratings {
		sections = append(sections, "ratings")
	}
	if m.opts.Collection {
		sections = append(sections, "collection")
	}

	info := strings.Join([]string{
		m.row("Mode", m.opts.Mode()),
		m.row("Two-way", onOff(m.opts.TwoWay)),
		m.row("Dry run", onOff(m.opts.DryRun)),
		m.row("Libraries", libraries),
		m.row("Syncing", strings.Join(sections, ", ")),
	}, "\n")

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.start, m.keys.dryRun, m.keys.twoWay, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}

func (m *Model) renderSync() string {
	title := styles.title.Render("Syncing")

	phase := m.progress.State.String()
	if m.progress.Total > 0 {
		phase = fmt.Sprintf("%s (%d/%d)", phase, m.progress.Step, m.progress.Total)
	}

	status := fmt.Sprintf("%s %s", m.spinner.View(), phase)
	if m.progress.Message != "" {
		status += "\n" + styles.help.Render(m.progress.Message)
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.cancel})
	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, status, m.renderStats(m.progress.Stats), helpView)
}

func (m *Model) renderStats(s tasks.SyncStats) string {
	rows := []string{
		m.row("Seen", fmt.Sprint(s.Seen)),
		m.row("Matched", fmt.Sprint(s.Matched)),
		m.row("Skipped", fmt.Sprint(s.Skipped)),
		m.row("Mutated", fmt.Sprint(s.Mutated)),
	}
	if s.Planned > 0 {
		rows = append(rows, m.row("Planned", fmt.Sprint(s.Planned)))
	}
	if errs := s.Errors + s.FetchErrors; errs > 0 {
		rows = append(rows, m.row("Errors", styles.warn.Render(fmt.Sprint(errs))))
	}
	return strings.Join(rows, "\n")
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit})

	if m.result == nil {
		return styles.err.Render("No result available") + "\n\n" + helpView
	}

	var title string
	if m.result.Success() {
		label := "✓ Sync complete"
		if m.result.DryRun {
			label = "✓ Dry run complete"
		}
		title = styles.ok.Render(label)
	} else {
		title = styles.err.Render(fmt.Sprintf("Sync failed: %v", m.result.Err))
	}

	duration := m.row("Duration", m.result.Duration().Round(time.Millisecond).String())
	body := m.renderStats(m.result.Stats) + "\n" + duration

	var planned string
	if m.result.DryRun && len(m.result.Planned) > 0 {
		lines := []string{styles.warn.Render(fmt.Sprintf("Would make %d writes:", len(m.result.Planned)))}
		for i, mut := range m.result.Planned {
			if i == plannedPreview {
				lines = append(lines, fmt.Sprintf("  … and %d more", len(m.result.Planned)-plannedPreview))
				break
			}
			lines = append(lines, "  • "+mut.String())
		}
		planned = "\n\n" + strings.Join(lines, "\n")
	}

	return fmt.Sprintf("%s\n\n%s%s\n\n%s", title, body, planned, helpView)
}
