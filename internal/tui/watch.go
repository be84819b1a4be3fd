// Package tui provides duo's terminal views of a review session.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/duo/internal/session"
	"github.com/Iron-Ham/duo/internal/tui/styles"
)

// Loader reads the latest persisted version of a session. store.Store
// satisfies it.
type Loader interface {
	Load(ctx context.Context, id string) (*session.Session, error)
}

// headerHeight is the number of lines above the viewport.
const headerHeight = 2

// snapshotMsg carries the result of one reload.
type snapshotMsg struct {
	sess *session.Session
	err  error
}

type reloadMsg struct{}

// WatchModel is a bubbletea model that follows a session as agents append
// exchanges to it.
type WatchModel struct {
	ctx      context.Context
	loader   Loader
	id       string
	interval time.Duration
	filter   FileFilter

	spinner  spinner.Model
	viewport viewport.Model
	ready    bool
	width    int

	sess *session.Session
	err  error
}

// NewWatchModel creates a model that reloads session id every interval.
func NewWatchModel(ctx context.Context, loader Loader, id string, interval time.Duration, filter FileFilter) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Primary

	return WatchModel{
		ctx:      ctx,
		loader:   loader,
		id:       id,
		interval: interval,
		filter:   filter,
		spinner:  s,
	}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load)
}

func (m WatchModel) load() tea.Msg {
	sess, err := m.loader.Load(m.ctx, m.id)
	return snapshotMsg{sess: sess, err: err}
}

func (m WatchModel) scheduleReload() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return reloadMsg{} })
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := msg.Height - headerHeight - 1
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refreshContent()
		return m, nil

	case reloadMsg:
		return m, m.load

	case snapshotMsg:
		m.err = msg.err
		if msg.sess != nil {
			grew := m.sess == nil || msg.sess.Version != m.sess.Version
			m.sess = msg.sess
			if grew {
				m.refreshContent()
				m.viewport.GotoBottom()
			}
		}
		if m.sess != nil && m.sess.IsTerminal() {
			return m, nil
		}
		return m, m.scheduleReload()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *WatchModel) refreshContent() {
	if !m.ready || m.sess == nil {
		return
	}
	m.viewport.SetContent(RenderSession(m.sess, m.filter, m.width))
}

// View implements tea.Model.
func (m WatchModel) View() string {
	var header string
	switch {
	case m.sess == nil && m.err != nil:
		header = styles.Error.Render("✗ " + m.err.Error())
	case m.sess == nil:
		header = m.spinner.View() + " loading " + m.id
	case m.sess.IsTerminal():
		header = RenderHeader(m.sess)
	default:
		header = m.spinner.View() + " " + RenderHeader(m.sess) + styles.Muted.Render("  waiting for "+waitingFor(m.sess))
	}
	if m.sess != nil && m.err != nil {
		header += "  " + styles.Error.Render(m.err.Error())
	}

	body := ""
	if m.ready {
		body = m.viewport.View()
	}
	help := styles.HelpBar.Render(styles.HelpKey.Render("q") + " quit  " + styles.HelpKey.Render("↑/↓") + " scroll")
	return header + "\n\n" + body + "\n" + help
}

// Session returns the last loaded snapshot, or nil.
func (m WatchModel) Session() *session.Session {
	return m.sess
}

func waitingFor(sess *session.Session) string {
	if sess.CanSubmitReview() {
		return "review"
	}
	return "code"
}

// RunWatch runs the watch view until the user quits or ctx ends.
func RunWatch(ctx context.Context, loader Loader, id string, interval time.Duration, filter FileFilter) error {
	p := tea.NewProgram(
		NewWatchModel(ctx, loader, id, interval, filter),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	return err
}
