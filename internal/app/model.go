// Package app is the application controller: a single bubbletea model that
// owns the UI mode state machine, routes input to the active mode, and
// coordinates the background tasks (connects, read pumps, transfers,
// tunnels) through messages.
package app

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"sshpilot/internal/config"
	"sshpilot/internal/forward"
	"sshpilot/internal/logging"
	"sshpilot/internal/sshc"
	"sshpilot/internal/vterm"
)

const tickInterval = 50 * time.Millisecond

// sessionRegistry maps connection ids to live sessions; it is the
// SessionProvider the forwarding runtime resolves against.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*sshc.Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: map[string]*sshc.Session{}}
}

func (r *sessionRegistry) SessionFor(id string) (forward.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s, true
}

func (r *sessionRegistry) put(id string, s *sshc.Session) {
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// shellConn is the input side of the live shell; *sshc.Shell implements it.
type shellConn interface {
	Write(p []byte) error
	Resize(rows, cols int) error
	Close() error
}

// selectionState tracks an in-progress or completed mouse selection over
// the live terminal.
type selectionState struct {
	active   bool
	dragging bool
	start    vterm.Endpoint
	end      vterm.Endpoint
	clicks   vterm.ClickTracker
	auto     vterm.AutoScroll
}

// Model is the top-level bubbletea model.
type Model struct {
	store    *config.Store
	registry *sessionRegistry
	runtime  *forward.Runtime
	program  *tea.Program

	width  int
	height int
	mode   mode

	connList list.Model

	errBanner  string
	infoBanner string

	// Live session state, valid between a successful connect and the
	// disconnect message.
	session    *sshc.Session
	shell      shellConn
	sftp       *sshc.SFTPClient
	term       *vterm.Terminal
	activeConn config.Connection

	sel selectionState

	// Cached shell frame; refreshed when the emulator reports recent
	// change or the viewport moves.
	shellFrame   string
	shellFrameAt time.Time

	quitting bool
}

func New(store *config.Store) *Model {
	registry := newSessionRegistry()
	m := &Model{
		store:    store,
		registry: registry,
		runtime:  forward.NewRuntime(registry),
		mode:     modeConnectionList{},
		connList: newConnList(),
	}
	m.refreshConnItems()
	// Posting from inside Update would deadlock the event loop, and the
	// notifier also fires from background teardown, so always detach.
	m.runtime.SetFailureNotifier(func(connectionID, reason string) {
		go m.send(forwardFailedMsg{connectionID: connectionID, reason: reason})
	})
	return m
}

// SetProgram hands the model the running program so background goroutines
// can post messages into the event loop.
func (m *Model) SetProgram(p *tea.Program) { m.program = p }

func (m *Model) send(msg tea.Msg) {
	if m.program != nil {
		m.program.Send(msg)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m *Model) Init() tea.Cmd {
	return tickCmd()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.connList.SetSize(msg.Width, msg.Height-3)
		if m.term != nil {
			rows, cols := m.terminalViewport()
			m.term.Resize(rows, cols)
			if m.shell != nil {
				if err := m.shell.Resize(rows, cols); err != nil {
					logging.Debugf("app", "pty resize: %v", err)
				}
			}
			m.shellFrame = ""
		}
		return m, nil

	case TickMsg:
		return m, tea.Batch(tickCmd(), m.handleTick())

	case DisconnectMsg:
		return m, m.handleDisconnect(msg)

	case connectResultMsg:
		return m, m.handleConnectResult(msg)

	case shellReadyMsg:
		return m, m.handleShellReady(msg)

	case transferPlannedMsg, transferProgressMsg, transferFileDoneMsg, transferDoneMsg:
		if sp, ok := m.mode.(modeScpProgress); ok {
			sp.job.absorb(msg)
		}
		return m, nil

	case forwardFailedMsg:
		m.reconcileForwardStatus()
		m.setError("tunnels stopped: " + msg.reason)
		return m, nil

	case explorerLoadedMsg:
		if fe, ok := m.mode.(modeFileExplorer); ok {
			fe.ex.absorbListing(msg)
			if msg.err != nil {
				m.setError(msg.err.Error())
			}
		}
		return m, nil

	case tea.MouseMsg:
		if _, ok := m.mode.(modeConnected); ok {
			return m, m.handleConnectedMouse(msg)
		}
		return m, nil

	case tea.KeyMsg:
		// A visible banner eats the next Enter/Esc as its dismissal.
		if (m.errBanner != "" || m.infoBanner != "") && !m.inShell() {
			if s := msg.String(); s == "enter" || s == "esc" {
				m.errBanner, m.infoBanner = "", ""
				return m, nil
			}
		}
		return m.handleKey(msg)
	}
	return m, nil
}

// inShell reports whether keystrokes currently belong to the remote.
func (m *Model) inShell() bool {
	_, ok := m.mode.(modeConnected)
	return ok
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch md := m.mode.(type) {
	case modeConnectionList:
		return m.updateConnectionList(md, msg)
	case modeFormNew:
		return m.updateConnectionForm(md.form, msg, false)
	case modeFormEdit:
		return m.updateConnectionForm(md.form, msg, true)
	case modeConnecting:
		return m.updateConnecting(md, msg)
	case modeConnected:
		return m, m.handleConnectedKey(msg)
	case modeDeleteConfirmation:
		return m.updateDeleteConfirmation(md, msg)
	case modeFileExplorer:
		return m.updateExplorer(md, msg)
	case modeScpProgress:
		return m.updateScpProgress(md, msg)
	case modePortForwardingList:
		return m.updateForwardList(md, msg)
	case modePortForwardingFormNew:
		return m.updateForwardForm(md.form, msg, false)
	case modePortForwardingFormEdit:
		return m.updateForwardForm(md.form, msg, true)
	case modePortForwardDeleteConfirmation:
		return m.updateForwardDelete(md, msg)
	}
	return m, nil
}

// handleTick fans the 50 ms pulse into whatever the current mode needs.
func (m *Model) handleTick() tea.Cmd {
	if _, ok := m.mode.(modeConnected); ok {
		m.applyAutoScroll()
	}
	return nil
}

func (m *Model) setError(text string) {
	m.errBanner = text
	m.infoBanner = ""
}

func (m *Model) setInfo(text string) {
	m.infoBanner = text
}

// terminalViewport is the emulator size: full width, height minus the
// status line.
func (m *Model) terminalViewport() (rows, cols int) {
	rows = m.height - 1
	if rows < 1 {
		rows = 1
	}
	cols = m.width
	if cols < 1 {
		cols = 1
	}
	return rows, cols
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	var body string
	switch md := m.mode.(type) {
	case modeConnectionList:
		body = m.viewConnectionList(md)
	case modeFormNew:
		body = md.form.view("New connection")
	case modeFormEdit:
		body = md.form.view("Edit connection")
	case modeConnecting:
		body = m.viewConnecting(md)
	case modeConnected:
		return m.viewShell()
	case modeDeleteConfirmation:
		body = m.viewDeleteConfirmation(md)
	case modeFileExplorer:
		body = md.ex.view(m.width, m.height)
	case modeScpProgress:
		body = m.viewScpProgress(md)
	case modePortForwardingList:
		body = m.viewForwardList(md)
	case modePortForwardingFormNew:
		body = md.form.view("New port forward")
	case modePortForwardingFormEdit:
		body = md.form.view("Edit port forward")
	case modePortForwardDeleteConfirmation:
		body = m.viewForwardDelete(md)
	}
	return body + m.bannerLine()
}

func (m *Model) bannerLine() string {
	if m.errBanner != "" {
		return "\n" + errorStyle.Render(m.errBanner)
	}
	if m.infoBanner != "" {
		return "\n" + successStyle.Render(m.infoBanner)
	}
	return ""
}
