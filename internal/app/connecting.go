package app

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"sshpilot/internal/apperr"
	"sshpilot/internal/config"
	"sshpilot/internal/logging"
	"sshpilot/internal/sshc"
	"sshpilot/internal/vterm"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// startConnect switches to Connecting and launches the connect task. The
// result comes back as a one-shot connectResultMsg; Esc cancels the context.
func (m *Model) startConnect(conn config.Connection, origin mode) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.mode = modeConnecting{conn: conn, origin: origin, cancel: cancel, startedAt: time.Now()}
	m.errBanner, m.infoBanner = "", ""

	settings := m.store.Settings()
	return func() tea.Msg {
		session, serverKey, err := sshc.Connect(ctx, &conn, settings)
		return connectResultMsg{session: session, serverKey: serverKey, err: err}
	}
}

func (m *Model) updateConnecting(md modeConnecting, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		md.cancel()
		m.mode = md.origin
		m.setInfo("connection cancelled")
	}
	return m, nil
}

func (m *Model) viewConnecting(md modeConnecting) string {
	frame := spinnerFrames[int(time.Since(md.startedAt)/(100*time.Millisecond))%len(spinnerFrames)]
	body := fmt.Sprintf("%s connecting to %s (%s@%s:%d)...\n\n%s",
		frame, md.conn.DisplayName, md.conn.Username, md.conn.Host, md.conn.Port,
		helpStyle.Render("esc cancel"))
	return windowStyle.Render(body)
}

func (m *Model) handleConnectResult(msg connectResultMsg) tea.Cmd {
	md, ok := m.mode.(modeConnecting)
	if !ok {
		// The user backed out; a late success must not leak the session.
		if msg.session != nil {
			msg.session.Close("cancelled")
		}
		return nil
	}

	if msg.err != nil {
		md.cancel()
		m.mode = md.origin
		m.setError(msg.err.Error())
		return nil
	}

	conn := md.conn
	m.session = msg.session
	m.activeConn = conn
	m.registry.put(conn.ID, msg.session)

	if err := m.store.TouchLastUsed(conn.ID); err != nil {
		logging.Warnf("app", "touch last used: %v", err)
	}
	if conn.PublicKey == "" && msg.serverKey != "" {
		if err := m.store.SetConnectionPublicKey(conn.ID, msg.serverKey); err != nil {
			logging.Warnf("app", "learn host key: %v", err)
		}
	}
	m.refreshConnItems()

	rows, cols := m.terminalViewport()
	m.term = vterm.NewTerminal(rows, cols, m.store.Settings().ScrollbackLines)
	m.sel = selectionState{}

	session := msg.session
	term := m.term
	return func() tea.Msg {
		shell, err := session.OpenShell(rows, cols,
			func(data []byte) { term.Process(data) },
			func(err error) { m.send(DisconnectMsg{Err: err}) },
		)
		return shellReadyMsg{shell: shell, err: err}
	}
}

func (m *Model) handleShellReady(msg shellReadyMsg) tea.Cmd {
	if msg.err != nil {
		m.teardownSession("shell failed")
		m.mode = modeConnectionList{}
		m.setError(msg.err.Error())
		return nil
	}
	if m.session == nil {
		// Disconnected while the shell was opening.
		msg.shell.Close()
		return nil
	}
	m.shell = msg.shell
	m.mode = modeConnected{}
	m.shellFrame = ""
	// Mouse capture is on only while the shell owns the screen.
	return tea.EnableMouseCellMotion
}

// handleDisconnect runs when the read pump reports the shell gone, however
// that happened. It always lands back on the connection list.
func (m *Model) handleDisconnect(msg DisconnectMsg) tea.Cmd {
	if m.session == nil {
		return nil
	}
	reason := "disconnected"
	clean := msg.Err == nil || apperr.IsKind(msg.Err, apperr.TransportClosed)
	if !clean {
		reason = msg.Err.Error()
	}
	m.teardownSession(reason)

	switch m.mode.(type) {
	case modeConnected, modeFileExplorer, modeScpProgress:
		m.mode = modeConnectionList{}
	}
	// A clean remote exit lands on the list silently.
	if !clean {
		m.setError("session ended: " + reason)
	}
	return tea.DisableMouse
}

// teardownSession releases everything owned by the live session.
func (m *Model) teardownSession(reason string) {
	connID := m.activeConn.ID
	if connID != "" {
		m.runtime.FailAllOnConnection(connID, reason)
		m.registry.remove(connID)
	}
	if m.shell != nil {
		m.shell.Close()
		m.shell = nil
	}
	if m.sftp != nil {
		m.sftp.Close()
		m.sftp = nil
	}
	if m.session != nil {
		m.session.Close(reason)
		m.session = nil
	}
	m.term = nil
	m.sel = selectionState{}
	m.activeConn = config.Connection{}
}
