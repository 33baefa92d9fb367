package app

import (
	"time"

	"sshpilot/internal/sshc"
	"sshpilot/internal/transfer"
)

// TickMsg drives spinners, auto-scroll, and the redraw forwarder while a
// shell is live.
type TickMsg time.Time

// DisconnectMsg is delivered exactly once per shell, after its final output
// bytes have reached the emulator.
type DisconnectMsg struct {
	Err error
}

// connectResultMsg is the one-shot outcome of a connect task.
type connectResultMsg struct {
	session   *sshc.Session
	serverKey string
	err       error
}

// shellReadyMsg reports the shell and SFTP channels opened after a connect.
type shellReadyMsg struct {
	shell *sshc.Shell
	err   error
}

// transferPlannedMsg carries the file list once a batch's walk finishes.
type transferPlannedMsg struct {
	files []jobFile
}

// transferProgressMsg carries byte-count updates from a running batch.
type transferProgressMsg transfer.Progress

// transferFileDoneMsg marks one file of a batch reaching a terminal state.
type transferFileDoneMsg transfer.Completion

// transferDoneMsg ends a batch with its aggregate outcome.
type transferDoneMsg struct {
	summary transfer.Summary
}

// forwardFailedMsg reports tunnels torn down by a dying transport.
type forwardFailedMsg struct {
	connectionID string
	reason       string
}

// explorerLoadedMsg delivers a directory listing fetched in the background.
type explorerLoadedMsg struct {
	pane    int
	path    string
	entries []fileEntry
	err     error
}
