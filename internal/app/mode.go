package app

import (
	"context"
	"time"

	"sshpilot/internal/config"
)

// mode is the tagged union of UI states. Each mode owns the transient state
// of its screen; switching modes drops that state on the floor.
type mode interface{ isMode() }

type modeConnectionList struct {
	cursor int
}

type modeFormNew struct {
	form *connectionForm
}

type modeFormEdit struct {
	form *connectionForm
}

// modeConnecting runs while the connect task is in flight. origin is where
// Esc or a failure returns to.
type modeConnecting struct {
	conn      config.Connection
	origin    mode
	cancel    context.CancelFunc
	startedAt time.Time
}

type modeConnected struct{}

type modeDeleteConfirmation struct {
	conn         config.Connection
	returnCursor int
}

type modeFileExplorer struct {
	ex *explorer
}

// modeScpProgress runs a transfer batch; returnMode is restored when the
// user leaves after completion or cancels.
type modeScpProgress struct {
	job        *transferJob
	returnMode mode
}

type modePortForwardingList struct {
	cursor int
}

type modePortForwardingFormNew struct {
	form *forwardForm
}

type modePortForwardingFormEdit struct {
	form *forwardForm
}

type modePortForwardDeleteConfirmation struct {
	pf           config.PortForward
	returnCursor int
}

func (modeConnectionList) isMode()                {}
func (modeFormNew) isMode()                       {}
func (modeFormEdit) isMode()                      {}
func (modeConnecting) isMode()                    {}
func (modeConnected) isMode()                     {}
func (modeDeleteConfirmation) isMode()            {}
func (modeFileExplorer) isMode()                  {}
func (modeScpProgress) isMode()                   {}
func (modePortForwardingList) isMode()            {}
func (modePortForwardingFormNew) isMode()         {}
func (modePortForwardingFormEdit) isMode()        {}
func (modePortForwardDeleteConfirmation) isMode() {}
