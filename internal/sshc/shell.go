package sshc

import (
	"io"
	"sync"

	"golang.org/x/crypto/ssh"

	"sshpilot/internal/apperr"
	"sshpilot/internal/logging"
)

// Shell is an interactive remote shell on a PTY. Output bytes arrive on the
// sink passed to OpenShell; the gone callback fires exactly once, after the
// last output bytes, when the shell ends for any reason.
type Shell struct {
	sess  *ssh.Session
	stdin io.WriteCloser

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// sinkWriter serializes stdout and stderr into a single byte stream. The
// ssh package copies both pipes from separate goroutines.
type sinkWriter struct {
	mu   sync.Mutex
	sink func([]byte)
}

func (w *sinkWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	buf := make([]byte, len(p))
	copy(buf, p)
	w.sink(buf)
	return len(p), nil
}

// OpenShell requests an xterm-256color PTY at the given size and starts the
// remote login shell. sink receives output from the session goroutines;
// gone receives the terminal status once the shell has fully drained.
func (s *Session) OpenShell(rows, cols int, sink func([]byte), gone func(error)) (*Shell, error) {
	if rows < 1 || cols < 1 {
		rows, cols = 24, 80
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return nil, apperr.New(apperr.Connect, "open session channel", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("xterm-256color", rows, cols, modes); err != nil {
		sess.Close()
		return nil, apperr.New(apperr.Connect, "request pty", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, apperr.New(apperr.Connect, "open stdin", err)
	}

	out := &sinkWriter{sink: sink}
	sess.Stdout = out
	sess.Stderr = out

	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, apperr.New(apperr.Connect, "start shell", err)
	}

	sh := &Shell{sess: sess, stdin: stdin}

	var once sync.Once
	go func() {
		// Wait returns only after the stdout/stderr copy goroutines finish,
		// so the disconnect signal always trails the final output bytes.
		err := sess.Wait()
		if err != nil {
			logging.Debugf("ssh", "shell ended: %v", err)
		}
		once.Do(func() {
			gone(apperr.New(apperr.TransportClosed, "shell ended", err))
		})
	}()

	return sh, nil
}

// Write sends keyboard input to the remote shell. Safe for concurrent use.
func (sh *Shell) Write(p []byte) error {
	sh.writeMu.Lock()
	defer sh.writeMu.Unlock()
	if _, err := sh.stdin.Write(p); err != nil {
		return apperr.New(apperr.TransportClosed, "shell write", err)
	}
	return nil
}

// Resize propagates a window size change to the remote PTY.
func (sh *Shell) Resize(rows, cols int) error {
	if err := sh.sess.WindowChange(rows, cols); err != nil {
		return apperr.New(apperr.TransportClosed, "window change", err)
	}
	return nil
}

// Close shuts the shell channel. The read pump observes the close and fires
// the gone callback.
func (sh *Shell) Close() error {
	sh.closeMu.Lock()
	defer sh.closeMu.Unlock()
	if sh.closed {
		return nil
	}
	sh.closed = true
	sh.stdin.Close()
	return sh.sess.Close()
}
