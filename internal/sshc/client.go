// Package sshc owns the SSH transport: dialing, authentication, host key
// pinning, and the channel factories (shell, SFTP, direct-tcpip, remote
// listeners) the rest of the application builds on.
package sshc

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"sshpilot/internal/apperr"
	"sshpilot/internal/config"
	"sshpilot/internal/logging"
)

const keepAliveInterval = 5 * time.Second

// Session is an authenticated SSH connection. All channel types (shell,
// SFTP, forwards) are opened through it; Close tears down everything at once.
type Session struct {
	client *ssh.Client

	mu        sync.Mutex
	closed    bool
	stopChan  chan struct{}
	serverKey string
}

// Connect dials and authenticates a connection. The returned server key is
// the observed host key in authorized_keys format; callers persist it the
// first time a host is seen. A pinned key that does not match fails with
// apperr.HostKeyMismatch before any authentication is attempted.
func Connect(ctx context.Context, conn *config.Connection, settings config.AppSettings) (*Session, string, error) {
	if err := conn.Validate(); err != nil {
		return nil, "", err
	}

	timeout := time.Duration(settings.ConnectTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	auth, err := authMethods(conn)
	if err != nil {
		return nil, "", err
	}

	var (
		keyMu    sync.Mutex
		observed string
	)
	hostKeyCB := func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		line := keyLine(key)
		keyMu.Lock()
		observed = line
		keyMu.Unlock()
		return checkPinnedKey(conn.PublicKey, hostname, key)
	}

	cfg := &ssh.ClientConfig{
		User:            conn.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCB,
		Timeout:         timeout,
	}

	addr := conn.HostPort()
	logging.Debugf("ssh", "dialing %s as %s (%s auth)", addr, conn.Username, conn.AuthKind)

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	netConn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", addr)
	if err != nil {
		if dialCtx.Err() != nil {
			return nil, "", apperr.Newf(apperr.Connect, "connection to %s timed out", addr)
		}
		return nil, "", apperr.New(apperr.Connect, "tcp dial "+addr, err)
	}

	// The handshake honors ctx by closing the socket underneath it.
	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-dialCtx.Done():
			netConn.Close()
		case <-handshakeDone:
		}
	}()

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	close(handshakeDone)
	if err != nil {
		netConn.Close()
		if dialCtx.Err() != nil {
			return nil, "", apperr.Newf(apperr.Connect, "connection to %s timed out", addr)
		}
		return nil, "", classifyHandshakeErr(conn, err)
	}

	s := &Session{
		client:   ssh.NewClient(sshConn, chans, reqs),
		stopChan: make(chan struct{}),
	}
	keyMu.Lock()
	s.serverKey = observed
	keyMu.Unlock()

	go s.keepAliveLoop()

	logging.Infof("ssh", "connected to %s", addr)
	return s, s.serverKey, nil
}

// keyLine renders a host key as a single authorized_keys line.
func keyLine(key ssh.PublicKey) string {
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key)))
}

// checkPinnedKey compares the presented host key against the stored pin. An
// empty pin accepts anything; the observed key is persisted afterwards.
func checkPinnedKey(pinned, hostname string, key ssh.PublicKey) error {
	if pinned == "" {
		return nil
	}
	if strings.TrimSpace(pinned) != keyLine(key) {
		return apperr.Newf(apperr.HostKeyMismatch,
			"host key for %s changed; expected pinned key", hostname)
	}
	return nil
}

// authMethods assembles the auth chain for a connection. Password auth also
// carries a keyboard-interactive responder answering every prompt with the
// password, since many sshd deployments only advertise that method.
func authMethods(conn *config.Connection) ([]ssh.AuthMethod, error) {
	switch conn.AuthKind {
	case config.AuthPassword:
		pw := conn.Password
		return []ssh.AuthMethod{
			ssh.Password(pw),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = pw
				}
				return answers, nil
			}),
		}, nil

	case config.AuthPrivateKey:
		signer, err := loadSigner(conn.PrivateKeyPath, conn.Passphrase)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil

	case config.AuthAgent:
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			return nil, apperr.NewAuth(apperr.AuthKeyRejected,
				"SSH_AUTH_SOCK is not set; no agent available", nil)
		}
		agentConn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, apperr.NewAuth(apperr.AuthKeyRejected, "dial ssh agent", err)
		}
		ag := agent.NewClient(agentConn)
		return []ssh.AuthMethod{ssh.PublicKeysCallback(ag.Signers)}, nil

	default:
		return nil, apperr.Newf(apperr.Validation, "unknown auth method %q", conn.AuthKind)
	}
}

func loadSigner(path, passphrase string) (ssh.Signer, error) {
	raw, err := os.ReadFile(ExpandTilde(path))
	if err != nil {
		return nil, apperr.New(apperr.Io, "read private key "+path, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err == nil {
		return signer, nil
	}
	if _, needs := err.(*ssh.PassphraseMissingError); needs {
		if passphrase == "" {
			return nil, apperr.NewAuth(apperr.AuthKeyRejected,
				"private key is encrypted and no passphrase is stored", err)
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(raw, []byte(passphrase))
		if err != nil {
			return nil, apperr.NewAuth(apperr.AuthKeyRejected, "decrypt private key", err)
		}
		return signer, nil
	}
	return nil, apperr.NewAuth(apperr.AuthKeyRejected, "parse private key", err)
}

// classifyHandshakeErr maps x/crypto handshake failures onto the error
// taxonomy, preserving a pin mismatch raised by the host key callback.
func classifyHandshakeErr(conn *config.Connection, err error) error {
	if apperr.IsKind(err, apperr.HostKeyMismatch) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") {
		switch conn.AuthKind {
		case config.AuthPassword:
			return apperr.NewAuth(apperr.AuthPasswordRejected, "password rejected", err)
		default:
			return apperr.NewAuth(apperr.AuthKeyRejected, "key rejected", err)
		}
	}
	if strings.Contains(msg, "host key mismatch") {
		return apperr.New(apperr.HostKeyMismatch, "host key mismatch", err)
	}
	return apperr.New(apperr.Handshake, "ssh handshake", err)
}

// ExpandTilde resolves a leading ~/ against the home directory. Paths
// without the prefix pass through unchanged.
func ExpandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// keepAliveLoop pings the server until the session stops; a failed request
// means the transport is gone and the session closes itself.
func (s *Session) keepAliveLoop() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				logging.Warnf("ssh", "keepalive failed: %v", err)
				s.Close("keepalive failed")
				return
			}
			logging.Tracef("ssh", "keepalive ok")
		case <-s.stopChan:
			return
		}
	}
}

// ServerKey returns the observed host key in authorized_keys format.
func (s *Session) ServerKey() string { return s.serverKey }

// DialDirect opens a direct-tcpip channel to host:port through the server.
func (s *Session) DialDirect(host string, port uint16) (net.Conn, error) {
	c, err := s.client.Dial("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		if s.Closed() {
			return nil, apperr.New(apperr.TransportClosed, "session closed", err)
		}
		return nil, apperr.Newf(apperr.Connect, "open channel to %s:%d: %v", host, port, err)
	}
	return c, nil
}

// ListenRemote asks the server to listen on bindAddr:port and forward
// inbound connections back over the transport.
func (s *Session) ListenRemote(bindAddr string, port uint16) (net.Listener, error) {
	ln, err := s.client.Listen("tcp", net.JoinHostPort(bindAddr, fmt.Sprintf("%d", port)))
	if err != nil {
		if s.Closed() {
			return nil, apperr.New(apperr.TransportClosed, "session closed", err)
		}
		return nil, apperr.Newf(apperr.PortForward, "remote listen %s:%d: %v", bindAddr, port, err)
	}
	return ln, nil
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears down the transport and every channel riding on it. Safe to
// call more than once; later calls are no-ops.
func (s *Session) Close(reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.stopChan != nil {
		close(s.stopChan)
	}
	s.mu.Unlock()

	logging.Infof("ssh", "session closed: %s", reason)
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
