// Package config owns the persisted data model: SSH connections, port
// forward definitions and application settings, stored as JSON under
// $HOME/.config/sshpilot. Secret fields live decrypted in memory and are
// sealed into opaque tokens on every save.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"sshpilot/internal/apperr"
)

const (
	DefaultConfigDir      = ".config/sshpilot"
	DefaultConfigFileName = "config.json"

	DefaultScrollbackLines = 2000
	MaxScrollbackLines     = 5000
)

type AuthKind string

const (
	AuthPassword   AuthKind = "password"
	AuthPrivateKey AuthKind = "private_key"
	AuthAgent      AuthKind = "agent"
)

// Connection is a named SSH target.
type Connection struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Host        string   `json:"host"`
	Port        uint16   `json:"port"`
	Username    string   `json:"username"`
	AuthKind    AuthKind `json:"auth_method"`

	// Password holds the login password (AuthPassword) decrypted in memory;
	// on disk it is an opaque token. Same for Passphrase (AuthPrivateKey).
	Password       string `json:"password,omitempty"`
	PrivateKeyPath string `json:"private_key_path,omitempty"`
	Passphrase     string `json:"passphrase,omitempty"`

	// PublicKey pins the server host key in authorized_keys format. Empty
	// until learned on the first successful connect.
	PublicKey string `json:"public_key,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

// NewConnection builds a connection with a fresh identifier. The display
// name defaults to the host.
func NewConnection(host string, port uint16, username string, auth AuthKind) Connection {
	return Connection{
		ID:          uuid.NewString(),
		DisplayName: host,
		Host:        host,
		Port:        port,
		Username:    username,
		AuthKind:    auth,
		CreatedAt:   time.Now().UTC(),
	}
}

// HostPort renders the dial address, bracketing IPv6 hosts.
func (c *Connection) HostPort() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

func (c *Connection) Validate() error {
	if c.Host == "" {
		return apperr.Newf(apperr.Validation, "host cannot be empty")
	}
	if c.Port == 0 {
		return apperr.Newf(apperr.Validation, "port must be greater than 0")
	}
	if c.Username == "" {
		return apperr.Newf(apperr.Validation, "username cannot be empty")
	}
	switch c.AuthKind {
	case AuthPassword:
		if c.Password == "" {
			return apperr.Newf(apperr.Validation, "password cannot be empty")
		}
	case AuthPrivateKey:
		if c.PrivateKeyPath == "" {
			return apperr.Newf(apperr.Validation, "private key path cannot be empty")
		}
	case AuthAgent:
	default:
		return apperr.Newf(apperr.Validation, "unknown auth method %q", c.AuthKind)
	}
	return nil
}

type ForwardKind string

const (
	ForwardLocal   ForwardKind = "local"
	ForwardRemote  ForwardKind = "remote"
	ForwardDynamic ForwardKind = "dynamic"
)

type ForwardState int

const (
	ForwardStopped ForwardState = iota
	ForwardRunning
	ForwardFailed
)

// ForwardStatus is the in-memory view of a tunnel; it is never persisted and
// is reconciled against the runtime whenever the list view opens.
type ForwardStatus struct {
	State  ForwardState
	Reason string
}

// PortForward is a named tunnel definition owned by a connection.
type PortForward struct {
	ID           string      `json:"id"`
	ConnectionID string      `json:"connection_id"`
	Kind         ForwardKind `json:"kind"`
	LocalAddr    string      `json:"local_addr"`
	LocalPort    uint16      `json:"local_port"`

	// ServiceHost/ServicePort name the forwarded service; unused for Dynamic.
	ServiceHost string `json:"service_host,omitempty"`
	ServicePort uint16 `json:"service_port,omitempty"`

	// RemoteBindAddr is the server-side bind address for Remote forwards.
	RemoteBindAddr string `json:"remote_bind_addr,omitempty"`

	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	Status ForwardStatus `json:"-"`
}

// NewPortForward builds a port forward with a fresh identifier.
func NewPortForward(connectionID string, kind ForwardKind) PortForward {
	return PortForward{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		Kind:         kind,
		LocalAddr:    "127.0.0.1",
		CreatedAt:    time.Now().UTC(),
	}
}

func (p *PortForward) Validate() error {
	if p.ConnectionID == "" {
		return apperr.Newf(apperr.Validation, "connection id cannot be empty")
	}
	if p.LocalPort == 0 {
		return apperr.Newf(apperr.Validation, "local port must be greater than 0")
	}
	switch p.Kind {
	case ForwardLocal:
		if p.LocalAddr == "" {
			return apperr.Newf(apperr.Validation, "local address cannot be empty")
		}
		if p.ServiceHost == "" || p.ServicePort == 0 {
			return apperr.Newf(apperr.Validation, "service host and port are required")
		}
	case ForwardRemote:
		if p.ServiceHost == "" || p.ServicePort == 0 {
			return apperr.Newf(apperr.Validation, "service host and port are required")
		}
	case ForwardDynamic:
		if p.LocalAddr == "" {
			return apperr.Newf(apperr.Validation, "local address cannot be empty")
		}
		// service_port=0 is only legal here.
	default:
		return apperr.Newf(apperr.Validation, "unknown forward kind %q", p.Kind)
	}
	return nil
}

// Name returns the display name, or a generated description of the tunnel.
func (p *PortForward) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	switch p.Kind {
	case ForwardRemote:
		bind := p.RemoteBindAddr
		if bind == "" {
			bind = "127.0.0.1"
		}
		return fmt.Sprintf("%s:%d <- %s:%d", bind, p.LocalPort, p.ServiceHost, p.ServicePort)
	case ForwardDynamic:
		return fmt.Sprintf("SOCKS5 %s:%d", p.LocalAddr, p.LocalPort)
	default:
		return fmt.Sprintf("%s:%d -> %s:%d", p.LocalAddr, p.LocalPort, p.ServiceHost, p.ServicePort)
	}
}

func (p *PortForward) LocalAddress() string {
	return fmt.Sprintf("%s:%d", p.LocalAddr, p.LocalPort)
}

func (p *PortForward) ServiceAddress() string {
	return fmt.Sprintf("%s:%d", p.ServiceHost, p.ServicePort)
}

// AppSettings is the settings block of the config envelope.
type AppSettings struct {
	DefaultPort           uint16 `json:"default_port"`
	ConnectTimeoutSeconds int    `json:"connection_timeout"`
	ScrollbackLines       int    `json:"terminal_scrollback_lines"`
}

func DefaultSettings() AppSettings {
	return AppSettings{
		DefaultPort:           22,
		ConnectTimeoutSeconds: 20,
		ScrollbackLines:       DefaultScrollbackLines,
	}
}

func (s AppSettings) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutSeconds) * time.Second
}

// Config is the persisted envelope.
type Config struct {
	Connections  []Connection  `json:"connections"`
	PortForwards []PortForward `json:"port_forwards"`
	Settings     AppSettings   `json:"settings"`
}

func (c *Config) normalize() {
	if c.Settings.DefaultPort == 0 {
		c.Settings.DefaultPort = 22
	}
	if c.Settings.ConnectTimeoutSeconds <= 0 {
		c.Settings.ConnectTimeoutSeconds = 20
	}
	if c.Settings.ScrollbackLines < 1 {
		c.Settings.ScrollbackLines = DefaultScrollbackLines
	}
	if c.Settings.ScrollbackLines > MaxScrollbackLines {
		c.Settings.ScrollbackLines = MaxScrollbackLines
	}
}
