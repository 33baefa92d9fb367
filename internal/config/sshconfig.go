package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/kevinburke/ssh_config"

	"sshpilot/internal/apperr"
)

// SSHHost is one entry resolved from the user's ~/.ssh/config, used to
// prefill the connection form.
type SSHHost struct {
	Hostname     string
	Port         uint16
	User         string
	IdentityFile string
}

// QuerySSHConfig resolves alias against ~/.ssh/config. The hostname falls
// back to the alias itself when the entry carries no HostName; identity
// paths keep their tilde, expansion happens when the key is read.
func QuerySSHConfig(alias string) (SSHHost, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return SSHHost{}, apperr.New(apperr.Config, "could not determine home directory", err)
	}
	f, err := os.Open(filepath.Join(home, ".ssh", "config"))
	if err != nil {
		return SSHHost{}, apperr.New(apperr.Config, "no ssh config at ~/.ssh/config", err)
	}
	defer f.Close()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		return SSHHost{}, apperr.New(apperr.Config, "failed to parse ~/.ssh/config", err)
	}
	return sshHostFor(cfg, alias)
}

func sshHostFor(cfg *ssh_config.Config, alias string) (SSHHost, error) {
	get := func(key string) string {
		v, err := cfg.Get(alias, key)
		if err != nil {
			return ""
		}
		return v
	}

	h := SSHHost{Hostname: get("HostName"), User: get("User"), IdentityFile: get("IdentityFile"), Port: 22}
	portText := get("Port")
	if h.Hostname == "" && h.User == "" && h.IdentityFile == "" && portText == "" {
		return SSHHost{}, apperr.Newf(apperr.Config, "no host %q in ~/.ssh/config", alias)
	}
	if h.Hostname == "" {
		h.Hostname = alias
	}
	if portText != "" {
		port, err := strconv.ParseUint(portText, 10, 16)
		if err != nil || port == 0 {
			return SSHHost{}, apperr.Newf(apperr.Config, "invalid port %q for host %q", portText, alias)
		}
		h.Port = uint16(port)
	}
	return h, nil
}
