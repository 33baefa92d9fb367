package config

import (
	"os"
	"path/filepath"
	"testing"

	"sshpilot/internal/apperr"
)

func writeSSHConfig(t *testing.T, body string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestQuerySSHConfig(t *testing.T) {
	writeSSHConfig(t, `
Host orb
    HostName 127.0.0.1
    Port 32222
    User default
    IdentityFile ~/.orbstack/ssh/id_ed25519

Host bare
    User deploy
`)

	h, err := QuerySSHConfig("orb")
	if err != nil {
		t.Fatalf("QuerySSHConfig() error = %v", err)
	}
	if h.Hostname != "127.0.0.1" || h.Port != 32222 || h.User != "default" {
		t.Errorf("host = %+v", h)
	}
	if h.IdentityFile != "~/.orbstack/ssh/id_ed25519" {
		t.Errorf("identity = %q, want tilde kept", h.IdentityFile)
	}

	// An entry without HostName resolves to the alias and the default port.
	h, err = QuerySSHConfig("bare")
	if err != nil {
		t.Fatalf("QuerySSHConfig() error = %v", err)
	}
	if h.Hostname != "bare" || h.Port != 22 || h.User != "deploy" {
		t.Errorf("host = %+v", h)
	}
}

func TestQuerySSHConfigUnknownHost(t *testing.T) {
	writeSSHConfig(t, "Host orb\n    HostName 127.0.0.1\n")
	if _, err := QuerySSHConfig("nope"); !apperr.IsKind(err, apperr.Config) {
		t.Fatalf("error = %v, want config error", err)
	}
}

func TestQuerySSHConfigMissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, err := QuerySSHConfig("any"); !apperr.IsKind(err, apperr.Config) {
		t.Fatalf("error = %v, want config error", err)
	}
}
