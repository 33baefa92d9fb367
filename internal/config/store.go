package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"sshpilot/internal/apperr"
	"sshpilot/internal/crypto"
	"sshpilot/internal/logging"
)

// Store provides CRUD over connections and port forwards with synchronous
// on-disk persistence. Every mutation flushes before returning, so readers
// never observe a partial write on disk.
type Store struct {
	path   string
	cipher *crypto.Cipher
	config Config
}

// DefaultPath returns $HOME/.config/sshpilot/config.json, creating the
// directory if needed.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", apperr.New(apperr.Config, "could not determine home directory", err)
	}
	dir := filepath.Join(home, DefaultConfigDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.New(apperr.Config, "could not create config directory", err)
	}
	return filepath.Join(dir, DefaultConfigFileName), nil
}

// Open loads the store from path. A missing file yields an empty config; a
// corrupt file is a fatal configuration error.
func Open(path string, cipher *crypto.Cipher) (*Store, error) {
	s := &Store{path: path, cipher: cipher}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Infof("config", "config file %s missing, starting empty", path)
			s.config.Settings = DefaultSettings()
			return s, nil
		}
		return nil, apperr.New(apperr.Config, "failed to read config file", err)
	}

	if err := json.Unmarshal(data, &s.config); err != nil {
		return nil, apperr.New(apperr.Config, "failed to parse config file", err)
	}
	s.config.normalize()
	if err := s.unsealSecrets(); err != nil {
		return nil, err
	}
	logging.Infof("config", "loaded %d connections, %d port forwards from %s",
		len(s.config.Connections), len(s.config.PortForwards), path)
	return s, nil
}

func (s *Store) unsealSecrets() error {
	for i := range s.config.Connections {
		c := &s.config.Connections[i]
		if c.Password != "" {
			plain, err := s.cipher.Decrypt(c.Password)
			if err != nil {
				return apperr.New(apperr.Encryption, "failed to decrypt stored password", err)
			}
			c.Password = plain
		}
		if c.Passphrase != "" {
			plain, err := s.cipher.Decrypt(c.Passphrase)
			if err != nil {
				return apperr.New(apperr.Encryption, "failed to decrypt stored passphrase", err)
			}
			c.Passphrase = plain
		}
	}
	return nil
}

// Save seals secrets and writes the whole envelope. The config directory is
// created on demand so a fresh $HOME works.
func (s *Store) Save() error {
	sealed := s.config
	sealed.Connections = make([]Connection, len(s.config.Connections))
	copy(sealed.Connections, s.config.Connections)
	for i := range sealed.Connections {
		c := &sealed.Connections[i]
		if c.Password != "" {
			token, err := s.cipher.Encrypt(c.Password)
			if err != nil {
				return err
			}
			c.Password = token
		}
		if c.Passphrase != "" {
			token, err := s.cipher.Encrypt(c.Passphrase)
			if err != nil {
				return err
			}
			c.Passphrase = token
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return apperr.New(apperr.Config, "failed to create config directory", err)
	}
	data, err := json.MarshalIndent(&sealed, "", "    ")
	if err != nil {
		return apperr.New(apperr.Config, "failed to marshal config", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return apperr.New(apperr.Config, "failed to write config file", err)
	}
	return nil
}

func (s *Store) Path() string          { return s.path }
func (s *Store) Settings() AppSettings { return s.config.Settings }

// Connections returns the stored connections in order. The slice is shared;
// callers must not mutate entries (the controller task is the only mutator).
func (s *Store) Connections() []Connection { return s.config.Connections }

func (s *Store) FindConnection(id string) (Connection, bool) {
	for _, c := range s.config.Connections {
		if c.ID == id {
			return c, true
		}
	}
	return Connection{}, false
}

// AddConnection rejects duplicates: ids are globally unique and the
// host/port/username/display-name tuple must be unique.
func (s *Store) AddConnection(conn Connection) error {
	if err := conn.Validate(); err != nil {
		return err
	}
	for _, c := range s.config.Connections {
		if c.ID == conn.ID {
			return apperr.Newf(apperr.Config, "connection id already exists")
		}
		if c.Host == conn.Host && c.Port == conn.Port &&
			c.Username == conn.Username && c.DisplayName == conn.DisplayName {
			return apperr.Newf(apperr.Config, "connection already exists")
		}
	}
	s.config.Connections = append(s.config.Connections, conn)
	return s.Save()
}

// UpdateConnection enforces the same tuple uniqueness as AddConnection,
// ignoring the entry being edited.
func (s *Store) UpdateConnection(conn Connection) error {
	if err := conn.Validate(); err != nil {
		return err
	}
	for _, c := range s.config.Connections {
		if c.ID != conn.ID && c.Host == conn.Host && c.Port == conn.Port &&
			c.Username == conn.Username && c.DisplayName == conn.DisplayName {
			return apperr.Newf(apperr.Config, "connection already exists")
		}
	}
	for i := range s.config.Connections {
		if s.config.Connections[i].ID == conn.ID {
			s.config.Connections[i] = conn
			return s.Save()
		}
	}
	return apperr.Newf(apperr.Config, "connection not found")
}

// RemoveConnection deletes a connection and every forward that rides it.
func (s *Store) RemoveConnection(id string) error {
	for i := range s.config.Connections {
		if s.config.Connections[i].ID == id {
			s.config.Connections = append(s.config.Connections[:i], s.config.Connections[i+1:]...)
			kept := s.config.PortForwards[:0]
			for _, pf := range s.config.PortForwards {
				if pf.ConnectionID != id {
					kept = append(kept, pf)
				}
			}
			s.config.PortForwards = kept
			return s.Save()
		}
	}
	return apperr.Newf(apperr.Config, "connection not found")
}

// TouchLastUsed stamps the connection and persists. Unknown ids are ignored.
func (s *Store) TouchLastUsed(id string) error {
	for i := range s.config.Connections {
		if s.config.Connections[i].ID == id {
			now := time.Now().UTC()
			s.config.Connections[i].LastUsed = &now
			return s.Save()
		}
	}
	return nil
}

// SetConnectionPublicKey records a learned host key and persists.
func (s *Store) SetConnectionPublicKey(id, publicKey string) error {
	for i := range s.config.Connections {
		if s.config.Connections[i].ID == id {
			s.config.Connections[i].PublicKey = publicKey
			return s.Save()
		}
	}
	return apperr.Newf(apperr.Config, "connection not found")
}

// PortForwards returns the stored forwards in order; same sharing rule as
// Connections.
func (s *Store) PortForwards() []PortForward { return s.config.PortForwards }

func (s *Store) FindPortForward(id string) (PortForward, bool) {
	for _, p := range s.config.PortForwards {
		if p.ID == id {
			return p, true
		}
	}
	return PortForward{}, false
}

// AddPortForward rejects a duplicate (connection, local bind, service
// target) tuple.
func (s *Store) AddPortForward(pf PortForward) error {
	if err := pf.Validate(); err != nil {
		return err
	}
	for _, p := range s.config.PortForwards {
		if p.ConnectionID == pf.ConnectionID &&
			p.LocalAddr == pf.LocalAddr && p.LocalPort == pf.LocalPort &&
			p.ServiceHost == pf.ServiceHost && p.ServicePort == pf.ServicePort {
			return apperr.Newf(apperr.Config, "port forward already exists with the same configuration")
		}
	}
	s.config.PortForwards = append(s.config.PortForwards, pf)
	return s.Save()
}

// UpdatePortForward enforces the same tuple uniqueness as AddPortForward,
// ignoring the entry being edited.
func (s *Store) UpdatePortForward(pf PortForward) error {
	if err := pf.Validate(); err != nil {
		return err
	}
	for _, p := range s.config.PortForwards {
		if p.ID != pf.ID && p.ConnectionID == pf.ConnectionID &&
			p.LocalAddr == pf.LocalAddr && p.LocalPort == pf.LocalPort &&
			p.ServiceHost == pf.ServiceHost && p.ServicePort == pf.ServicePort {
			return apperr.Newf(apperr.Config, "port forward already exists with the same configuration")
		}
	}
	for i := range s.config.PortForwards {
		if s.config.PortForwards[i].ID == pf.ID {
			s.config.PortForwards[i] = pf
			return s.Save()
		}
	}
	return apperr.Newf(apperr.Config, "port forward not found")
}

func (s *Store) RemovePortForward(id string) error {
	for i := range s.config.PortForwards {
		if s.config.PortForwards[i].ID == id {
			s.config.PortForwards = append(s.config.PortForwards[:i], s.config.PortForwards[i+1:]...)
			return s.Save()
		}
	}
	return apperr.Newf(apperr.Config, "port forward not found")
}

// SetForwardStatus updates the non-persisted runtime status in memory only.
func (s *Store) SetForwardStatus(id string, status ForwardStatus) {
	for i := range s.config.PortForwards {
		if s.config.PortForwards[i].ID == id {
			s.config.PortForwards[i].Status = status
			return
		}
	}
}
