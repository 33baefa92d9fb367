// Package transfer moves files and directory trees between any pair of
// endpoints: local disk, an SFTP session, or two SFTP sessions. Both ends
// sit behind the FS interface, so the batch engine is endpoint-agnostic.
package transfer

import (
	"io"
	"os"
	"path"
	"path/filepath"

	"sshpilot/internal/apperr"
	"sshpilot/internal/sshc"
)

// FS is the capability surface the walker and batch engine need from an
// endpoint. Mkdir must be idempotent so re-running a plan is safe.
type FS interface {
	ReadDir(dir string) ([]os.FileInfo, error)
	Stat(p string) (os.FileInfo, error)
	Open(p string) (io.ReadCloser, error)
	Create(p string) (io.WriteCloser, error)
	Mkdir(p string) error
	Remove(p string) error
	Join(elem ...string) string
}

// LocalFS serves the machine running the client.
type LocalFS struct{}

func (LocalFS) ReadDir(dir string) ([]os.FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.New(apperr.Io, "read dir "+dir, err)
	}
	infos := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, apperr.New(apperr.Io, "stat "+e.Name(), err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (LocalFS) Stat(p string) (os.FileInfo, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, apperr.New(apperr.Io, "stat "+p, err)
	}
	return info, nil
}

func (LocalFS) Open(p string) (io.ReadCloser, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, apperr.New(apperr.Io, "open "+p, err)
	}
	return f, nil
}

func (LocalFS) Create(p string) (io.WriteCloser, error) {
	f, err := os.Create(p)
	if err != nil {
		return nil, apperr.New(apperr.Io, "create "+p, err)
	}
	return f, nil
}

func (LocalFS) Mkdir(p string) error {
	err := os.Mkdir(p, 0755)
	if err == nil || os.IsExist(err) {
		return nil
	}
	return apperr.New(apperr.Io, "mkdir "+p, err)
}

func (LocalFS) Remove(p string) error {
	if err := os.Remove(p); err != nil {
		return apperr.New(apperr.Io, "remove "+p, err)
	}
	return nil
}

func (LocalFS) Join(elem ...string) string { return filepath.Join(elem...) }

// SFTPFS serves one remote endpoint through its session's SFTP channel.
type SFTPFS struct {
	Client *sshc.SFTPClient
}

func (f SFTPFS) ReadDir(dir string) ([]os.FileInfo, error) { return f.Client.ReadDir(dir) }
func (f SFTPFS) Stat(p string) (os.FileInfo, error)        { return f.Client.Stat(p) }
func (f SFTPFS) Open(p string) (io.ReadCloser, error)      { return f.Client.OpenRead(p) }
func (f SFTPFS) Create(p string) (io.WriteCloser, error)   { return f.Client.OpenWrite(p) }
func (f SFTPFS) Mkdir(p string) error                      { return f.Client.Mkdir(p) }
func (f SFTPFS) Remove(p string) error                     { return f.Client.Remove(p) }

// Remote paths always use forward slashes regardless of the local OS.
func (SFTPFS) Join(elem ...string) string { return path.Join(elem...) }
