package sshc

import (
	"io"
	"os"

	"github.com/pkg/sftp"

	"sshpilot/internal/apperr"
)

// SFTPClient wraps an SFTP subsystem channel. One client serves both the
// file browser and the transfer engine for its session.
type SFTPClient struct {
	c *sftp.Client
}

// OpenSFTP starts the SFTP subsystem on the session transport.
func (s *Session) OpenSFTP() (*SFTPClient, error) {
	c, err := sftp.NewClient(s.client)
	if err != nil {
		if s.Closed() {
			return nil, apperr.New(apperr.TransportClosed, "session closed", err)
		}
		return nil, apperr.New(apperr.Sftp, "open sftp subsystem", err)
	}
	return &SFTPClient{c: c}, nil
}

func (f *SFTPClient) ReadDir(path string) ([]os.FileInfo, error) {
	infos, err := f.c.ReadDir(path)
	if err != nil {
		return nil, apperr.New(apperr.Sftp, "read dir "+path, err)
	}
	return infos, nil
}

// Stat follows symlinks, so a link to a directory lists as a directory.
func (f *SFTPClient) Stat(path string) (os.FileInfo, error) {
	info, err := f.c.Stat(path)
	if err != nil {
		return nil, apperr.New(apperr.Sftp, "stat "+path, err)
	}
	return info, nil
}

// RealPath canonicalizes a remote path; "." yields the login directory.
func (f *SFTPClient) RealPath(path string) (string, error) {
	p, err := f.c.RealPath(path)
	if err != nil {
		return "", apperr.New(apperr.Sftp, "resolve "+path, err)
	}
	return p, nil
}

func (f *SFTPClient) Remove(path string) error {
	if err := f.c.Remove(path); err != nil {
		return apperr.New(apperr.Sftp, "remove "+path, err)
	}
	return nil
}

func (f *SFTPClient) Rename(oldpath, newpath string) error {
	if err := f.c.Rename(oldpath, newpath); err != nil {
		return apperr.New(apperr.Sftp, "rename "+oldpath, err)
	}
	return nil
}

func (f *SFTPClient) RemoveDirectory(path string) error {
	if err := f.c.RemoveDirectory(path); err != nil {
		return apperr.New(apperr.Sftp, "remove dir "+path, err)
	}
	return nil
}

// Mkdir creates a directory; an existing directory at the path is not an
// error, so re-running a transfer plan is safe.
func (f *SFTPClient) Mkdir(path string) error {
	err := f.c.Mkdir(path)
	if err == nil {
		return nil
	}
	if info, statErr := f.c.Stat(path); statErr == nil && info.IsDir() {
		return nil
	}
	return apperr.New(apperr.Sftp, "mkdir "+path, err)
}

func (f *SFTPClient) OpenRead(path string) (io.ReadCloser, error) {
	h, err := f.c.Open(path)
	if err != nil {
		return nil, apperr.New(apperr.Sftp, "open "+path, err)
	}
	return h, nil
}

// OpenWrite opens path for writing, creating it or truncating existing
// contents.
func (f *SFTPClient) OpenWrite(path string) (io.WriteCloser, error) {
	h, err := f.c.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, apperr.New(apperr.Sftp, "create "+path, err)
	}
	return h, nil
}

// ReadHead returns up to n leading bytes of a file; the preview pane uses
// it to sniff binary content before rendering.
func (f *SFTPClient) ReadHead(path string, n int) ([]byte, error) {
	h, err := f.c.Open(path)
	if err != nil {
		return nil, apperr.New(apperr.Sftp, "open "+path, err)
	}
	defer h.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(h, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, apperr.New(apperr.Sftp, "read "+path, err)
	}
	return buf[:read], nil
}

func (f *SFTPClient) Close() error { return f.c.Close() }
