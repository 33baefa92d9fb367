// Package apperr defines the application error taxonomy. Background tasks
// convert every remote-induced condition into a typed Error and deliver it
// over their result channel; the controller turns it into a banner.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Validation Kind = iota
	Config
	Encryption
	Connect
	Handshake
	Auth
	HostKeyMismatch
	Sftp
	Transfer
	PortForward
	Clipboard
	Io
	TransportClosed
)

// AuthSub narrows Auth failures so the UI can hint at the actual cause.
type AuthSub int

const (
	AuthUnspecified AuthSub = iota
	AuthNoneRejected
	AuthPasswordRejected
	AuthKeyRejected
	AuthPromptMismatch
)

type Error struct {
	Kind    Kind
	Sub     AuthSub
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewAuth builds an Auth error carrying its sub-kind.
func NewAuth(sub AuthSub, message string, err error) *Error {
	return &Error{Kind: Auth, Sub: sub, Message: message, Err: err}
}

// KindOf reports the taxonomy kind of err, or Io when err is not an
// application error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Io
}

// IsKind reports whether err is an application error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Config:
		return "config"
	case Encryption:
		return "encryption"
	case Connect:
		return "connect"
	case Handshake:
		return "handshake"
	case Auth:
		return "auth"
	case HostKeyMismatch:
		return "host key mismatch"
	case Sftp:
		return "sftp"
	case Transfer:
		return "transfer"
	case PortForward:
		return "port forward"
	case Clipboard:
		return "clipboard"
	case TransportClosed:
		return "transport closed"
	default:
		return "io"
	}
}
