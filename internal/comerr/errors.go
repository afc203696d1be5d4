// Package comerr defines the error kinds the path-IO facade raises,
// generalizing the small wrap-error type goserial uses for its own
// ErrClosed (msg + wrapped cause, Unwrap-able) into a typed Kind so
// callers can tell "not found" from "unsupported" from "the exchange with
// the device failed" without string matching.
package comerr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies the failure behind an Error.
type Kind int

const (
	// KindNotExist: a path does not exist where one was expected (stat,
	// is_dir on an absent entry).
	KindNotExist Kind = iota
	// KindUnsupported: an open mode or operation the facade doesn't implement.
	KindUnsupported
	// KindDevice: a shell command or XMODEM exchange with the far end
	// failed (a channel write failed, the link closed, or the caller's
	// context ended). A "File not found" / "Invalid drive" listing is
	// reported as KindNotExist instead.
	KindDevice
	// KindTimeout: a serial read exceeded its deadline where the caller
	// cannot itself recover (contrasted with the shell driver's internal,
	// never-surfaced desync retries).
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNotExist:
		return "not exist"
	case KindUnsupported:
		return "unsupported"
	case KindDevice:
		return "device"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a typed, wrap-able error: msg describes what was being
// attempted, Kind classifies why it failed, err is the wrapped cause (may
// be nil).
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no wrapped cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an Error around an existing cause, crossing a package
// boundary (shell/xmodem into pathio). Returns nil if err is nil. The
// cause is run through pkg/errors.WithStack first, so an operator
// chasing a failed transfer through logs gets the call stack at the
// point the underlying shell or XMODEM error actually occurred, not just
// where it was last re-wrapped.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: pkgerrors.WithStack(err)}
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
