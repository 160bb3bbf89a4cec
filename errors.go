package httpcore

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies a class of error this package surfaces to callers.
type Kind int

const (
	// KindInvalid marks bad arguments, e.g. a handler registered with method HEAD.
	KindInvalid Kind = iota
	// KindOutOfMemory marks an allocation failure.
	KindOutOfMemory
	// KindAddressInUse marks a handler registration conflict.
	KindAddressInUse
	// KindInvalidAddress marks an unsupported URL scheme or unresolvable host.
	KindInvalidAddress
	// KindBusy marks a mutator called while the server is running.
	KindBusy
	// KindNotSupported marks a TLS API call when TLS is unavailable.
	KindNotSupported
	// KindClosed marks an operation that raced a session or server shutdown.
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindOutOfMemory:
		return "out of memory"
	case KindAddressInUse:
		return "address in use"
	case KindInvalidAddress:
		return "invalid address"
	case KindBusy:
		return "busy"
	case KindNotSupported:
		return "not supported"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every public entry point that
// can fail, distinguishing the failure classes callers may want to branch on.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func newErr(k Kind, msg string) *Error {
	return &Error{kind: k, msg: msg}
}

func wrapErr(k Kind, msg string, err error) *Error {
	return &Error{kind: k, msg: msg, err: errors.WithStack(err)}
}

// Kind reports which class of failure this error represents.
func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("httpcore: %s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("httpcore: %s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.kind == e.kind
}

var (
	// ErrInvalid is a sentinel matching any KindInvalid error via errors.Is.
	ErrInvalid = newErr(KindInvalid, "")
	// ErrOutOfMemory is a sentinel matching any KindOutOfMemory error via errors.Is.
	ErrOutOfMemory = newErr(KindOutOfMemory, "")
	// ErrAddressInUse is a sentinel matching any KindAddressInUse error via errors.Is.
	ErrAddressInUse = newErr(KindAddressInUse, "")
	// ErrInvalidAddress is a sentinel matching any KindInvalidAddress error via errors.Is.
	ErrInvalidAddress = newErr(KindInvalidAddress, "")
	// ErrBusy is a sentinel matching any KindBusy error via errors.Is.
	ErrBusy = newErr(KindBusy, "")
	// ErrNotSupported is a sentinel matching any KindNotSupported error via errors.Is.
	ErrNotSupported = newErr(KindNotSupported, "")
	// ErrClosed is a sentinel matching any KindClosed error via errors.Is.
	ErrClosed = newErr(KindClosed, "")
)
