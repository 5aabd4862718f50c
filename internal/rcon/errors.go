package rcon

import (
	"errors"
	"fmt"
)

// ErrorKind classifies RCON failures.
type ErrorKind int

const (
	// KindConnection covers unreachable servers, refused connections and timeouts.
	KindConnection ErrorKind = iota + 1
	// KindAuthentication means the server rejected the password.
	KindAuthentication
	// KindProtocol covers malformed or desynchronized packets.
	KindProtocol
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindAuthentication:
		return "authentication"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is the error type returned by the client.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Sentinels for errors.Is matching against an error kind.
var (
	ErrConnection     = &Error{Kind: KindConnection}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrProtocol       = &Error{Kind: KindProtocol}
)

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rcon %s error", e.Kind)
	}
	if e.Op == "" {
		return fmt.Sprintf("rcon %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("rcon %s error during %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of an RCON error, or 0 if err is not one.
func KindOf(err error) ErrorKind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return 0
}
