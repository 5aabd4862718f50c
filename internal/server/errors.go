package server

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies supervisor failures.
type ErrorKind int

const (
	KindAlreadyRunning ErrorKind = iota + 1
	KindNotRunning
	KindExternalCommandFailed
	KindTimeout
	KindCommandFailed
	KindStartFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindAlreadyRunning:
		return "already_running"
	case KindNotRunning:
		return "not_running"
	case KindExternalCommandFailed:
		return "external_command_failed"
	case KindTimeout:
		return "timeout"
	case KindCommandFailed:
		return "command_failed"
	case KindStartFailed:
		return "start_failed"
	default:
		return "unknown"
	}
}

// SupervisorError carries the kind of failure plus any output captured from
// the control mechanism.
type SupervisorError struct {
	Kind    ErrorKind
	Message string
	Stdout  string
	Stderr  string
	Err     error

	// timedOut marks a start failure caused by the confirmation deadline.
	timedOut bool
}

var (
	ErrAlreadyRunning        = &SupervisorError{Kind: KindAlreadyRunning}
	ErrNotRunning            = &SupervisorError{Kind: KindNotRunning}
	ErrExternalCommandFailed = &SupervisorError{Kind: KindExternalCommandFailed}
	ErrTimeout               = &SupervisorError{Kind: KindTimeout}
	ErrCommandFailed         = &SupervisorError{Kind: KindCommandFailed}
	ErrStartFailed           = &SupervisorError{Kind: KindStartFailed}
)

func (e *SupervisorError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if b.Len() == 0 {
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		fmt.Fprintf(&b, " (stderr: %s)", stderr)
	}
	return b.String()
}

func (e *SupervisorError) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind. A start that timed out also matches ErrTimeout.
func (e *SupervisorError) Is(target error) bool {
	t, ok := target.(*SupervisorError)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindTimeout && e.timedOut
}

// KindOf returns the kind of a supervisor error, or 0.
func KindOf(err error) ErrorKind {
	var serr *SupervisorError
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return 0
}

func alreadyRunning(pid int) *SupervisorError {
	return &SupervisorError{Kind: KindAlreadyRunning, Message: fmt.Sprintf("server is already running (pid %d)", pid)}
}

func notRunning() *SupervisorError {
	return &SupervisorError{Kind: KindNotRunning, Message: "server is not running"}
}

func externalCommandFailed(action Action, res ControlResult, err error) *SupervisorError {
	msg := fmt.Sprintf("control %s failed", action)
	if err == nil {
		msg = fmt.Sprintf("control %s exited with status %d", action, res.ExitCode)
	}
	return &SupervisorError{
		Kind:    KindExternalCommandFailed,
		Message: msg,
		Stdout:  res.Stdout,
		Stderr:  res.Stderr,
		Err:     err,
	}
}
