//go:build !windows

package server

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// OSSignaller signals local processes.
type OSSignaller struct{}

func (OSSignaller) Terminate(pid int) error {
	return signalProcess(pid, unix.SIGTERM)
}

func (OSSignaller) Kill(pid int) error {
	return signalProcess(pid, unix.SIGKILL)
}

func signalProcess(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if err := unix.Kill(pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("failed to send %s to %d: %w", unix.SignalName(sig), pid, err)
	}
	return nil
}
