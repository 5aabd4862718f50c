//go:build windows

package server

import (
	"fmt"
	"os"
)

// OSSignaller signals local processes. Windows has no SIGTERM, so both
// methods terminate the process.
type OSSignaller struct{}

func (OSSignaller) Terminate(pid int) error {
	return OSSignaller{}.Kill(pid)
}

func (OSSignaller) Kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	return p.Kill()
}
