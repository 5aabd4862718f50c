package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrNoPID means no usable PID is recorded. A missing, empty or malformed
// record all map here; the process is then considered stopped.
var ErrNoPID = errors.New("no pid recorded")

// PIDSource reads the recorded PID of the server process.
type PIDSource interface {
	ReadPID() (int, error)
	Clear() error
}

// PIDFile is the server.pid file written by the control script.
type PIDFile struct {
	Path string
}

func (f *PIDFile) ReadPID() (int, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNoPID
		}
		return 0, fmt.Errorf("failed to read pid file: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, ErrNoPID
	}
	pid, err := strconv.Atoi(text)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: malformed pid file %s", ErrNoPID, f.Path)
	}
	return pid, nil
}

// Write records pid, replacing any previous value.
func (f *PIDFile) Write(pid int) error {
	return os.WriteFile(f.Path, []byte(strconv.Itoa(pid)+"\n"), 0644)
}

func (f *PIDFile) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove pid file: %w", err)
	}
	return nil
}
