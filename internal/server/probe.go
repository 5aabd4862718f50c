package server

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo describes a live process that passed the identity check.
type ProcessInfo struct {
	PID         int
	Name        string
	MemoryBytes uint64
	CPUPercent  float64
	StartedAt   time.Time
}

// ProcessProbe checks whether pid is a live process named expectedName. A PID
// that belongs to some other executable is reported as not alive.
type ProcessProbe interface {
	Inspect(ctx context.Context, pid int, expectedName string) (ProcessInfo, bool, error)
}

// GopsutilProbe inspects processes of the local host.
type GopsutilProbe struct{}

func (GopsutilProbe) Inspect(ctx context.Context, pid int, expectedName string) (ProcessInfo, bool, error) {
	if pid <= 0 {
		return ProcessInfo{}, false, nil
	}

	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		return ProcessInfo{}, false, err
	}
	if !exists {
		return ProcessInfo{}, false, nil
	}

	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return ProcessInfo{}, false, nil
		}
		return ProcessInfo{}, false, err
	}

	name, err := p.NameWithContext(ctx)
	if err != nil {
		// Exited between the checks.
		return ProcessInfo{}, false, nil
	}
	if !processNameMatches(name, expectedName) {
		return ProcessInfo{}, false, nil
	}

	info := ProcessInfo{PID: pid, Name: name}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.MemoryBytes = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		info.CPUPercent = cpu
	}
	if created, err := p.CreateTimeWithContext(ctx); err == nil {
		info.StartedAt = time.UnixMilli(created)
	}
	return info, true, nil
}

func processNameMatches(name, expected string) bool {
	if expected == "" {
		return true
	}
	normalize := func(s string) string {
		s = strings.ToLower(filepath.Base(s))
		return strings.TrimSuffix(s, ".exe")
	}
	return normalize(name) == normalize(expected)
}
