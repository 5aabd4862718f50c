package server

import (
	"time"
)

// State is the lifecycle state of the managed server process.
type State string

const (
	StateUnknown  State = "unknown"
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// ProcessHandle is the supervisor's view of the process. PID is only set
// while the state is Starting, Running or Stopping.
type ProcessHandle struct {
	PID       int
	StartedAt time.Time
	State     State
}

// Status is the result of a probe.
type Status struct {
	State         State     `json:"state"`
	Running       bool      `json:"running"`
	PID           int       `json:"pid,omitempty"`
	MemoryBytes   uint64    `json:"memory_bytes"`
	CPUPercent    float64   `json:"cpu_percent"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Result is the outcome of a lifecycle operation as reported to callers.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CommandResult is the outcome of SendCommand as reported to callers.
type CommandResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// NewResult summarizes a lifecycle operation.
func NewResult(action Action, err error) Result {
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	switch action {
	case ActionStart:
		return Result{Success: true, Message: "Server started"}
	case ActionStop:
		return Result{Success: true, Message: "Server stopped"}
	case ActionRestart:
		return Result{Success: true, Message: "Server restarted"}
	case ActionCommand:
		return Result{Success: true, Message: "Command executed"}
	default:
		return Result{Success: true, Message: "OK"}
	}
}

// NewCommandResult summarizes a SendCommand call.
func NewCommandResult(output string, err error) CommandResult {
	if err != nil {
		return CommandResult{Success: false, Error: err.Error()}
	}
	return CommandResult{Success: true, Output: output}
}
