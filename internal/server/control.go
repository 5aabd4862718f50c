package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Action is a lifecycle verb understood by a Controller.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionStatus  Action = "status"
	ActionCommand Action = "command"
)

// ControlResult is what an external control mechanism reported.
type ControlResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Controller drives the server process through an external mechanism. A
// non-nil error means the mechanism itself could not be run; a non-zero
// ExitCode means it ran and reported failure.
type Controller interface {
	Invoke(ctx context.Context, action Action) (ControlResult, error)
}

// ScriptController runs "<script> <action>" in the server directory, the
// contract of manage-control.sh.
type ScriptController struct {
	Script  string
	Dir     string
	Timeout time.Duration
}

// NewScriptController resolves a relative script against dir.
func NewScriptController(script, dir string, timeout time.Duration) *ScriptController {
	if script != "" && !filepath.IsAbs(script) {
		script = filepath.Join(dir, script)
	}
	return &ScriptController{Script: script, Dir: dir, Timeout: timeout}
}

func (c *ScriptController) Invoke(ctx context.Context, action Action) (ControlResult, error) {
	if c.Script == "" {
		return ControlResult{}, errors.New("no control script configured")
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	log.Printf("[Supervisor] Running %s %s", c.Script, action)
	res, err := runLocalCommand(ctx, c.Dir, c.Script, string(action))
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		log.Printf("[Supervisor] %s %s exited with status %d", filepath.Base(c.Script), action, res.ExitCode)
	}
	return res, nil
}

// runLocalCommand only returns an error when the command could not run to
// completion; a non-zero exit is reported through ExitCode.
func runLocalCommand(ctx context.Context, dir, name string, args ...string) (ControlResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := ControlResult{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.ExitCode = -1
			return res, fmt.Errorf("command %s interrupted: %w", filepath.Base(name), ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		// A backgrounded server that inherited the output pipes keeps them
		// open after the script itself has exited.
		if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
			log.Printf("[Control] %s exited while a child still holds its output", filepath.Base(name))
			res.ExitCode = cmd.ProcessState.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("command failed: %w", err)
	}

	return res, nil
}
