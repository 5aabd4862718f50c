package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StopStrategy selects how a graceful stop is requested.
type StopStrategy string

const (
	// StopViaRCON sends the stop commands over RCON and falls back to SIGTERM.
	StopViaRCON StopStrategy = "rcon"
	// StopViaScript invokes the controller's stop action.
	StopViaScript StopStrategy = "script"
)

// Signaller delivers termination signals to the server process.
type Signaller interface {
	Terminate(pid int) error
	Kill(pid int) error
}

// Commander sends console commands to the running server. *rcon.Client
// satisfies it.
type Commander interface {
	Execute(ctx context.Context, command string) (string, error)
	Close() error
}

// Options tune a Supervisor. Zero values take the defaults below.
type Options struct {
	ServerID     string
	ProcessName  string
	StartTimeout time.Duration
	StopTimeout  time.Duration
	KillTimeout  time.Duration
	PollInterval time.Duration
	RestartDelay time.Duration
	StopStrategy StopStrategy
	StopCommands []string
}

func (o *Options) applyDefaults() {
	if o.ServerID == "" {
		o.ServerID = "minecraft"
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = 30 * time.Second
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 30 * time.Second
	}
	if o.KillTimeout <= 0 {
		o.KillTimeout = 10 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.RestartDelay < 0 {
		o.RestartDelay = 0
	}
	if o.StopStrategy != StopViaScript {
		o.StopStrategy = StopViaRCON
	}
	if len(o.StopCommands) == 0 {
		o.StopCommands = []string{"save-all", "stop"}
	}
}

// Dependencies are the collaborators a Supervisor drives.
type Dependencies struct {
	PIDs     PIDSource
	Probe    ProcessProbe
	Control  Controller
	Signals  Signaller
	Logs     LogReader
	RCON     Commander
	Recorder Recorder

	// OnEvent, if set, is called after every lifecycle operation.
	OnEvent func(Event)
}

// Supervisor owns the lifecycle of one server process. Start, Stop and
// Restart are serialized; Probe, GetStatus and SendCommand run concurrently
// with each other and with a lifecycle operation in progress.
type Supervisor struct {
	opts Options
	deps Dependencies

	// lifecycle is a one-slot semaphore so waiting callers can give up on ctx.
	lifecycle chan struct{}

	mu            sync.RWMutex
	handle        ProcessHandle
	transitioning bool

	cmdMu sync.Mutex
}

// New creates a supervisor. The handle stays Unknown until the first probe.
func New(opts Options, deps Dependencies) *Supervisor {
	opts.applyDefaults()
	if deps.PIDs == nil {
		deps.PIDs = &PIDFile{Path: "server.pid"}
	}
	if deps.Probe == nil {
		deps.Probe = GopsutilProbe{}
	}
	if deps.Signals == nil {
		deps.Signals = OSSignaller{}
	}
	return &Supervisor{
		opts:      opts,
		deps:      deps,
		lifecycle: make(chan struct{}, 1),
		handle:    ProcessHandle{State: StateUnknown},
	}
}

// ServerID identifies the managed server in records and events.
func (s *Supervisor) ServerID() string {
	return s.opts.ServerID
}

// Handle returns a copy of the current process handle.
func (s *Supervisor) Handle() ProcessHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

type observation struct {
	info    ProcessInfo
	running bool
	at      time.Time
}

// observe asks the OS about the recorded PID without touching the handle.
func (s *Supervisor) observe(ctx context.Context) (observation, error) {
	obs := observation{at: time.Now()}

	pid, err := s.deps.PIDs.ReadPID()
	if err != nil {
		if errors.Is(err, ErrNoPID) {
			return obs, nil
		}
		return obs, err
	}

	info, alive, err := s.deps.Probe.Inspect(ctx, pid, s.opts.ProcessName)
	if err != nil {
		return obs, fmt.Errorf("failed to inspect pid %d: %w", pid, err)
	}
	obs.info = info
	obs.running = alive
	return obs, nil
}

// reconcile folds an observation into the handle. While a lifecycle operation
// is in flight the transitional state is kept but the PID still follows the OS.
func (s *Supervisor) reconcile(obs observation) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if obs.running {
		s.handle.PID = obs.info.PID
		s.handle.StartedAt = obs.info.StartedAt
		if !s.transitioning {
			s.handle.State = StateRunning
		}
	} else {
		s.handle.PID = 0
		s.handle.StartedAt = time.Time{}
		if !s.transitioning {
			s.handle.State = StateStopped
		}
	}
	return s.statusLocked(obs)
}

func (s *Supervisor) statusLocked(obs observation) Status {
	st := Status{
		State:     s.handle.State,
		Running:   obs.running,
		CheckedAt: obs.at,
	}
	if obs.running {
		st.PID = obs.info.PID
		st.MemoryBytes = obs.info.MemoryBytes
		st.CPUPercent = obs.info.CPUPercent
		if !obs.info.StartedAt.IsZero() {
			st.UptimeSeconds = int64(obs.at.Sub(obs.info.StartedAt).Seconds())
		}
	}
	return st
}

func (s *Supervisor) setUnknown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.transitioning {
		s.handle = ProcessHandle{State: StateUnknown}
	}
}

// Probe reconciles the handle with the OS and reports the result. Calling it
// repeatedly without external change yields the same result.
func (s *Supervisor) Probe(ctx context.Context) (Status, error) {
	obs, err := s.observe(ctx)
	if err != nil {
		s.setUnknown()
		return Status{State: StateUnknown, CheckedAt: obs.at}, err
	}
	return s.reconcile(obs), nil
}

// GetStatus is Probe under the name callers expect.
func (s *Supervisor) GetStatus(ctx context.Context) (Status, error) {
	return s.Probe(ctx)
}

func (s *Supervisor) acquire(ctx context.Context) error {
	select {
	case s.lifecycle <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) release() {
	<-s.lifecycle
}

func (s *Supervisor) beginTransition(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitioning = true
	s.handle.State = state
}

// endTransition leaves the transitional state by probing afresh, so the
// handle ends up Running or Stopped. The probe runs even if ctx is done.
func (s *Supervisor) endTransition(ctx context.Context) Status {
	s.mu.Lock()
	s.transitioning = false
	s.mu.Unlock()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	st, err := s.Probe(pctx)
	if err != nil {
		log.Printf("[Supervisor] Failed to reconcile state: %v", err)
	}
	return st
}

// Start launches the server and waits until its process is confirmed alive.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	started := time.Now()
	err := s.startLocked(ctx)
	s.emit(ctx, ActionStart, started, err)
	return err
}

func (s *Supervisor) startLocked(ctx context.Context) error {
	log.Printf("[Supervisor] Starting server %s...", s.opts.ServerID)

	obs, err := s.observe(ctx)
	if err != nil {
		s.setUnknown()
		return fmt.Errorf("failed to check current status: %w", err)
	}
	if obs.running {
		s.reconcile(obs)
		return alreadyRunning(obs.info.PID)
	}

	s.beginTransition(StateStarting)

	res, err := s.deps.Control.Invoke(ctx, ActionStart)
	if err != nil || res.ExitCode != 0 {
		s.endTransition(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return externalCommandFailed(ActionStart, res, err)
	}

	log.Printf("[Supervisor] Waiting for server %s to start (timeout: %v)...", s.opts.ServerID, s.opts.StartTimeout)
	begin := time.Now()
	deadline := begin.Add(s.opts.StartTimeout)
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		obs, err := s.observe(ctx)
		if err != nil {
			log.Printf("[Supervisor] Status check error: %v", err)
		} else if obs.running {
			st := s.endTransition(ctx)
			log.Printf("[Supervisor] Server %s started (pid %d) in %v", s.opts.ServerID, st.PID, time.Since(begin).Round(time.Millisecond))
			return nil
		}

		if !time.Now().Before(deadline) {
			s.endTransition(ctx)
			return &SupervisorError{
				Kind:     KindStartFailed,
				Message:  fmt.Sprintf("server process did not appear within %v", s.opts.StartTimeout),
				Stdout:   res.Stdout,
				Stderr:   res.Stderr,
				timedOut: true,
			}
		}

		select {
		case <-ctx.Done():
			s.endTransition(ctx)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop asks the server to shut down and escalates to SIGKILL if it does not
// exit within the stop timeout.
func (s *Supervisor) Stop(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	started := time.Now()
	err := s.stopLocked(ctx)
	s.emit(ctx, ActionStop, started, err)
	return err
}

func (s *Supervisor) stopLocked(ctx context.Context) error {
	log.Printf("[Supervisor] Stopping server %s...", s.opts.ServerID)

	obs, err := s.observe(ctx)
	if err != nil {
		s.setUnknown()
		return fmt.Errorf("failed to check current status: %w", err)
	}
	if !obs.running {
		s.reconcile(obs)
		return notRunning()
	}
	pid := obs.info.PID

	s.beginTransition(StateStopping)

	switch s.opts.StopStrategy {
	case StopViaScript:
		res, err := s.deps.Control.Invoke(ctx, ActionStop)
		if err != nil || res.ExitCode != 0 {
			s.endTransition(ctx)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return externalCommandFailed(ActionStop, res, err)
		}
	default:
		if err := s.sendStopCommands(ctx); err != nil {
			log.Printf("[Supervisor] Graceful stop over RCON failed, sending SIGTERM to %d: %v", pid, err)
			if err := s.deps.Signals.Terminate(pid); err != nil {
				log.Printf("[Supervisor] Warning: %v", err)
			}
		}
	}

	log.Printf("[Supervisor] Waiting for graceful shutdown (timeout: %v)...", s.opts.StopTimeout)
	exited, err := s.waitForExit(ctx, s.opts.StopTimeout)
	if err != nil {
		s.endTransition(ctx)
		return err
	}
	if exited {
		s.finishStop(ctx)
		log.Printf("[Supervisor] Server %s stopped gracefully", s.opts.ServerID)
		return nil
	}

	log.Printf("[Supervisor] Graceful shutdown timed out, killing pid %d", pid)
	if err := s.deps.Signals.Kill(pid); err != nil {
		log.Printf("[Supervisor] Warning: %v", err)
	}

	exited, err = s.waitForExit(ctx, s.opts.KillTimeout)
	if err != nil {
		s.endTransition(ctx)
		return err
	}
	if exited {
		s.finishStop(ctx)
		log.Printf("[Supervisor] Server %s stopped (killed)", s.opts.ServerID)
		return nil
	}

	s.endTransition(ctx)
	return &SupervisorError{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("server process %d still alive %v after SIGKILL", pid, s.opts.KillTimeout),
	}
}

func (s *Supervisor) sendStopCommands(ctx context.Context) error {
	if s.deps.RCON == nil {
		return errors.New("rcon not configured")
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	for _, cmd := range s.opts.StopCommands {
		log.Printf("[Supervisor] Sending stop command: %s", cmd)
		if _, err := s.deps.RCON.Execute(ctx, cmd); err != nil {
			// The server may drop the session while executing "stop".
			if cmd == "stop" {
				log.Printf("[Supervisor] Session closed after stop command: %v", err)
				return nil
			}
			return err
		}
	}
	return nil
}

// waitForExit polls until the process is gone or timeout elapses. It only
// returns an error when ctx ends first.
func (s *Supervisor) waitForExit(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		obs, err := s.observe(ctx)
		if err != nil {
			log.Printf("[Supervisor] Status check error during shutdown wait: %v", err)
		} else if !obs.running {
			return true, nil
		}

		if !time.Now().Before(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) finishStop(ctx context.Context) {
	if err := s.deps.PIDs.Clear(); err != nil {
		log.Printf("[Supervisor] Warning: %v", err)
	}
	if s.deps.RCON != nil {
		s.cmdMu.Lock()
		_ = s.deps.RCON.Close()
		s.cmdMu.Unlock()
	}
	s.endTransition(ctx)
}

// Restart stops the server if it is running, waits the restart delay and
// starts it again, all under one hold of the lifecycle lock.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	started := time.Now()
	err := s.restartLocked(ctx)
	s.emit(ctx, ActionRestart, started, err)
	return err
}

func (s *Supervisor) restartLocked(ctx context.Context) error {
	log.Printf("[Supervisor] Restarting server %s...", s.opts.ServerID)

	if err := s.stopLocked(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if s.opts.RestartDelay > 0 {
		timer := time.NewTimer(s.opts.RestartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := s.startLocked(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Printf("[Supervisor] Server %s restarted successfully", s.opts.ServerID)
	return nil
}

// SendCommand runs a console command over RCON. It refuses without touching
// the network when the server is not running.
func (s *Supervisor) SendCommand(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &SupervisorError{Kind: KindCommandFailed, Message: "command is empty"}
	}

	started := time.Now()
	out, err := s.Query(ctx, text)
	s.emit(ctx, ActionCommand, started, err)
	return out, err
}

// Query is SendCommand without the lifecycle event, for read-only commands
// such as "list" that are polled.
func (s *Supervisor) Query(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &SupervisorError{Kind: KindCommandFailed, Message: "command is empty"}
	}

	st, err := s.Probe(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to check server status: %w", err)
	}
	if !st.Running {
		return "", notRunning()
	}
	if s.deps.RCON == nil {
		return "", &SupervisorError{Kind: KindCommandFailed, Message: "rcon not configured"}
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	out, err := s.deps.RCON.Execute(ctx, text)
	if err != nil {
		return "", &SupervisorError{Kind: KindCommandFailed, Message: fmt.Sprintf("command %q failed", text), Err: err}
	}
	return out, nil
}

// TailLogs returns the last n lines of the server log. n <= 0 means
// DefaultTailLines; n is capped at MaxTailLines.
func (s *Supervisor) TailLogs(n int) ([]string, error) {
	if s.deps.Logs == nil {
		return []string{}, nil
	}
	return s.deps.Logs.Tail(normalizeTailLines(n))
}

func (s *Supervisor) emit(ctx context.Context, action Action, started time.Time, opErr error) {
	handle := s.Handle()
	event := Event{
		ID:         uuid.NewString(),
		ServerID:   s.opts.ServerID,
		Action:     action,
		Success:    opErr == nil,
		Message:    NewResult(action, opErr).Message,
		State:      handle.State,
		DurationMs: time.Since(started).Milliseconds(),
		CreatedAt:  time.Now(),
	}

	if s.deps.Recorder != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		// Commands do not change the process, so the status row is left alone.
		if action != ActionCommand {
			status := Status{State: handle.State, Running: handle.State == StateRunning, PID: handle.PID, CheckedAt: event.CreatedAt}
			errorMsg := ""
			if opErr != nil {
				errorMsg = opErr.Error()
			}
			if err := s.deps.Recorder.RecordStatus(rctx, s.opts.ServerID, status, errorMsg); err != nil {
				log.Printf("[Supervisor] Warning: %v", err)
			}
		}
		if err := s.deps.Recorder.RecordEvent(rctx, event); err != nil {
			log.Printf("[Supervisor] Warning: %v", err)
		}
	}

	if s.deps.OnEvent != nil {
		s.deps.OnEvent(event)
	}
}
