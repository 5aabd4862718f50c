package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Yupick/mc-simple/internal/config"
	"github.com/Yupick/mc-simple/internal/rcon"
)

// Lifecycle is the part of the supervisor a schedule can drive.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	SendCommand(ctx context.Context, text string) (string, error)
}

// ScheduleSource provides the current schedule definitions.
type ScheduleSource interface {
	GetAll() []config.ScheduleDefinition
}

// ErrUnknownSchedule is returned by RunNow for a name that is not loaded.
var ErrUnknownSchedule = errors.New("unknown schedule")

// Job describes a loaded schedule.
type Job struct {
	Name    string    `json:"name"`
	Cron    string    `json:"cron"`
	Action  string    `json:"action"`
	Enabled bool      `json:"enabled"`
	Next    time.Time `json:"next_run,omitempty"`
	Prev    time.Time `json:"last_run,omitempty"`
}

// Runner executes schedule definitions on their cron expressions. Jobs do
// not overlap: a run that is still going when its next tick fires is skipped.
type Runner struct {
	lifecycle Lifecycle
	source    ScheduleSource
	timeout   time.Duration
	cron      *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
	defs    map[string]config.ScheduleDefinition

	// sleep waits out announce_lead; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron reports whether expr is a cron expression the runner accepts:
// five fields, an optional leading seconds field, or a descriptor like @daily.
func ValidateCron(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return nil
}

// NewRunner creates a runner. timeout bounds each job run, including its
// announce lead.
func NewRunner(lifecycle Lifecycle, source ScheduleSource, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Runner{
		lifecycle: lifecycle,
		source:    source,
		timeout:   timeout,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
		defs:    make(map[string]config.ScheduleDefinition),
		sleep:   sleepContext,
	}
}

// Start loads the schedules and runs the cron loop until ctx is done.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	err := r.Reload()
	r.cron.Start()
	log.Printf("[Scheduler] Started with %d jobs", len(r.Jobs()))

	go func() {
		<-ctx.Done()
		stopped := r.cron.Stop()
		<-stopped.Done()
		log.Printf("[Scheduler] Stopped")
	}()
	return err
}

// Reload replaces every job with the source's current definitions. Invalid
// cron expressions are skipped and reported together.
func (r *Runner) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, id := range r.entries {
		r.cron.Remove(id)
		delete(r.entries, name)
	}
	r.defs = make(map[string]config.ScheduleDefinition)

	var errs []error
	for _, def := range r.source.GetAll() {
		r.defs[def.Name] = def
		if !def.IsEnabled() {
			continue
		}
		schedule, err := parser.Parse(def.Cron)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: invalid cron %q: %w", def.Name, def.Cron, err))
			continue
		}
		def := def
		r.entries[def.Name] = r.cron.Schedule(schedule, cron.FuncJob(func() {
			r.execute(def)
		}))
	}

	if len(errs) > 0 {
		for _, err := range errs {
			log.Printf("[Scheduler] %v", err)
		}
		return errors.Join(errs...)
	}
	return nil
}

// Jobs lists the loaded schedules sorted by name.
func (r *Runner) Jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]Job, 0, len(r.defs))
	for name, def := range r.defs {
		job := Job{Name: name, Cron: def.Cron, Action: def.Action, Enabled: def.IsEnabled()}
		if id, ok := r.entries[name]; ok {
			entry := r.cron.Entry(id)
			job.Next = entry.Next
			job.Prev = entry.Prev
			if job.Next.IsZero() && entry.Schedule != nil {
				job.Next = entry.Schedule.Next(time.Now())
			}
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

// RunNow executes a loaded schedule immediately, enabled or not, and waits
// for it to finish.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	r.mu.Lock()
	def, ok := r.defs[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, name)
	}
	return r.run(ctx, def)
}

func (r *Runner) execute(def config.ScheduleDefinition) {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()

	if err := r.run(ctx, def); err != nil {
		log.Printf("[Scheduler] Job %s (%s) failed: %v", def.Name, def.Action, err)
	}
}

func (r *Runner) run(ctx context.Context, def config.ScheduleDefinition) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	log.Printf("[Scheduler] Running job %s (%s)", def.Name, def.Action)

	if def.Announce != "" && (def.Action == config.ScheduleStop || def.Action == config.ScheduleRestart) {
		r.announce(ctx, def)
	}

	var err error
	switch def.Action {
	case config.ScheduleStart:
		err = r.lifecycle.Start(ctx)
	case config.ScheduleStop:
		err = r.lifecycle.Stop(ctx)
	case config.ScheduleRestart:
		err = r.lifecycle.Restart(ctx)
	case config.ScheduleCommand:
		var out string
		out, err = r.lifecycle.SendCommand(ctx, def.Command)
		if err == nil && out != "" {
			log.Printf("[Scheduler] Job %s output: %s", def.Name, out)
		}
	default:
		err = fmt.Errorf("unsupported action %q", def.Action)
	}
	if err != nil {
		return err
	}

	log.Printf("[Scheduler] Job %s completed", def.Name)
	return nil
}

// announce warns players before a stop. Failures are logged; the job still
// runs, since the server may not be running at all.
func (r *Runner) announce(ctx context.Context, def config.ScheduleDefinition) {
	cmd, err := rcon.Say(def.Announce)
	if err != nil {
		log.Printf("[Scheduler] Job %s: invalid announcement: %v", def.Name, err)
		return
	}
	if _, err := r.lifecycle.SendCommand(ctx, cmd); err != nil {
		log.Printf("[Scheduler] Job %s: announcement not delivered: %v", def.Name, err)
		return
	}

	lead := config.Duration(def.AnnounceLead, 0)
	if lead <= 0 {
		return
	}
	if err := r.sleep(ctx, lead); err != nil {
		log.Printf("[Scheduler] Job %s: announce lead interrupted: %v", def.Name, err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
