package server

import (
	"context"
	"log"
	"time"
)

const DefaultStatusInterval = 5 * time.Second

// Monitor probes the server every interval, records the status and passes it
// to publish. It returns when ctx is done.
func (s *Supervisor) Monitor(ctx context.Context, interval time.Duration, publish func(Status)) {
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[Supervisor] Started monitoring server %s (interval: %v)", s.opts.ServerID, interval)
	s.Report(ctx, publish)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Supervisor] Stopped monitoring server %s", s.opts.ServerID)
			return
		case <-ticker.C:
			s.Report(ctx, publish)
		}
	}
}

// Report runs one probe, records it and publishes it.
func (s *Supervisor) Report(ctx context.Context, publish func(Status)) Status {
	st, err := s.Probe(ctx)
	errorMsg := ""
	if err != nil {
		log.Printf("[Supervisor] Error detecting status for %s: %v", s.opts.ServerID, err)
		errorMsg = err.Error()
	}

	if s.deps.Recorder != nil {
		if err := s.deps.Recorder.RecordStatus(ctx, s.opts.ServerID, st, errorMsg); err != nil {
			log.Printf("[Supervisor] Warning: %v", err)
		}
	}
	if publish != nil {
		publish(st)
	}
	return st
}
