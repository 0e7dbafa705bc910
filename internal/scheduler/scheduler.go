package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"proxygen/internal/logger"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled run.
type Job func(ctx context.Context)

// Scheduler runs a job on a standard five-field cron expression.
// Overlapping runs are skipped.
type Scheduler struct {
	spec string
	job  Job

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func New(spec string, job Job) *Scheduler {
	return &Scheduler{
		spec: spec,
		job:  job,
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start schedules the job. An empty spec disables scheduling. The scheduler
// stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spec == "" {
		logger.Log.Info("Refresh schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.spec, err)
	}

	if _, err := s.cron.AddFunc(s.spec, func() {
		start := time.Now()
		logger.Log.Info("⏰ Scheduled refresh starting")
		s.job(ctx)
		logger.Log.Infof("⏰ Scheduled refresh finished in %v", time.Since(start).Round(time.Millisecond))
	}); err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}

	s.cron.Start()
	s.running = true
	logger.Log.Infof("⏰ Refresh scheduled: %s (next: %s)", s.spec, s.nextRunLocked().Format(time.RFC3339))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		logger.Log.Info("Refresh scheduler stopped")
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled run, or the zero time when idle.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRunLocked()
}

func (s *Scheduler) nextRunLocked() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
