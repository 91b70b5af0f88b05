package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/searchstack/textsearchd/pkg/errors"
)

// Scheduler periodically triggers incremental builds of the configured
// dataset. The loop ticks at the configured interval regardless of the
// enabled flag; a disabled tick does nothing, so toggling takes effect on the
// next tick without restarting the loop.
type Scheduler struct {
	jobs    *JobManager
	enabled atomic.Bool

	mu       sync.Mutex
	interval time.Duration

	logger *slog.Logger
}

// NewScheduler creates a Scheduler driving the given JobManager.
func NewScheduler(jobs *JobManager, enabled bool, interval time.Duration) *Scheduler {
	if interval < time.Second {
		interval = time.Second
	}
	s := &Scheduler{
		jobs:     jobs,
		interval: interval,
		logger:   slog.Default().With("component", "scheduler"),
	}
	s.enabled.Store(enabled)
	return s
}

// Configure updates the enabled flag and, when positive, the tick interval.
func (s *Scheduler) Configure(enabled bool, interval time.Duration) {
	s.enabled.Store(enabled)
	if interval > 0 {
		s.mu.Lock()
		s.interval = interval
		s.mu.Unlock()
	}
	s.logger.Info("scheduler configured", "enabled", enabled, "interval", s.Interval())
}

// Enabled reports whether periodic builds are active.
func (s *Scheduler) Enabled() bool {
	return s.enabled.Load()
}

// Interval returns the current tick interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Run ticks until the context is cancelled. Each enabled tick starts an
// incremental build with the job manager's current defaults; a build already
// in flight is skipped silently.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler loop started", "enabled", s.Enabled(), "interval", s.Interval())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler loop stopped")
			return
		case <-time.After(s.Interval()):
		}

		if !s.enabled.Load() {
			continue
		}
		dataset, _ := s.jobs.Defaults()
		if dataset == "" {
			continue
		}
		if err := s.jobs.Start("", 0, true); err != nil {
			if errors.Is(err, apperrors.ErrBuildRunning) {
				continue
			}
			s.logger.Error("scheduled build failed to start", "error", err)
		}
	}
}
