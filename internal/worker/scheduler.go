package worker

import (
	"context"
	"log/slog"
	"time"
)

// RunOncer is one invocation of the run loop.
type RunOncer interface {
	RunOnce(ctx context.Context) Outcome
}

// Scheduler invokes the run loop repeatedly with one cycle in flight.
// After a success it goes again at once; otherwise it waits for the
// poll interval.
type Scheduler struct {
	runner   RunOncer
	interval time.Duration
}

func NewScheduler(runner RunOncer, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{runner: runner, interval: interval}
}

func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler started", "poll_interval", s.interval.String())

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-timer.C:
		}

		next := s.interval
		if s.runner.RunOnce(ctx) == OutcomeSucceeded {
			next = 0
		}
		timer.Reset(next)
	}
}
