package worker

import (
	"context"
	"log/slog"
	"time"
)

// Reaper returns tasks whose worker died mid-run to the queue, retries
// FAILED tasks whose requeue never happened and clears COMPLETED rows
// whose removal failed. Tasks out of attempts are left FAILED.
type Reaper struct {
	store       StaleRequeuer
	lease       time.Duration
	interval    time.Duration
	maxAttempts int
	batch       int
	now         func() time.Time
}

func NewReaper(store StaleRequeuer, lease, interval time.Duration, maxAttempts int) *Reaper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reaper{
		store:       store,
		lease:       lease,
		interval:    interval,
		maxAttempts: maxAttempts,
		batch:       100,
		now:         time.Now,
	}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReapOnce(ctx)
		}
	}
}

// ReapOnce runs a single sweep and reports how many stale tasks it moved.
func (r *Reaper) ReapOnce(ctx context.Context) int64 {
	cutoff := r.now().Add(-r.lease)

	n, err := r.store.RequeueStale(ctx, cutoff, r.batch, r.maxAttempts)
	if err != nil {
		slog.Error("requeue stale tasks", "error", err)
	} else if n > 0 {
		slog.Warn("swept stale tasks", "count", n)
	}

	purged, err := r.store.PurgeCompleted(ctx, cutoff)
	if err != nil {
		slog.Error("purge completed tasks", "error", err)
	} else if purged > 0 {
		slog.Info("purged completed tasks", "count", purged)
	}
	return n
}
