package worker

import (
	"context"
	"fmt"

	"inference-task-worker/internal/config"
	"inference-task-worker/internal/entity"
)

// Fetcher selects the next task to run.
//
// In atomic mode the task comes back already IN_PROGRESS. In read mode it
// is returned still PENDING and the executor claims it.
type Fetcher struct {
	queue TaskQueue
	mode  string
}

func NewFetcher(queue TaskQueue, mode string) *Fetcher {
	if mode == "" {
		mode = config.ClaimModeAtomic
	}
	return &Fetcher{queue: queue, mode: mode}
}

// FetchPending returns at most one task, or nil when the queue is empty.
func (f *Fetcher) FetchPending(ctx context.Context) (*entity.Task, error) {
	var (
		task *entity.Task
		err  error
	)
	if f.mode == config.ClaimModeRead {
		task, err = f.queue.GetPending(ctx)
	} else {
		task, err = f.queue.ClaimNext(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return task, nil
}
