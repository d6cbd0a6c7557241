package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"inference-task-worker/internal/entity"
	"inference-task-worker/internal/repository/postgresql"
)

// Outcome is the result of one run loop invocation.
type Outcome int

const (
	OutcomeIdle Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
	OutcomeSkipped
	OutcomeStoreError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeStoreError:
		return "store_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Runner drives fetch, execute and reconcile for one task per call.
type Runner struct {
	fetcher    *Fetcher
	executor   *Executor
	reconciler *Reconciler
}

func NewRunner(fetcher *Fetcher, executor *Executor, reconciler *Reconciler) *Runner {
	return &Runner{fetcher: fetcher, executor: executor, reconciler: reconciler}
}

// RunOnce processes at most one task. It never panics and never returns
// an error; faults are logged and turned into status transitions.
func (r *Runner) RunOnce(ctx context.Context) (outcome Outcome) {
	log := slog.With("run_id", uuid.NewString())
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("run loop panic", "panic", rec)
			outcome = OutcomeFailed
		}
	}()

	task, err := r.fetcher.FetchPending(ctx)
	if err != nil {
		log.Error("fetch pending task", "error", err)
		return OutcomeStoreError
	}
	if task == nil {
		return OutcomeIdle
	}

	log = log.With("task_id", task.TaskID, "reader_test_id", task.ReaderTestID)
	start := time.Now()

	ok, err := r.execute(ctx, task)
	if errors.Is(err, ErrNotClaimed) {
		if errors.Is(err, postgresql.ErrNotClaimable) {
			log.Info("task taken by another worker")
			return OutcomeSkipped
		}
		log.Error("claim task", "error", err)
		return OutcomeStoreError
	}

	if ok {
		if err := r.reconciler.FinalizeSuccess(ctx, task.TaskID); err != nil {
			log.Error("remove completed task", "error", err)
		}
		log.Info("task completed", "duration_ms", time.Since(start).Milliseconds())
		return OutcomeSucceeded
	}

	log.Error("task failed",
		"attempt", task.Attempts,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	status, ferr := r.reconciler.FinalizeFailure(ctx, task.TaskID)
	if ferr != nil {
		log.Error("requeue failed task", "error", ferr)
		return OutcomeFailed
	}
	if status == entity.StatusFailed {
		log.Warn("task exhausted its attempts", "status", status)
	}
	return OutcomeFailed
}

func (r *Runner) execute(ctx context.Context, task *entity.Task) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			err = fmt.Errorf("panic: %v", rec)
			if serr := r.reconciler.SetStatus(ctx, task.TaskID, entity.StatusFailed, err); serr != nil {
				slog.Error("mark task failed", "task_id", task.TaskID, "error", serr)
			}
		}
	}()
	return r.executor.Execute(ctx, task)
}
