package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"inference-task-worker/internal/entity"
	"inference-task-worker/internal/repository/postgresql"
)

// Reconciler owns every status transition of a queued task.
// Store writes are retried with exponential backoff; a missing or
// already-claimed task is never retried.
type Reconciler struct {
	queue       TaskQueue
	maxAttempts int
	retries     uint64
	newBackOff  func() backoff.BackOff
}

type ReconcilerOption func(*Reconciler)

// WithRetries caps how many times a failed store write is retried.
func WithRetries(n uint64) ReconcilerOption {
	return func(r *Reconciler) { r.retries = n }
}

func WithBackOff(fn func() backoff.BackOff) ReconcilerOption {
	return func(r *Reconciler) { r.newBackOff = fn }
}

// NewReconciler builds a Reconciler. maxAttempts bounds how often a task
// is requeued after a failure; 0 requeues forever.
func NewReconciler(queue TaskQueue, maxAttempts int, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		queue:       queue,
		maxAttempts: maxAttempts,
		retries:     3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Claim moves a PENDING task to IN_PROGRESS. It fails with
// postgresql.ErrNotClaimable if the task is no longer PENDING.
func (r *Reconciler) Claim(ctx context.Context, taskID string) error {
	return r.retry(ctx, func() error {
		return r.queue.Claim(ctx, taskID)
	})
}

// SetStatus is an idempotent point update of the task status.
func (r *Reconciler) SetStatus(ctx context.Context, taskID string, status entity.TaskStatus, cause error) error {
	if err := r.retry(ctx, func() error {
		return r.queue.UpdateStatus(ctx, taskID, status, cause)
	}); err != nil {
		return fmt.Errorf("set status %s: %w", status, err)
	}
	return nil
}

// FinalizeSuccess removes a completed task from the queue. Removing a task
// that is already gone succeeds. Job counters are not touched.
func (r *Reconciler) FinalizeSuccess(ctx context.Context, taskID string) error {
	if err := r.retry(ctx, func() error {
		return r.queue.Delete(ctx, taskID)
	}); err != nil {
		return fmt.Errorf("finalize success: %w", err)
	}
	return nil
}

// FinalizeFailure puts a failed task back to PENDING. Once the task has
// used its attempts it stays FAILED. The resulting status is returned.
func (r *Reconciler) FinalizeFailure(ctx context.Context, taskID string) (entity.TaskStatus, error) {
	var status entity.TaskStatus
	err := r.retry(ctx, func() error {
		var err error
		status, err = r.queue.Requeue(ctx, taskID, r.maxAttempts)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("finalize failure: %w", err)
	}
	return status, nil
}

func (r *Reconciler) retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.retries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if errors.Is(err, postgresql.ErrNotFound) || errors.Is(err, postgresql.ErrNotClaimable) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
