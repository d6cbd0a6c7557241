package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"inference-task-worker/internal/entity"
)

const taskColumns = `task_id, image_id, reader_test_id, status, attempts, last_error, enqueued_at, claimed_at, updated_at`

// TaskRepository is the queue collection of the task store.
// Rows are ordered by seq, the insertion order.
type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

func (r *TaskRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *TaskRepository) Enqueue(ctx context.Context, task *entity.Task) error {
	const q = `
INSERT INTO task_queue (task_id, image_id, reader_test_id, status)
VALUES ($1, $2, $3, 'PENDING')
ON CONFLICT (task_id) DO NOTHING;
`
	tag, err := r.pool.Exec(ctx, q, task.TaskID, task.ImageID, task.ReaderTestID)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateKey
	}
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, taskID string) (*entity.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM task_queue WHERE task_id = $1;`

	task, err := scanTask(r.pool.QueryRow(ctx, q, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// GetPending returns the oldest PENDING task without claiming it,
// or nil when the queue has none.
func (r *TaskRepository) GetPending(ctx context.Context) (*entity.Task, error) {
	q := `SELECT ` + taskColumns + `
FROM task_queue
WHERE status = 'PENDING'
ORDER BY seq
LIMIT 1;`

	task, err := scanTask(r.pool.QueryRow(ctx, q))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pending task: %w", err)
	}
	return task, nil
}

// ClaimNext selects the oldest PENDING task and moves it to IN_PROGRESS in
// one statement. Concurrent callers never receive the same row.
func (r *TaskRepository) ClaimNext(ctx context.Context) (*entity.Task, error) {
	q := `
UPDATE task_queue
SET status = 'IN_PROGRESS', attempts = attempts + 1, claimed_at = NOW(), updated_at = NOW()
WHERE task_id = (
    SELECT task_id FROM task_queue
    WHERE status = 'PENDING'
    ORDER BY seq
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + taskColumns + `;`

	task, err := scanTask(r.pool.QueryRow(ctx, q))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim next task: %w", err)
	}
	return task, nil
}

// Claim moves one task from PENDING to IN_PROGRESS. It fails with
// ErrNotClaimable when the task is gone or held by someone else.
func (r *TaskRepository) Claim(ctx context.Context, taskID string) error {
	const q = `
UPDATE task_queue
SET status = 'IN_PROGRESS', attempts = attempts + 1, claimed_at = NOW(), updated_at = NOW()
WHERE task_id = $1 AND status = 'PENDING';
`
	tag, err := r.pool.Exec(ctx, q, taskID)
	if err != nil {
		return fmt.Errorf("claim task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotClaimable
	}
	return nil
}

// UpdateStatus is a point update of the status field. A non-nil cause is
// stored as last_error.
func (r *TaskRepository) UpdateStatus(ctx context.Context, taskID string, status entity.TaskStatus, cause error) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if cause != nil {
		const q = `UPDATE task_queue SET status=$2, last_error=$3, updated_at=NOW() WHERE task_id=$1;`
		tag, err = r.pool.Exec(ctx, q, taskID, string(status), cause.Error())
	} else {
		const q = `UPDATE task_queue SET status=$2, updated_at=NOW() WHERE task_id=$1;`
		tag, err = r.pool.Exec(ctx, q, taskID, string(status))
	}
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a task from the queue. Deleting an absent task is a no-op.
func (r *TaskRepository) Delete(ctx context.Context, taskID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM task_queue WHERE task_id=$1;`, taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// Requeue puts a failed task back to PENDING. Once attempts reach
// maxAttempts the task stays FAILED; maxAttempts 0 means no limit.
func (r *TaskRepository) Requeue(ctx context.Context, taskID string, maxAttempts int) (entity.TaskStatus, error) {
	const q = `
UPDATE task_queue
SET status = CASE WHEN $2 = 0 OR attempts < $2 THEN 'PENDING' ELSE 'FAILED' END,
    claimed_at = NULL,
    updated_at = NOW()
WHERE task_id = $1
RETURNING status;
`
	var status string
	if err := r.pool.QueryRow(ctx, q, taskID, maxAttempts).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("requeue task: %w", err)
	}
	return entity.TaskStatus(status), nil
}

// RequeueStale sweeps tasks nobody is going to finish: IN_PROGRESS tasks
// claimed before olderThan, and FAILED tasks with attempts left that were
// last touched before olderThan. Tasks with attempts left go back to
// PENDING, the rest become FAILED. maxAttempts 0 means no limit.
func (r *TaskRepository) RequeueStale(ctx context.Context, olderThan time.Time, limit, maxAttempts int) (int64, error) {
	const q = `
UPDATE task_queue
SET status = CASE WHEN $3 = 0 OR attempts < $3 THEN 'PENDING' ELSE 'FAILED' END,
    claimed_at = NULL,
    updated_at = NOW()
WHERE task_id IN (
    SELECT task_id FROM task_queue
    WHERE (status = 'IN_PROGRESS' AND claimed_at < $1)
       OR (status = 'FAILED' AND ($3 = 0 OR attempts < $3) AND updated_at < $1)
    ORDER BY seq
    LIMIT $2
    FOR UPDATE SKIP LOCKED
);
`
	tag, err := r.pool.Exec(ctx, q, olderThan, limit, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("requeue stale tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeCompleted deletes COMPLETED rows last touched before olderThan.
// They are left behind only when the delete after a success failed.
func (r *TaskRepository) PurgeCompleted(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM task_queue WHERE status = 'COMPLETED' AND updated_at < $1;`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge completed tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ResetFailed makes a terminally FAILED task fetchable again with a fresh
// attempt budget.
func (r *TaskRepository) ResetFailed(ctx context.Context, taskID string) error {
	const q = `
UPDATE task_queue
SET status = 'PENDING', attempts = 0, last_error = NULL, claimed_at = NULL, updated_at = NOW()
WHERE task_id = $1 AND status = 'FAILED';
`
	tag, err := r.pool.Exec(ctx, q, taskID)
	if err != nil {
		return fmt.Errorf("reset failed task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTask(row pgx.Row) (*entity.Task, error) {
	var (
		task   entity.Task
		status string
	)
	if err := row.Scan(
		&task.TaskID,
		&task.ImageID,
		&task.ReaderTestID,
		&status,
		&task.Attempts,
		&task.LastError, // NULL => nil
		&task.EnqueuedAt,
		&task.ClaimedAt, // NULL => nil
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	task.Status = entity.TaskStatus(status)
	return &task, nil
}
