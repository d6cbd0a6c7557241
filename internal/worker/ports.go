package worker

import (
	"context"
	"time"

	"inference-task-worker/internal/entity"
	"inference-task-worker/internal/pipeline"
)

// TaskQueue is the queue collection of the task store
// (implementation: postgresql.TaskRepository).
type TaskQueue interface {
	GetPending(ctx context.Context) (*entity.Task, error)
	ClaimNext(ctx context.Context) (*entity.Task, error)
	Claim(ctx context.Context, taskID string) error
	UpdateStatus(ctx context.Context, taskID string, status entity.TaskStatus, cause error) error
	Delete(ctx context.Context, taskID string) error
	Requeue(ctx context.Context, taskID string, maxAttempts int) (entity.TaskStatus, error)
}

type MetadataIndex interface {
	QueryByIndex(ctx context.Context, index, key string) ([]entity.PatientMeta, error)
}

type BlobStore interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

type OutputWriter interface {
	Set(ctx context.Context, rec *entity.OutputRecord) error
}

// JobCounters counts completed tasks per reader test. IncrementAndCheck
// reports true exactly once, on the increment that reaches the total.
// Counting the same task twice must not move the counter.
type JobCounters interface {
	IncrementAndCheck(ctx context.Context, readerTestID, taskID string) (bool, error)
}

type Notifier interface {
	JobDone(ctx context.Context, readerTestID string) error
}

// Preprocessor turns raw artifact bytes into the model input tensor.
type Preprocessor interface {
	Build(raw []byte) (pipeline.Tensor, error)
}

type StaleRequeuer interface {
	RequeueStale(ctx context.Context, olderThan time.Time, limit, maxAttempts int) (int64, error)
	PurgeCompleted(ctx context.Context, olderThan time.Time) (int64, error)
}
