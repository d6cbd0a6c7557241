package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"inference-task-worker/internal/blob"
	"inference-task-worker/internal/entity"
	"inference-task-worker/internal/inference"
	"inference-task-worker/internal/pipeline"
	"inference-task-worker/internal/repository/postgresql"
)

type ExecutorConfig struct {
	Bucket       string
	BlobTimeout  time.Duration
	ModelTimeout time.Duration
}

// Executor runs the per-task pipeline: claim, metadata lookup, artifact
// fetch, preprocessing, inference, output write and job counting.
type Executor struct {
	reconciler *Reconciler
	index      MetadataIndex
	blobs      BlobStore
	pre        Preprocessor
	model      inference.Model
	outputs    OutputWriter
	counters   JobCounters
	notifier   Notifier
	cfg        ExecutorConfig
}

func NewExecutor(
	reconciler *Reconciler,
	index MetadataIndex,
	blobs BlobStore,
	pre Preprocessor,
	model inference.Model,
	outputs OutputWriter,
	counters JobCounters,
	notifier Notifier,
	cfg ExecutorConfig,
) *Executor {
	return &Executor{
		reconciler: reconciler,
		index:      index,
		blobs:      blobs,
		pre:        pre,
		model:      model,
		outputs:    outputs,
		counters:   counters,
		notifier:   notifier,
		cfg:        cfg,
	}
}

// Execute processes one task and reports whether it succeeded.
//
// A PENDING task is claimed first and task reflects the claim afterwards.
// A task that cannot be claimed yields ErrNotClaimed and no status write.
// Every other fault marks the task FAILED and is returned for logging.
// On success the task is marked COMPLETED; removing it from the queue is
// left to the caller.
func (e *Executor) Execute(ctx context.Context, task *entity.Task) (bool, error) {
	if task.Status == entity.StatusPending {
		if err := e.reconciler.Claim(ctx, task.TaskID); err != nil {
			return false, fmt.Errorf("%w: %w", ErrNotClaimed, err)
		}
		task.Status = entity.StatusInProgress
		task.Attempts++
	}

	if err := e.run(ctx, task); err != nil {
		if serr := e.reconciler.SetStatus(ctx, task.TaskID, entity.StatusFailed, err); serr != nil {
			slog.Error("mark task failed", "task_id", task.TaskID, "error", serr)
		}
		return false, err
	}

	if err := e.reconciler.SetStatus(ctx, task.TaskID, entity.StatusCompleted, nil); err != nil {
		slog.Warn("mark task completed", "task_id", task.TaskID, "error", err)
	}
	return true, nil
}

func (e *Executor) run(ctx context.Context, task *entity.Task) error {
	metas, err := e.index.QueryByIndex(ctx, postgresql.SrcIndex, task.ImageID)
	if err != nil {
		return fmt.Errorf("%w: query metadata: %w", ErrStoreUnavailable, err)
	}
	if len(metas) == 0 {
		return fmt.Errorf("%w: image_id=%s", ErrMetadataNotFound, task.ImageID)
	}
	meta := metas[0]

	key := task.ArtifactKey()
	raw, err := e.fetch(ctx, key)
	if err != nil {
		return err
	}

	input, err := e.pre.Build(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}

	probs, err := e.predict(ctx, input)
	if err != nil {
		return err
	}

	rec := &entity.OutputRecord{
		ReaderTestID: task.ReaderTestID,
		TaskID:       task.TaskID,
		ImageID:      key,
		Result:       probs,
		Meta:         meta.Meta,
	}
	if err := e.outputs.Set(ctx, rec); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}

	done, err := e.counters.IncrementAndCheck(ctx, task.ReaderTestID, task.TaskID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCounter, err)
	}
	if done {
		slog.Info("reader test done", "reader_test_id", task.ReaderTestID)
		// The count already crossed; a lost notification is not a task failure.
		if err := e.notifier.JobDone(ctx, task.ReaderTestID); err != nil {
			slog.Error("notify reader test done", "reader_test_id", task.ReaderTestID, "error", err)
		}
	}
	return nil
}

func (e *Executor) fetch(ctx context.Context, key string) ([]byte, error) {
	if e.cfg.BlobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.BlobTimeout)
		defer cancel()
	}

	raw, err := e.blobs.GetObject(ctx, e.cfg.Bucket, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", ErrBlobNotFound, key, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrBlobFetch, key, err)
	}
	return raw, nil
}

func (e *Executor) predict(ctx context.Context, input pipeline.Tensor) ([][]float64, error) {
	if e.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ModelTimeout)
		defer cancel()
	}

	logits, err := e.model.Predict(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: model %s: %w", ErrInference, e.model.Name(), err)
	}
	probs, err := pipeline.Probabilities(logits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	return probs, nil
}
