package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"inference-task-worker/internal/entity"
	"inference-task-worker/internal/repository/postgresql"
)

var (
	ErrNotFound       = postgresql.ErrNotFound
	ErrConflict       = postgresql.ErrDuplicateKey
	ErrInvalidRequest = errors.New("invalid request")
)

// Port of the queue collection (implementation: postgresql.TaskRepository).
type TaskRepository interface {
	Enqueue(ctx context.Context, task *entity.Task) error
	Get(ctx context.Context, taskID string) (*entity.Task, error)
	ResetFailed(ctx context.Context, taskID string) error
}

type OutputReader interface {
	GetByTaskID(ctx context.Context, taskID string) (*entity.OutputRecord, error)
}

// JobTotals is the producer side of the reader test counters.
type JobTotals interface {
	SetTotal(ctx context.Context, readerTestID string, total int) (bool, error)
	Progress(ctx context.Context, readerTestID string) (*entity.ReaderTest, error)
}

type Notifier interface {
	JobDone(ctx context.Context, readerTestID string) error
}

// TaskService is the producer and operator surface over the task store.
type TaskService struct {
	tasks    TaskRepository
	outputs  OutputReader
	totals   JobTotals
	notifier Notifier
}

func NewTaskService(tasks TaskRepository, outputs OutputReader, totals JobTotals, notifier Notifier) *TaskService {
	return &TaskService{tasks: tasks, outputs: outputs, totals: totals, notifier: notifier}
}

type CreateTaskRequest struct {
	TaskID       string
	ImageID      string
	ReaderTestID string
}

func (s *TaskService) CreateTask(ctx context.Context, req CreateTaskRequest) (string, error) {
	req.ImageID = strings.TrimSpace(req.ImageID)
	req.ReaderTestID = strings.TrimSpace(req.ReaderTestID)
	if req.ImageID == "" {
		return "", fmt.Errorf("%w: image_id is required", ErrInvalidRequest)
	}
	if req.ReaderTestID == "" {
		return "", fmt.Errorf("%w: reader_test_id is required", ErrInvalidRequest)
	}
	if entity.ArtifactKey(req.ImageID) == "" {
		return "", fmt.Errorf("%w: image_id must end with an artifact name", ErrInvalidRequest)
	}
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}

	task := &entity.Task{
		TaskID:       req.TaskID,
		ImageID:      req.ImageID,
		ReaderTestID: req.ReaderTestID,
		Status:       entity.StatusPending,
	}
	if err := s.tasks.Enqueue(ctx, task); err != nil {
		return "", err
	}
	return task.TaskID, nil
}

// TaskView is what callers see of a task: the queue row while it is
// queued, or COMPLETED once only its output record remains.
type TaskView struct {
	TaskID       string            `json:"task_id"`
	ReaderTestID string            `json:"reader_test_id"`
	ImageID      string            `json:"image_id"`
	Status       entity.TaskStatus `json:"status"`
	Attempts     int               `json:"attempts"`
	LastError    *string           `json:"last_error,omitempty"`
}

func (s *TaskService) GetTask(ctx context.Context, taskID string) (*TaskView, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err == nil {
		return &TaskView{
			TaskID:       task.TaskID,
			ReaderTestID: task.ReaderTestID,
			ImageID:      task.ImageID,
			Status:       task.Status,
			Attempts:     task.Attempts,
			LastError:    task.LastError,
		}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	out, err := s.outputs.GetByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &TaskView{
		TaskID:       out.TaskID,
		ReaderTestID: out.ReaderTestID,
		ImageID:      out.ImageID,
		Status:       entity.StatusCompleted,
	}, nil
}

// RetryTask gives a terminally FAILED task a fresh attempt budget.
func (s *TaskService) RetryTask(ctx context.Context, taskID string) error {
	return s.tasks.ResetFailed(ctx, taskID)
}

// SetReaderTestTotal registers the task count of a reader test. If the
// tasks already processed complete it, the job-done signal is sent here.
func (s *TaskService) SetReaderTestTotal(ctx context.Context, readerTestID string, total int) (*entity.ReaderTest, error) {
	if total < 0 {
		return nil, fmt.Errorf("%w: total_count must be >= 0", ErrInvalidRequest)
	}

	done, err := s.totals.SetTotal(ctx, readerTestID, total)
	if err != nil {
		return nil, err
	}
	if done {
		if err := s.notifier.JobDone(ctx, readerTestID); err != nil {
			slog.Error("notify reader test done", "reader_test_id", readerTestID, "error", err)
		}
	}
	return s.totals.Progress(ctx, readerTestID)
}

func (s *TaskService) GetReaderTest(ctx context.Context, readerTestID string) (*entity.ReaderTest, error) {
	return s.totals.Progress(ctx, readerTestID)
}
