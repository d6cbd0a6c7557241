package entity

import (
	"encoding/json"
	"strings"
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusCompleted  TaskStatus = "COMPLETED"
	StatusFailed     TaskStatus = "FAILED"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Task is one queued inference request. ImageID is a path whose last
// segment is the artifact key in blob storage.
type Task struct {
	TaskID       string     `json:"task_id"`
	ImageID      string     `json:"image_id"`
	ReaderTestID string     `json:"reader_test_id"`
	Status       TaskStatus `json:"status"`
	Attempts     int        `json:"attempts"`
	LastError    *string    `json:"last_error,omitempty"`
	EnqueuedAt   time.Time  `json:"enqueued_at"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ArtifactKey returns the final path segment of ImageID.
func (t *Task) ArtifactKey() string {
	return ArtifactKey(t.ImageID)
}

func ArtifactKey(imageID string) string {
	if i := strings.LastIndex(imageID, "/"); i >= 0 {
		return imageID[i+1:]
	}
	return imageID
}

type PatientMeta struct {
	ID       string          `json:"id"`
	ImageSrc string          `json:"image_src"`
	Meta     json.RawMessage `json:"meta"`
}

type OutputRecord struct {
	ReaderTestID string          `json:"reader_test_id"`
	TaskID       string          `json:"task_id"`
	ImageID      string          `json:"image_id"`
	Result       [][]float64     `json:"result"`
	Meta         json.RawMessage `json:"meta"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
