// Package inference invokes the classification model.
package inference

import (
	"context"
	"errors"

	"inference-task-worker/internal/pipeline"
)

var (
	ErrModelUnavailable = errors.New("model server unavailable")
	ErrInvalidResponse  = errors.New("model server returned invalid response")
)

// Model maps an input tensor to raw logits.
type Model interface {
	Name() string
	Predict(ctx context.Context, input pipeline.Tensor) (pipeline.Tensor, error)
}
