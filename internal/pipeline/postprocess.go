package pipeline

import (
	"fmt"
	"math"
)

// NanToZero returns a copy of t with NaN and infinite values replaced by zero.
func NanToZero(t Tensor) Tensor {
	out := Tensor{Shape: append([]int(nil), t.Shape...), Data: make([]float32, len(t.Data))}
	for i, v := range t.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		out.Data[i] = v
	}
	return out
}

// Softmax normalizes logits over the class axis. A [C] tensor is treated
// as a single row; [N, C] yields N rows.
func Softmax(t Tensor) ([][]float64, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var rows, classes int
	switch len(t.Shape) {
	case 1:
		rows, classes = 1, t.Shape[0]
	case 2:
		rows, classes = t.Shape[0], t.Shape[1]
	default:
		return nil, fmt.Errorf("%w: logits must be [N, C], got %v", ErrShape, t.Shape)
	}

	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		row := t.Data[r*classes : (r+1)*classes]

		peak := math.Inf(-1)
		for _, v := range row {
			peak = math.Max(peak, float64(v))
		}

		probs := make([]float64, classes)
		var sum float64
		for i, v := range row {
			probs[i] = math.Exp(float64(v) - peak)
			sum += probs[i]
		}
		for i := range probs {
			probs[i] /= sum
		}
		out[r] = probs
	}
	return out, nil
}

// Probabilities zeroes non-finite logits and applies Softmax.
func Probabilities(logits Tensor) ([][]float64, error) {
	return Softmax(NanToZero(logits))
}
