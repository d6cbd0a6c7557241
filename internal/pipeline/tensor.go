// Package pipeline turns a raw artifact into model input and model output
// into class probabilities.
package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrDecode = errors.New("decode artifact")
	ErrShape  = errors.New("tensor shape mismatch")
)

// Tensor is a dense row-major float32 array.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// Size is the element count implied by Shape.
func (t Tensor) Size() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t Tensor) Validate() error {
	if len(t.Shape) == 0 {
		return fmt.Errorf("%w: empty shape", ErrShape)
	}
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("%w: non-positive dimension in %v", ErrShape, t.Shape)
		}
	}
	if t.Size() != len(t.Data) {
		return fmt.Errorf("%w: shape %v needs %d values, got %d", ErrShape, t.Shape, t.Size(), len(t.Data))
	}
	return nil
}

// Transpose reorders the axes of t; perm[i] is the source axis of output axis i.
func Transpose(t Tensor, perm []int) (Tensor, error) {
	if err := t.Validate(); err != nil {
		return Tensor{}, err
	}
	rank := len(t.Shape)
	if len(perm) != rank {
		return Tensor{}, fmt.Errorf("%w: permutation %v for rank %d", ErrShape, perm, rank)
	}
	seen := make([]bool, rank)
	for _, p := range perm {
		if p < 0 || p >= rank || seen[p] {
			return Tensor{}, fmt.Errorf("%w: invalid permutation %v", ErrShape, perm)
		}
		seen[p] = true
	}

	srcStrides := strides(t.Shape)
	outShape := make([]int, rank)
	for i, p := range perm {
		outShape[i] = t.Shape[p]
	}

	out := Tensor{Shape: outShape, Data: make([]float32, len(t.Data))}
	idx := make([]int, rank)
	for o := range out.Data {
		src := 0
		for i, p := range perm {
			src += idx[i] * srcStrides[p]
		}
		out.Data[o] = t.Data[src]

		for i := rank - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < outShape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out, nil
}

func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}
