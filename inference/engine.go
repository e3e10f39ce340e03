// Package inference - Inference engine contract between the detector and a model runtime.
package inference

import (
	"context"
	"fmt"
)

// Tensor is a dense float32 output tensor copied out of the runtime.
type Tensor struct {
	// Shape lists the dimensions, outermost first.
	Shape []int64
	// Data holds the values in row-major order.
	Data []float32
}

// NewTensor creates a zeroed tensor with the given shape.
func NewTensor(shape ...int64) Tensor {
	return Tensor{
		Shape: append([]int64(nil), shape...),
		Data:  make([]float32, ElementCount(shape)),
	}
}

// ElementCount returns the product of the dimensions, or 0 if any dimension is negative.
func ElementCount(shape []int64) int {
	n := int64(1)
	for _, d := range shape {
		if d < 0 {
			return 0
		}
		n *= d
	}
	return int(n)
}

// String returns a compact description such as "[1 52 52 3 85]".
func (t Tensor) String() string {
	return fmt.Sprint(t.Shape)
}

// Runner executes a model on a single preprocessed input.
//
// Run blocks until inference completes. The input is the normalized NHWC frame; the returned
// tensors are the model outputs in the order the model declares them. Implementations are not
// required to be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, input []float32) ([]Tensor, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, input []float32) ([]Tensor, error)

// Run calls f(ctx, input).
func (f RunnerFunc) Run(ctx context.Context, input []float32) ([]Tensor, error) {
	return f(ctx, input)
}
