package inference

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTensor(t *testing.T) {
	tensor := NewTensor(1, 13, 13, 3, 85)
	assert.Equal(t, []int64{1, 13, 13, 3, 85}, tensor.Shape)
	assert.Len(t, tensor.Data, 13*13*3*85)
	assert.Equal(t, "[1 13 13 3 85]", tensor.String())
}

func TestElementCount(t *testing.T) {
	assert.Equal(t, 1, ElementCount(nil), "scalar")
	assert.Equal(t, 24, ElementCount([]int64{2, 3, 4}))
	assert.Equal(t, 0, ElementCount([]int64{-1, 3}), "dynamic dimensions have no fixed size")
}

func TestRunnerFunc(t *testing.T) {
	var got []float32
	var r Runner = RunnerFunc(func(_ context.Context, input []float32) ([]Tensor, error) {
		got = input
		return []Tensor{NewTensor(1)}, nil
	})

	out, err := r.Run(context.Background(), []float32{1, 2})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, []float32{1, 2}, got)
}
