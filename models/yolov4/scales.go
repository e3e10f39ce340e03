package yolov4

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// AnchorsPerCell is the number of anchor boxes predicted by each grid cell.
const AnchorsPerCell = 3

// BoxFeatures is the number of leading per-anchor features: x, y, w, h and objectness.
const BoxFeatures = 5

// Scale describes one detection head. The decoder expects its output tensor to have the shape
// (1, GridSize, GridSize, AnchorsPerCell, Features).
type Scale struct {
	// GridSize is the number of cells along each axis.
	GridSize int
	// AnchorsPerCell is the number of anchors per cell.
	AnchorsPerCell int
	// Features is BoxFeatures plus the number of classes.
	Features int
	// Stride is the number of input pixels covered by one cell.
	Stride float32
	// XYScale stretches the sigmoid of the center offsets so cells can reach their borders.
	XYScale float32
	// Anchors holds the width and height priors, in input pixels, for each anchor.
	Anchors [][2]float32
}

// Shape returns the expected output tensor shape for this scale.
func (s Scale) Shape() []int64 {
	return []int64{1, int64(s.GridSize), int64(s.GridSize), int64(s.AnchorsPerCell), int64(s.Features)}
}

// Size returns the number of float32 values in this scale's output tensor.
func (s Scale) Size() int {
	return s.GridSize * s.GridSize * s.AnchorsPerCell * s.Features
}

// Validate checks the scale for values that would make decoding meaningless.
//
// Returns:
//   - error: ErrConfiguration (wrapped) describing the first problem found.
func (s Scale) Validate() error {
	switch {
	case s.GridSize <= 0:
		return errors.Wrapf(ErrConfiguration, "grid size %d", s.GridSize)
	case s.AnchorsPerCell <= 0:
		return errors.Wrapf(ErrConfiguration, "anchors per cell %d", s.AnchorsPerCell)
	case s.Features <= BoxFeatures:
		return errors.Wrapf(ErrConfiguration, "features per anchor %d, need more than %d", s.Features, BoxFeatures)
	case !(s.Stride > 0) || math32.IsInf(s.Stride, 0):
		return errors.Wrapf(ErrConfiguration, "stride %v", s.Stride)
	case !(s.XYScale > 0) || math32.IsInf(s.XYScale, 0):
		return errors.Wrapf(ErrConfiguration, "xy scale %v", s.XYScale)
	case len(s.Anchors) != s.AnchorsPerCell:
		return errors.Wrapf(ErrConfiguration, "%d anchor pairs for %d anchors per cell", len(s.Anchors), s.AnchorsPerCell)
	}
	for i, a := range s.Anchors {
		if !(a[0] > 0) || !(a[1] > 0) || math32.IsInf(a[0], 0) || math32.IsInf(a[1], 0) {
			return errors.Wrapf(ErrConfiguration, "anchor %d is %vx%v", i, a[0], a[1])
		}
	}
	return nil
}

// Default YOLOv4 head parameters, finest stride first.
var (
	defaultStrides = [3]float32{8, 16, 32}
	defaultXYScale = [3]float32{1.2, 1.1, 1.05}
	defaultAnchors = [3][AnchorsPerCell][2]float32{
		{{12, 16}, {19, 36}, {40, 28}},
		{{36, 75}, {76, 55}, {72, 146}},
		{{142, 110}, {192, 243}, {459, 401}},
	}
)

// DefaultScales returns the three YOLOv4 detection heads for a square input, ordered from the
// finest stride (8) to the coarsest (32). This is also the order the model emits its outputs in.
//
// Arguments:
//   - inputSize: The model input width and height; must be a multiple of 32.
//   - numClasses: The number of classes the model predicts.
//
// Returns:
//   - []Scale: The three scales.
//   - error: ErrConfiguration (wrapped) if the input size or class count is invalid.
func DefaultScales(inputSize, numClasses int) ([]Scale, error) {
	if inputSize <= 0 || inputSize%32 != 0 {
		return nil, errors.Wrapf(ErrConfiguration, "input size %d is not a positive multiple of 32", inputSize)
	}
	if numClasses <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "class count %d", numClasses)
	}

	scales := make([]Scale, len(defaultStrides))
	for i, stride := range defaultStrides {
		anchors := make([][2]float32, AnchorsPerCell)
		copy(anchors, defaultAnchors[i][:])
		scales[i] = Scale{
			GridSize:       inputSize / int(stride),
			AnchorsPerCell: AnchorsPerCell,
			Features:       BoxFeatures + numClasses,
			Stride:         stride,
			XYScale:        defaultXYScale[i],
			Anchors:        anchors,
		}
	}
	return scales, nil
}
