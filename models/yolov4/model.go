// Package yolov4 - YOLOv4 detection heads and output decoding.
package yolov4

import (
	"github.com/pkg/errors"
)

var (
	// ErrConfiguration is returned when the model cannot be constructed from its settings.
	ErrConfiguration = errors.New("invalid yolov4 configuration")
	// ErrTensorShapeMismatch is returned when inference outputs do not match the configured scales.
	ErrTensorShapeMismatch = errors.New("tensor shape mismatch")
)

// Reference values for the COCO-trained YOLOv4 export.
const (
	DefaultInputSize      = 416
	DefaultNumClasses     = 80
	DefaultScoreThreshold = 0.25
	DefaultNMSThreshold   = 0.213
)

// Options configures a YOLOv4 model.
type Options struct {
	// InputWidth is the model input width in pixels.
	InputWidth int
	// InputHeight is the model input height in pixels.
	InputHeight int
	// NumClasses is the number of classes the model predicts.
	NumClasses int
	// Scales are the detection heads in output order. Nil selects DefaultScales.
	Scales []Scale
}

// DefaultOptions returns the options of the 416x416 COCO model.
func DefaultOptions() Options {
	return Options{
		InputWidth:  DefaultInputSize,
		InputHeight: DefaultInputSize,
		NumClasses:  DefaultNumClasses,
	}
}

// Model holds the immutable decoding parameters of a YOLOv4 network. A Model is read-only after
// construction and may be shared between goroutines.
type Model struct {
	inputWidth  int
	inputHeight int
	numClasses  int
	scales      []Scale
	labels      []string
}

// NewModel validates the options against the label list and builds a Model.
//
// Arguments:
//   - opts: The model options.
//   - labels: One human-readable name per class, index aligned with the class index.
//
// Returns:
//   - *Model: The model.
//   - error: ErrConfiguration (wrapped) if the options or labels are inconsistent.
func NewModel(opts Options, labels []string) (*Model, error) {
	if opts.InputWidth <= 0 || opts.InputHeight <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "input size %dx%d", opts.InputWidth, opts.InputHeight)
	}
	if opts.NumClasses <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "class count %d", opts.NumClasses)
	}
	if len(labels) != opts.NumClasses {
		return nil, errors.Wrapf(ErrConfiguration, "%d labels for %d classes", len(labels), opts.NumClasses)
	}

	scales := opts.Scales
	if scales == nil {
		if opts.InputWidth != opts.InputHeight {
			return nil, errors.Wrapf(ErrConfiguration,
				"default scales need a square input, got %dx%d", opts.InputWidth, opts.InputHeight)
		}
		var err error
		if scales, err = DefaultScales(opts.InputWidth, opts.NumClasses); err != nil {
			return nil, err
		}
	}
	if len(scales) == 0 {
		return nil, errors.Wrap(ErrConfiguration, "no detection scales")
	}

	owned := make([]Scale, len(scales))
	for i, s := range scales {
		if err := s.Validate(); err != nil {
			return nil, errors.Wrapf(err, "scale %d", i)
		}
		if s.Features != BoxFeatures+opts.NumClasses {
			return nil, errors.Wrapf(ErrConfiguration,
				"scale %d has %d features, want %d", i, s.Features, BoxFeatures+opts.NumClasses)
		}
		s.Anchors = append([][2]float32(nil), s.Anchors...)
		owned[i] = s
	}

	return &Model{
		inputWidth:  opts.InputWidth,
		inputHeight: opts.InputHeight,
		numClasses:  opts.NumClasses,
		scales:      owned,
		labels:      append([]string(nil), labels...),
	}, nil
}

// InputSize returns the model input width and height.
func (m *Model) InputSize() (int, int) { return m.inputWidth, m.inputHeight }

// NumClasses returns the number of classes.
func (m *Model) NumClasses() int { return m.numClasses }

// Scales returns a copy of the detection heads in output order.
func (m *Model) Scales() []Scale {
	out := make([]Scale, len(m.scales))
	for i, s := range m.scales {
		s.Anchors = append([][2]float32(nil), s.Anchors...)
		out[i] = s
	}
	return out
}

// Label returns the name of a class, or an empty string if the index is out of range.
func (m *Model) Label(class int) string {
	if class < 0 || class >= len(m.labels) {
		return ""
	}
	return m.labels[class]
}

// Labels returns a copy of the class names.
func (m *Model) Labels() []string {
	return append([]string(nil), m.labels...)
}
