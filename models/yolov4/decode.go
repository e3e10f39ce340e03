package yolov4

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-ortdetect/images"
	"github.com/nvr-ai/go-ortdetect/inference"
	"github.com/nvr-ai/go-ortdetect/models/postprocess"
)

// Decode converts raw head outputs into candidate boxes in original-frame pixels, grouped by
// class. See DecodeInto.
func (m *Model) Decode(outputs []inference.Tensor, lb images.Letterbox, threshold float32) (postprocess.Partitions, error) {
	p := postprocess.NewPartitions(m.numClasses)
	if err := m.DecodeInto(p, outputs, lb, threshold); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeInto decodes raw head outputs into caller-owned partitions, appending to whatever they
// already hold. Callers reusing partitions across frames should Reset them first.
//
// For every cell and anchor of every scale:
//
//	x = (sigmoid(tx)*xyScale - 0.5*(xyScale-1) + col) * stride
//	y = (sigmoid(ty)*xyScale - 0.5*(xyScale-1) + row) * stride
//	w = exp(tw) * anchorW
//	h = exp(th) * anchorH
//
// The corners are mapped back through the letterbox. Objectness and class probabilities are
// used as emitted by the model (already activated). Anchors whose objectness is below the
// threshold are skipped before any decoding, boxes that are inverted or have a non-positive or
// non-finite area are dropped, and the rest are kept when objectness*max(class) reaches the
// threshold. The class is the first index holding the maximum probability.
//
// Arguments:
//   - dst: Partitions sized for NumClasses.
//   - outputs: One tensor per scale, in scale order.
//   - lb: The letterbox used to build this frame's input.
//   - threshold: The minimum score.
//
// Returns:
//   - error: ErrTensorShapeMismatch (wrapped) if the outputs do not match the scales, in which
//     case dst is left untouched.
func (m *Model) DecodeInto(dst postprocess.Partitions, outputs []inference.Tensor, lb images.Letterbox, threshold float32) error {
	if len(dst) != m.numClasses {
		return errors.Wrapf(ErrConfiguration, "%d partitions for %d classes", len(dst), m.numClasses)
	}
	if err := m.checkOutputs(outputs); err != nil {
		return err
	}

	for i, s := range m.scales {
		decodeScale(dst, s, outputs[i].Data, lb, threshold)
	}
	return nil
}

func (m *Model) checkOutputs(outputs []inference.Tensor) error {
	if len(outputs) != len(m.scales) {
		return errors.Wrapf(ErrTensorShapeMismatch, "got %d outputs, want %d", len(outputs), len(m.scales))
	}
	for i, s := range m.scales {
		want := s.Shape()
		got := outputs[i].Shape
		if len(got) != len(want) {
			return errors.Wrapf(ErrTensorShapeMismatch, "output %d has shape %v, want %v", i, got, want)
		}
		for d := range want {
			if got[d] != want[d] {
				return errors.Wrapf(ErrTensorShapeMismatch, "output %d has shape %v, want %v", i, got, want)
			}
		}
		if len(outputs[i].Data) != s.Size() {
			return errors.Wrapf(ErrTensorShapeMismatch,
				"output %d holds %d values, want %d", i, len(outputs[i].Data), s.Size())
		}
	}
	return nil
}

func decodeScale(dst postprocess.Partitions, s Scale, data []float32, lb images.Letterbox, threshold float32) {
	g, f := s.GridSize, s.Features
	shift := 0.5 * (s.XYScale - 1)

	for row := 0; row < g; row++ {
		for col := 0; col < g; col++ {
			for a := 0; a < s.AnchorsPerCell; a++ {
				off := ((row*g+col)*s.AnchorsPerCell + a) * f
				obj := data[off+4]
				if !(obj >= threshold) { // NaN never passes
					continue
				}

				x := (sigmoid(data[off+0])*s.XYScale - shift + float32(col)) * s.Stride
				y := (sigmoid(data[off+1])*s.XYScale - shift + float32(row)) * s.Stride
				w := math32.Exp(data[off+2]) * s.Anchors[a][0]
				h := math32.Exp(data[off+3]) * s.Anchors[a][1]

				xmin, ymin := lb.ToSource(x-w*0.5, y-h*0.5)
				xmax, ymax := lb.ToSource(x+w*0.5, y+h*0.5)
				rect := images.Rect{XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}
				if !rect.Valid() {
					continue
				}

				class, prob := argmax(data[off+BoxFeatures : off+f])
				score := obj * prob
				if !(score >= threshold) {
					continue
				}

				dst.Add(postprocess.Box{Rect: rect, Score: score, Class: class})
			}
		}
	}
}

// argmax returns the first index holding the largest value.
func argmax(v []float32) (int, float32) {
	best, bestVal := 0, v[0]
	for i := 1; i < len(v); i++ {
		if v[i] > bestVal {
			best, bestVal = i, v[i]
		}
	}
	return best, bestVal
}

func sigmoid(v float32) float32 {
	return 1 / (1 + math32.Exp(-v))
}
