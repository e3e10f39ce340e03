package images

import (
	"github.com/pkg/errors"
)

// Normalizer converts padded 8-bit canvases into float32 model input in HWC layout, RGB order,
// scaled to [0, 1]. The output buffer is reused between calls; it is only valid until the next
// call to Normalize.
type Normalizer struct {
	buf []float32
}

// NewNormalizer creates a Normalizer with an output buffer preallocated for width x height.
func NewNormalizer(width, height int) *Normalizer {
	n := width * height * Channels
	if n < 0 {
		n = 0
	}
	return &Normalizer{buf: make([]float32, n)}
}

// Normalize converts a padded canvas into the model's input tensor data.
//
// Arguments:
//   - padded: width*height*3 interleaved bytes.
//   - width, height: The canvas size.
//   - order: The channel order of padded. BGR input is swapped to RGB.
//
// Returns:
//   - []float32: width*height*3 values in [0, 1], HWC, RGB.
//   - error: ErrInvalidDimensions (wrapped) if padded is too short.
func (n *Normalizer) Normalize(padded []byte, width, height int, order ColorOrder) ([]float32, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrInvalidDimensions, "canvas size %dx%d", width, height)
	}
	size := width * height * Channels
	if len(padded) < size {
		return nil, errors.Wrapf(ErrInvalidDimensions, "canvas holds %d bytes, needs %d", len(padded), size)
	}
	if cap(n.buf) < size {
		n.buf = make([]float32, size)
	}
	out := n.buf[:size]

	const scale = float32(1) / 255
	if order == ColorOrderBGR {
		for i := 0; i < size; i += Channels {
			out[i+0] = float32(padded[i+2]) * scale
			out[i+1] = float32(padded[i+1]) * scale
			out[i+2] = float32(padded[i+0]) * scale
		}
		return out, nil
	}

	for i := 0; i < size; i++ {
		out[i] = float32(padded[i]) * scale
	}
	return out, nil
}
