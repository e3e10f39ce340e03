// Package images - Frame geometry, letterbox padding and tensor normalization.
package images

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidDimensions is returned when a frame or target size is zero, negative, or does not
// match the length of the pixel buffer.
var ErrInvalidDimensions = errors.New("invalid dimensions")

// Channels is the number of interleaved channels in every frame buffer.
const Channels = 3

// ColorOrder is the channel order of an interleaved 8-bit pixel buffer.
type ColorOrder int

const (
	// ColorOrderRGB stores pixels as R, G, B.
	ColorOrderRGB ColorOrder = iota
	// ColorOrderBGR stores pixels as B, G, R (OpenCV and most capture devices).
	ColorOrderBGR
)

// String returns the lowercase name of the color order.
func (o ColorOrder) String() string {
	switch o {
	case ColorOrderRGB:
		return "rgb"
	case ColorOrderBGR:
		return "bgr"
	default:
		return fmt.Sprintf("ColorOrder(%d)", int(o))
	}
}

// ParseColorOrder parses "rgb" or "bgr".
func ParseColorOrder(s string) (ColorOrder, error) {
	switch s {
	case "rgb", "RGB":
		return ColorOrderRGB, nil
	case "bgr", "BGR":
		return ColorOrderBGR, nil
	default:
		return 0, fmt.Errorf("unknown color order %q", s)
	}
}

// Frame is a single decoded video frame in HWC layout.
type Frame struct {
	// Data holds Width*Height*3 bytes, row-major, channels interleaved.
	Data []byte
	// Width of the frame in pixels.
	Width int
	// Height of the frame in pixels.
	Height int
	// Order of the channels in Data.
	Order ColorOrder
}

// Validate checks that the frame has positive dimensions and a buffer large enough to hold them.
//
// Returns:
//   - error: ErrInvalidDimensions (wrapped) when the frame cannot be processed.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return errors.Wrapf(ErrInvalidDimensions, "frame size %dx%d", f.Width, f.Height)
	}
	if need := f.Width * f.Height * Channels; len(f.Data) < need {
		return errors.Wrapf(ErrInvalidDimensions, "frame buffer holds %d bytes, needs %d", len(f.Data), need)
	}
	return nil
}
