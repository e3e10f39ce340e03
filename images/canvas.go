package images

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// PadFill is the neutral gray used for letterbox padding.
const PadFill uint8 = 128

// Filter selects the resampling algorithm used when scaling a frame into the canvas.
type Filter int

const (
	// FilterBilinear uses bilinear interpolation (matches the OpenCV default).
	FilterBilinear Filter = iota
	// FilterNearest uses nearest-neighbor interpolation.
	FilterNearest
	// FilterBicubic uses bicubic interpolation.
	FilterBicubic
	// FilterMitchell uses the Mitchell-Netravali cubic filter.
	FilterMitchell
	// FilterLanczos uses Lanczos resampling with a=3.
	FilterLanczos
)

// ParseFilter parses a filter name as used in configuration files.
func ParseFilter(s string) (Filter, error) {
	switch s {
	case "", "bilinear":
		return FilterBilinear, nil
	case "nearest":
		return FilterNearest, nil
	case "bicubic":
		return FilterBicubic, nil
	case "mitchell":
		return FilterMitchell, nil
	case "lanczos":
		return FilterLanczos, nil
	default:
		return 0, fmt.Errorf("unknown resample filter %q", s)
	}
}

func (f Filter) interpolation() resize.InterpolationFunction {
	switch f {
	case FilterNearest:
		return resize.NearestNeighbor
	case FilterBicubic:
		return resize.Bicubic
	case FilterMitchell:
		return resize.MitchellNetravali
	case FilterLanczos:
		return resize.Lanczos3
	default:
		return resize.Bilinear
	}
}

// Padder composes letterboxed model inputs. The canvas and source staging image are reused
// between frames, so a Padder must not be shared between goroutines and the returned slice is
// only valid until the next call to Pad.
type Padder struct {
	// Fill is the byte written to every channel of the padding area.
	Fill uint8
	// Filter is the resampling algorithm used to scale the frame.
	Filter Filter

	canvas []byte
	src    *image.RGBA
}

// NewPadder creates a Padder that fills with PadFill.
//
// Arguments:
//   - filter: The resampling filter to use when scaling frames.
//
// Returns:
//   - *Padder: A padder with empty buffers; they grow on first use.
func NewPadder(filter Filter) *Padder {
	return &Padder{
		Fill:   PadFill,
		Filter: filter,
	}
}

// Pad resizes the frame to the letterbox's scaled size and copies it into a gray canvas of the
// letterbox's target size at offset (PadX, PadY). Channel order is preserved.
//
// Arguments:
//   - frame: The source frame; its size must match the letterbox source size.
//   - lb: The letterbox computed for this frame.
//
// Returns:
//   - []byte: TargetWidth*TargetHeight*3 bytes in the frame's channel order.
//   - error: ErrInvalidDimensions (wrapped) if the frame and letterbox disagree.
func (p *Padder) Pad(frame Frame, lb Letterbox) ([]byte, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if frame.Width != lb.SourceWidth || frame.Height != lb.SourceHeight {
		return nil, errors.Wrapf(ErrInvalidDimensions,
			"letterbox computed for %dx%d, frame is %dx%d",
			lb.SourceWidth, lb.SourceHeight, frame.Width, frame.Height)
	}

	size := lb.TargetWidth * lb.TargetHeight * Channels
	if cap(p.canvas) < size {
		p.canvas = make([]byte, size)
	}
	canvas := p.canvas[:size]
	for i := range canvas {
		canvas[i] = p.Fill
	}

	nw, nh := lb.ScaledWidth, lb.ScaledHeight
	if nw <= 0 || nh <= 0 {
		return canvas, nil
	}

	src := p.stage(frame)
	scaled := src
	if nw != frame.Width || nh != frame.Height {
		scaled = asRGBA(resize.Resize(uint(nw), uint(nh), src, p.Filter.interpolation()))
	}

	ox, oy := int(lb.PadX), int(lb.PadY)
	stride := lb.TargetWidth * Channels
	for y := 0; y < nh; y++ {
		in := scaled.Pix[y*scaled.Stride : y*scaled.Stride+nw*4]
		out := canvas[(oy+y)*stride+ox*Channels : (oy+y)*stride+(ox+nw)*Channels]
		for x := 0; x < nw; x++ {
			out[x*3+0] = in[x*4+0]
			out[x*3+1] = in[x*4+1]
			out[x*3+2] = in[x*4+2]
		}
	}

	return canvas, nil
}

// stage copies the frame into a reusable RGBA image. The three channels are copied verbatim,
// so BGR frames stay BGR; resampling treats each channel independently.
func (p *Padder) stage(frame Frame) *image.RGBA {
	bounds := image.Rect(0, 0, frame.Width, frame.Height)
	if p.src == nil || p.src.Bounds() != bounds {
		p.src = image.NewRGBA(bounds)
	}
	pix := p.src.Pix
	n := frame.Width * frame.Height
	for i := 0; i < n; i++ {
		pix[i*4+0] = frame.Data[i*3+0]
		pix[i*4+1] = frame.Data[i*3+1]
		pix[i*4+2] = frame.Data[i*3+2]
		pix[i*4+3] = 0xff
	}
	return p.src
}

func asRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
