package images

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidFrame(w, h int, c [3]byte) Frame {
	data := make([]byte, w*h*Channels)
	for i := 0; i < len(data); i += Channels {
		copy(data[i:i+3], c[:])
	}
	return Frame{Data: data, Width: w, Height: h, Order: ColorOrderBGR}
}

func pixelAt(buf []byte, width, x, y int) [3]byte {
	i := (y*width + x) * Channels
	return [3]byte{buf[i], buf[i+1], buf[i+2]}
}

// TestPadderCopiesWithoutResize validates that a frame which already fits is copied verbatim at
// the pad offset and the rest of the canvas is gray.
func TestPadderCopiesWithoutResize(t *testing.T) {
	frame := solidFrame(4, 2, [3]byte{10, 20, 30})
	lb, err := ComputeLetterbox(4, 2, 4, 4)
	require.NoError(t, err)
	require.Equal(t, float32(1), lb.PadY)

	p := NewPadder(FilterBilinear)
	canvas, err := p.Pad(frame, lb)
	require.NoError(t, err)
	require.Len(t, canvas, 4*4*Channels)

	gray := [3]byte{PadFill, PadFill, PadFill}
	for x := 0; x < 4; x++ {
		assert.Equal(t, gray, pixelAt(canvas, 4, x, 0), "top padding row")
		assert.Equal(t, [3]byte{10, 20, 30}, pixelAt(canvas, 4, x, 1), "first image row keeps channel order")
		assert.Equal(t, [3]byte{10, 20, 30}, pixelAt(canvas, 4, x, 2), "second image row keeps channel order")
		assert.Equal(t, gray, pixelAt(canvas, 4, x, 3), "bottom padding row")
	}
}

// TestPadderResizes validates downscaling of a solid frame into the centered region.
func TestPadderResizes(t *testing.T) {
	frame := solidFrame(16, 8, [3]byte{200, 100, 50})
	lb, err := ComputeLetterbox(16, 8, 8, 8)
	require.NoError(t, err)
	require.Equal(t, 8, lb.ScaledWidth)
	require.Equal(t, 4, lb.ScaledHeight)
	require.Equal(t, float32(2), lb.PadY)

	for _, f := range []Filter{FilterBilinear, FilterNearest, FilterBicubic, FilterMitchell, FilterLanczos} {
		p := NewPadder(f)
		canvas, err := p.Pad(frame, lb)
		require.NoError(t, err)

		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				px := pixelAt(canvas, 8, x, y)
				if y < 2 || y >= 6 {
					assert.Equal(t, [3]byte{PadFill, PadFill, PadFill}, px, "padding at (%d,%d)", x, y)
					continue
				}
				assert.InDelta(t, 200, int(px[0]), 2, "channel 0 at (%d,%d) filter %d", x, y, f)
				assert.InDelta(t, 100, int(px[1]), 2, "channel 1 at (%d,%d) filter %d", x, y, f)
				assert.InDelta(t, 50, int(px[2]), 2, "channel 2 at (%d,%d) filter %d", x, y, f)
			}
		}
	}
}

// TestPadderDegenerateScale ensures a frame that scales to zero rows yields an all-gray canvas.
func TestPadderDegenerateScale(t *testing.T) {
	frame := solidFrame(1000, 1, [3]byte{1, 2, 3})
	lb, err := ComputeLetterbox(1000, 1, 4, 4)
	require.NoError(t, err)
	require.Equal(t, 0, lb.ScaledHeight)

	canvas, err := NewPadder(FilterBilinear).Pad(frame, lb)
	require.NoError(t, err)
	for _, b := range canvas {
		assert.Equal(t, PadFill, b)
	}
}

// TestPadderReusesCanvas checks that repeated calls reuse the same backing buffer and refill it.
func TestPadderReusesCanvas(t *testing.T) {
	p := NewPadder(FilterBilinear)
	lb, err := ComputeLetterbox(4, 2, 4, 4)
	require.NoError(t, err)

	first, err := p.Pad(solidFrame(4, 2, [3]byte{1, 1, 1}), lb)
	require.NoError(t, err)
	second, err := p.Pad(solidFrame(4, 2, [3]byte{9, 9, 9}), lb)
	require.NoError(t, err)

	assert.Same(t, &first[0], &second[0], "canvas should be reused")
	assert.Equal(t, [3]byte{9, 9, 9}, pixelAt(second, 4, 0, 1))
	assert.Equal(t, [3]byte{PadFill, PadFill, PadFill}, pixelAt(second, 4, 0, 0))
}

func TestPadderMismatchedLetterbox(t *testing.T) {
	lb, err := ComputeLetterbox(8, 8, 4, 4)
	require.NoError(t, err)

	_, err = NewPadder(FilterBilinear).Pad(solidFrame(4, 2, [3]byte{}), lb)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDimensions))
}

func TestParseFilter(t *testing.T) {
	for name, want := range map[string]Filter{
		"":         FilterBilinear,
		"bilinear": FilterBilinear,
		"nearest":  FilterNearest,
		"bicubic":  FilterBicubic,
		"mitchell": FilterMitchell,
		"lanczos":  FilterLanczos,
	} {
		got, err := ParseFilter(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseFilter("area")
	assert.Error(t, err)
}
