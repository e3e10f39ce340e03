package images

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cameraResolution is a common surveillance camera output size.
type cameraResolution struct {
	name          string
	width, height int
}

var cameraResolutions = []cameraResolution{
	{name: "nHD", width: 640, height: 360},
	{name: "VGA", width: 640, height: 480},
	{name: "FWVGA", width: 854, height: 480},
	{name: "qHD 540p", width: 960, height: 540},
	{name: "HD 720p", width: 1280, height: 720},
	{name: "WXGA", width: 1366, height: 768},
	{name: "1MP (5:4)", width: 1280, height: 1024},
	{name: "Full HD 1080p", width: 1920, height: 1080},
	{name: "2MP (4:3)", width: 1600, height: 1200},
	{name: "QHD 1440p", width: 2560, height: 1440},
	{name: "3MP (4:3)", width: 2048, height: 1536},
	{name: "4MP (16:9)", width: 2688, height: 1520},
	{name: "4K UHD", width: 3840, height: 2160},
	{name: "portrait corridor", width: 1080, height: 1920},
}

// TestLetterboxCameraResolutions letterboxes every common camera size into the 416x416 model
// input and checks fit, centring and the round trip of the frame corners.
func TestLetterboxCameraResolutions(t *testing.T) {
	const target = 416

	for _, res := range cameraResolutions {
		t.Run(res.name, func(t *testing.T) {
			lb, err := ComputeLetterbox(res.width, res.height, target, target)
			require.NoError(t, err)

			assert.LessOrEqual(t, lb.ScaledWidth, target)
			assert.LessOrEqual(t, lb.ScaledHeight, target)
			assert.True(t, lb.ScaledWidth >= target-1 || lb.ScaledHeight >= target-1,
				"the longer side fills the input (%dx%d)", lb.ScaledWidth, lb.ScaledHeight)

			assert.LessOrEqual(t, int(lb.PadX)*2+lb.ScaledWidth, target)
			assert.GreaterOrEqual(t, int(lb.PadX)*2+lb.ScaledWidth, target-1, "horizontal padding is centred")
			assert.LessOrEqual(t, int(lb.PadY)*2+lb.ScaledHeight, target)
			assert.GreaterOrEqual(t, int(lb.PadY)*2+lb.ScaledHeight, target-1, "vertical padding is centred")

			for _, p := range [][2]float32{{0, 0}, {float32(res.width), float32(res.height)}} {
				tx, ty := lb.ToTarget(p[0], p[1])
				sx, sy := lb.ToSource(tx, ty)
				assert.InDelta(t, p[0], sx, 1e-2, "x round trip")
				assert.InDelta(t, p[1], sy, 1e-2, "y round trip")
			}
		})
	}
}

func BenchmarkPadAndNormalize(b *testing.B) {
	const target = 416

	for _, res := range cameraResolutions {
		b.Run(fmt.Sprintf("%s_%dx%d", res.name, res.width, res.height), func(b *testing.B) {
			frame := solidFrame(res.width, res.height, [3]byte{30, 60, 90})
			lb, err := ComputeLetterbox(res.width, res.height, target, target)
			require.NoError(b, err)

			padder := NewPadder(FilterBilinear)
			normalizer := NewNormalizer(target, target)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				canvas, err := padder.Pad(frame, lb)
				if err != nil {
					b.Fatal(err)
				}
				if _, err := normalizer.Normalize(canvas, target, target, frame.Order); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
