// Package annotate - Class colors, captions and box drawing on frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/muesli/gamut"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-ortdetect/models/postprocess"
)

const (
	// BaseColor is the color of class 0.
	BaseColor = "#FF0000"
	// hueStep is the golden angle in whole degrees; successive classes land far apart on the
	// hue circle.
	hueStep = 137

	captionFont  = gocv.FontHersheySimplex
	captionScale = 0.5
)

var captionColor = color.RGBA{A: 255}

// Palette maps class indexes to colors. It is read-only after construction.
type Palette struct {
	colors []color.RGBA
}

// NewPalette builds a palette of n colors by rotating BaseColor's hue by the golden angle per
// class.
func NewPalette(n int) *Palette {
	if n < 1 {
		n = 1
	}
	base := gamut.Hex(BaseColor)
	colors := make([]color.RGBA, n)
	for i := range colors {
		colors[i] = toRGBA(gamut.HueOffset(base, (i*hueStep)%360))
	}
	return &Palette{colors: colors}
}

// Len returns the number of distinct colors.
func (p *Palette) Len() int { return len(p.colors) }

// Color returns the color of a class. Out-of-range classes wrap around.
func (p *Palette) Color(class int) color.RGBA {
	n := len(p.colors)
	return p.colors[((class%n)+n)%n]
}

func toRGBA(c color.Color) color.RGBA {
	r, g, b, _ := c.RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255}
}

// Caption formats a detection as "label: 0.72". The score is rounded to two decimals and printed
// without trailing zeros ("car: 0.7", "dog: 1").
func Caption(label string, score float32) string {
	rounded := math32.Round(score*100) / 100
	return label + ": " + strconv.FormatFloat(float64(rounded), 'g', -1, 32)
}

// Thickness returns the line width for a frame of the given size.
func Thickness(width, height int) int {
	return max(1, int(0.6*float64(width+height)/600))
}

// Draw renders each box with its caption onto a BGR frame.
//
// Arguments:
//   - mat: The frame to draw on, modified in place.
//   - boxes: Detections in frame pixels.
//   - labels: Class labels; a class without a label is captioned with its index.
//   - palette: Class colors.
func Draw(mat *gocv.Mat, boxes []postprocess.Box, labels []string, palette *Palette) {
	if mat == nil || mat.Empty() || len(boxes) == 0 {
		return
	}
	thick := Thickness(mat.Cols(), mat.Rows())
	textThick := max(1, thick/2)

	for _, b := range boxes {
		c := palette.Color(b.Class)
		r := b.Image()
		gocv.Rectangle(mat, r, c, thick)

		label := fmt.Sprint(b.Class)
		if b.Class >= 0 && b.Class < len(labels) {
			label = labels[b.Class]
		}
		caption := Caption(label, b.Score)
		size := gocv.GetTextSize(caption, captionFont, captionScale, textThick)

		background := image.Rect(r.Min.X, r.Min.Y-size.Y-3, r.Min.X+size.X, r.Min.Y)
		gocv.Rectangle(mat, background, c, -1)
		gocv.PutText(mat, caption, image.Pt(r.Min.X, r.Min.Y-2), captionFont, captionScale, captionColor, textThick)
	}
}
