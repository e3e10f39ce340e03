package images

import (
	"image"

	"github.com/chewxy/math32"
)

// Rect is an axis-aligned box in continuous pixel coordinates.
type Rect struct {
	XMin, YMin, XMax, YMax float32
}

// Width returns XMax-XMin.
func (r Rect) Width() float32 { return r.XMax - r.XMin }

// Height returns YMax-YMin.
func (r Rect) Height() float32 { return r.YMax - r.YMin }

// Area returns Width*Height. Inverted boxes yield a negative area.
func (r Rect) Area() float32 { return r.Width() * r.Height() }

// Valid reports whether the box is ordered and has a positive, finite area.
func (r Rect) Valid() bool {
	if r.XMin > r.XMax || r.YMin > r.YMax {
		return false
	}
	area := r.Area()
	return area > 0 && !math32.IsNaN(area) && !math32.IsInf(area, 0)
}

// Image rounds the box to integer pixel bounds for drawing.
func (r Rect) Image() image.Rectangle {
	return image.Rect(
		int(math32.Round(r.XMin)),
		int(math32.Round(r.YMin)),
		int(math32.Round(r.XMax)),
		int(math32.Round(r.YMax)),
	)
}

// CalculateIoU computes the Intersection over Union of two boxes:
//
//	IoU = Area(A ∩ B) / (Area(A) + Area(B) - Area(A ∩ B))
//
// The intersection is bounded by the larger of the two minimum edges and the smaller of the two
// maximum edges on each axis. When that span is empty on either axis the boxes do not overlap
// and the result is 0. Touching edges count as no overlap.
//
// A union of zero (two degenerate boxes) also yields 0 rather than NaN, so the result is always
// within [0, 1] and IoU(a, b) == IoU(b, a).
//
// Arguments:
//   - r: The first box.
//   - o: The second box.
//
// Returns:
//   - float32: The overlap ratio in [0, 1].
//
// Example:
//
//	a := Rect{XMin: 0, YMin: 0, XMax: 10, YMax: 10}
//	b := Rect{XMin: 5, YMin: 5, XMax: 15, YMax: 15}
//	CalculateIoU(a, b) // 25 / 175 = 0.142857
func CalculateIoU(r, o Rect) float32 {
	interW := math32.Min(r.XMax, o.XMax) - math32.Max(r.XMin, o.XMin)
	interH := math32.Min(r.YMax, o.YMax) - math32.Max(r.YMin, o.YMin)
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := interW * interH

	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}

	iou := inter / union
	if iou > 1 {
		return 1
	}
	return iou
}
