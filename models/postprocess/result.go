// Package postprocess - Candidate boxes, per-class partitions and Non-Maximum Suppression.
package postprocess

import "github.com/nvr-ai/go-ortdetect/images"

// Box is a detection in original-frame pixel space. The decoder only emits boxes for which
// Rect.Valid() holds; NMS returns a subset of them unchanged.
type Box struct {
	images.Rect
	// Score is objectness multiplied by the winning class probability.
	Score float32
	// Class is the index of the winning class.
	Class int
}

// Partitions groups candidate boxes by class index. Index i holds the boxes of class i in the
// order they were added.
type Partitions [][]Box

// NewPartitions returns empty partitions for numClasses classes.
func NewPartitions(numClasses int) Partitions {
	return make(Partitions, numClasses)
}

// Add appends a box to its class partition. Boxes with an out-of-range class are ignored.
func (p Partitions) Add(b Box) {
	if b.Class < 0 || b.Class >= len(p) {
		return
	}
	p[b.Class] = append(p[b.Class], b)
}

// Len returns the total number of boxes across all partitions.
func (p Partitions) Len() int {
	n := 0
	for _, boxes := range p {
		n += len(boxes)
	}
	return n
}

// Reset empties every partition while keeping the allocated capacity.
func (p Partitions) Reset() {
	for i := range p {
		p[i] = p[i][:0]
	}
}
