package postprocess

import (
	"slices"

	"github.com/nvr-ai/go-ortdetect/images"
)

// Suppress applies greedy per-class Non-Maximum Suppression.
//
// Classes are processed in index order. Within a class the boxes are stably sorted by
// descending score (ties keep decode order), the highest-scoring remaining box is accepted and
// every remaining box whose IoU with it exceeds iouThreshold is discarded, until the class is
// exhausted. The partitions are sorted in place.
//
// Arguments:
//   - partitions: Candidate boxes grouped by class.
//   - iouThreshold: Overlap above which the lower-scoring box is suppressed.
//
// Returns:
//   - []Box: Accepted boxes, grouped by class in class order and by descending score within a
//     class. Nil if there are no candidates.
func Suppress(partitions Partitions, iouThreshold float32) []Box {
	n := partitions.Len()
	if n == 0 {
		return nil
	}

	accepted := make([]Box, 0, n)
	for _, boxes := range partitions {
		accepted = appendGreedy(accepted, boxes, iouThreshold)
	}
	return accepted
}

// appendGreedy runs greedy NMS over a single class and appends the survivors to dst.
func appendGreedy(dst []Box, boxes []Box, iouThreshold float32) []Box {
	n := len(boxes)
	if n == 0 {
		return dst
	}

	slices.SortStableFunc(boxes, func(a, b Box) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	used := make([]bool, n)
	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := boxes[i]
		dst = append(dst, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if images.CalculateIoU(anchor.Rect, boxes[j].Rect) > iouThreshold {
				used[j] = true
			}
		}
	}

	return dst
}
