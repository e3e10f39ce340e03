// Package sink - Destinations for per-frame detection reports.
package sink

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-ortdetect/models/postprocess"
)

// Sink receives one report per processed frame.
type Sink interface {
	// Publish delivers a report. Implementations must not retain the report after returning.
	Publish(ctx context.Context, report Report) error
	// Close releases the sink.
	Close() error
}

// Box is a detection rectangle in frame pixels.
type Box struct {
	XMin float32 `json:"xmin"`
	YMin float32 `json:"ymin"`
	XMax float32 `json:"xmax"`
	YMax float32 `json:"ymax"`
}

// Detection is one accepted box with its label.
type Detection struct {
	Class int     `json:"class"`
	Label string  `json:"label"`
	Score float32 `json:"score"`
	Box   Box     `json:"box"`
}

// Report is the detection result of one frame.
type Report struct {
	Frame      int64       `json:"frame"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Detections []Detection `json:"detections"`
}

// NewReport builds a report from accepted boxes. Classes without a label get an empty label.
func NewReport(frame int64, width, height int, boxes []postprocess.Box, labels []string) Report {
	r := Report{
		Frame:      frame,
		Width:      width,
		Height:     height,
		Detections: make([]Detection, 0, len(boxes)),
	}
	for _, b := range boxes {
		var label string
		if b.Class >= 0 && b.Class < len(labels) {
			label = labels[b.Class]
		}
		r.Detections = append(r.Detections, Detection{
			Class: b.Class,
			Label: label,
			Score: b.Score,
			Box:   Box{XMin: b.XMin, YMin: b.YMin, XMax: b.XMax, YMax: b.YMax},
		})
	}
	return r
}

// Labels returns the label of every detection in report order.
func (r Report) Labels() []string {
	out := make([]string, len(r.Detections))
	for i, d := range r.Detections {
		out[i] = d.Label
	}
	return out
}

// Encode returns the report as JSON.
func (r Report) Encode() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding report for frame %d", r.Frame)
	}
	return b, nil
}

// Multi fans a report out to several sinks.
type Multi []Sink

// Publish delivers the report to every sink and returns the first error.
func (m Multi) Publish(ctx context.Context, report Report) error {
	var first error
	for _, s := range m {
		if err := s.Publish(ctx, report); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink and returns the first error.
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
