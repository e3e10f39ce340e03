// Package detector - Per-frame YOLOv4 detection pipeline.
package detector

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-ortdetect/images"
	"github.com/nvr-ai/go-ortdetect/inference"
	"github.com/nvr-ai/go-ortdetect/models/postprocess"
	"github.com/nvr-ai/go-ortdetect/models/yolov4"
	"github.com/nvr-ai/go-ortdetect/profiler"
)

// ErrNotReady is returned when a frame is offered to a closed detector.
var ErrNotReady = errors.New("detector not ready")

// Config represents the configuration for a Detector.
type Config struct {
	// Model describes the network input and detection heads.
	Model yolov4.Options
	// ScoreThreshold drops candidates whose objectness or final score is below it.
	ScoreThreshold float32
	// NMSThreshold is the IoU above which a lower-scoring box of the same class is suppressed.
	NMSThreshold float32
	// Filter is the resampling filter used when letterboxing.
	Filter images.Filter
	// RelevantClasses lists the labels to report (empty = all classes).
	RelevantClasses []string
}

// DefaultConfig returns the configuration of the 416x416 COCO YOLOv4 model.
func DefaultConfig() Config {
	return Config{
		Model:          yolov4.DefaultOptions(),
		ScoreThreshold: yolov4.DefaultScoreThreshold,
		NMSThreshold:   yolov4.DefaultNMSThreshold,
		Filter:         images.FilterBilinear,
	}
}

// Result is the outcome of one frame.
type Result struct {
	// Boxes are the accepted detections in original-frame pixels, grouped by class in class
	// order and by descending score within a class.
	Boxes []postprocess.Box
	// Letterbox is the transform used to map the frame into the model input.
	Letterbox images.Letterbox
}

// Detector runs frames through letterboxing, normalization, inference, decoding and NMS. Working
// buffers are reused between frames, so a Detector is not safe for concurrent use; run one per
// worker. The underlying Model may be shared.
type Detector struct {
	cfg        Config
	model      *yolov4.Model
	runner     inference.Runner
	logger     *slog.Logger
	padder     *images.Padder
	normalizer *images.Normalizer
	partitions postprocess.Partitions
	relevant   []bool
	stages     *profiler.Stages
	frames     int64
	closed     bool
}

// New creates a detector.
//
// Arguments:
//   - cfg: The detector configuration.
//   - runner: The inference backend.
//   - labels: One label per class.
//   - logger: The logger for per-frame failures. Nil selects slog.Default().
//
// Returns:
//   - *Detector: The detector.
//   - error: yolov4.ErrConfiguration (wrapped) if the configuration is inconsistent.
func New(cfg Config, runner inference.Runner, labels []string, logger *slog.Logger) (*Detector, error) {
	if runner == nil {
		return nil, errors.Wrap(yolov4.ErrConfiguration, "no inference runner")
	}
	if !(cfg.ScoreThreshold >= 0 && cfg.ScoreThreshold <= 1) {
		return nil, errors.Wrapf(yolov4.ErrConfiguration, "score threshold %v outside [0, 1]", cfg.ScoreThreshold)
	}
	if !(cfg.NMSThreshold >= 0 && cfg.NMSThreshold <= 1) {
		return nil, errors.Wrapf(yolov4.ErrConfiguration, "nms threshold %v outside [0, 1]", cfg.NMSThreshold)
	}

	model, err := yolov4.NewModel(cfg.Model, labels)
	if err != nil {
		return nil, err
	}

	relevant, err := relevantMask(labels, cfg.RelevantClasses)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	w, h := model.InputSize()
	return &Detector{
		cfg:        cfg,
		model:      model,
		runner:     runner,
		logger:     logger.With("component", "detector"),
		padder:     images.NewPadder(cfg.Filter),
		normalizer: images.NewNormalizer(w, h),
		partitions: postprocess.NewPartitions(model.NumClasses()),
		relevant:   relevant,
	}, nil
}

// SetProfiler records stage timings into stages. Nil disables recording.
func (d *Detector) SetProfiler(stages *profiler.Stages) {
	d.stages = stages
}

// Model returns the model the detector decodes with.
func (d *Detector) Model() *yolov4.Model {
	return d.model
}

// Frames returns the number of frames offered to Detect.
func (d *Detector) Frames() int64 {
	return d.frames
}

// Detect runs the full pipeline on one frame.
//
// Arguments:
//   - ctx: Checked before the frame is processed and passed to the runner.
//   - frame: The packed 8-bit frame.
//
// Returns:
//   - Result: The accepted boxes and the letterbox used.
//   - error: ErrNotReady, the context error, images.ErrInvalidDimensions,
//     yolov4.ErrTensorShapeMismatch or a runner error.
func (d *Detector) Detect(ctx context.Context, frame images.Frame) (Result, error) {
	if d == nil || d.closed {
		return Result{}, ErrNotReady
	}
	d.frames++

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	w, h := d.model.InputSize()

	done := d.stages.Start(profiler.StageLetterbox)
	lb, err := images.ComputeLetterbox(frame.Width, frame.Height, w, h)
	if err != nil {
		return Result{}, err
	}
	padded, err := d.padder.Pad(frame, lb)
	if err != nil {
		return Result{}, err
	}
	done()

	done = d.stages.Start(profiler.StageNormalize)
	input, err := d.normalizer.Normalize(padded, w, h, frame.Order)
	if err != nil {
		return Result{}, err
	}
	done()

	done = d.stages.Start(profiler.StageInference)
	outputs, err := d.runner.Run(ctx, input)
	if err != nil {
		return Result{}, errors.Wrap(err, "inference")
	}
	done()

	done = d.stages.Start(profiler.StageDecode)
	d.partitions.Reset()
	if err := d.model.DecodeInto(d.partitions, outputs, lb, d.cfg.ScoreThreshold); err != nil {
		return Result{}, err
	}
	done()

	done = d.stages.Start(profiler.StageNMS)
	boxes := postprocess.Suppress(d.partitions, d.cfg.NMSThreshold)
	done()

	return Result{Boxes: d.keepRelevant(boxes), Letterbox: lb}, nil
}

// Process runs Detect and degrades any failure to an empty result after logging it, so a bad
// frame never stops a capture loop.
func (d *Detector) Process(ctx context.Context, frame images.Frame) Result {
	res, err := d.Detect(ctx, frame)
	if err != nil {
		logger := slog.Default()
		var n int64
		if d != nil {
			logger, n = d.logger, d.frames
		}
		logger.Error("frame dropped",
			"frame", n,
			"width", frame.Width,
			"height", frame.Height,
			"error", err,
		)
		return Result{}
	}
	return res
}

// Close marks the detector unusable. The runner is owned by the caller and is not closed.
func (d *Detector) Close() error {
	d.closed = true
	return nil
}

func (d *Detector) keepRelevant(boxes []postprocess.Box) []postprocess.Box {
	if d.relevant == nil {
		return boxes
	}
	kept := boxes[:0]
	for _, b := range boxes {
		if d.relevant[b.Class] {
			kept = append(kept, b)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// relevantMask marks the classes named in relevant. An empty list yields a nil mask.
func relevantMask(labels, relevant []string) ([]bool, error) {
	if len(relevant) == 0 {
		return nil, nil
	}
	index := make(map[string]int, len(labels))
	for i, l := range labels {
		if _, ok := index[l]; !ok {
			index[l] = i
		}
	}
	mask := make([]bool, len(labels))
	for _, name := range relevant {
		i, ok := index[name]
		if !ok {
			return nil, errors.Wrapf(yolov4.ErrConfiguration, "unknown relevant class %q", name)
		}
		mask[i] = true
	}
	return mask, nil
}
