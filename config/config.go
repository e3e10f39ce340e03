// Package config - TOML configuration file, defaults and validation.
package config

import (
	"bytes"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-ortdetect/detector"
	"github.com/nvr-ai/go-ortdetect/images"
	"github.com/nvr-ai/go-ortdetect/inference/providers"
	"github.com/nvr-ai/go-ortdetect/models/yolov4"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Logging levels accepted in logging.level.
const (
	LoggingLevelDebug = "debug"
	LoggingLevelInfo  = "info"
	LoggingLevelWarn  = "warn"
	LoggingLevelError = "error"
)

// File is the configuration file structure.
type File struct {
	Model     ModelConfig     `toml:"model"`
	Runtime   RuntimeConfig   `toml:"runtime"`
	Detection DetectionConfig `toml:"detection"`
	Input     InputConfig     `toml:"input"`
	Output    OutputConfig    `toml:"output"`
	Stream    StreamConfig    `toml:"stream"`
	MQTT      MQTTConfig      `toml:"mqtt"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ModelConfig describes the network.
type ModelConfig struct {
	Path string `toml:"path"`
	// Labels is a label file with one name per line, or "coco" for the built-in list.
	Labels      string `toml:"labels"`
	InputWidth  int    `toml:"input_width"`
	InputHeight int    `toml:"input_height"`
	NumClasses  int    `toml:"num_classes"`
}

// RuntimeConfig selects and tunes the ONNX Runtime session.
type RuntimeConfig struct {
	// LibraryPath is the ONNX Runtime shared library. Empty selects the platform default.
	LibraryPath    string                    `toml:"library_path"`
	Provider       string                    `toml:"provider"`
	Optimization   string                    `toml:"optimization"`
	IntraOpThreads int                       `toml:"intra_op_threads"`
	InterOpThreads int                       `toml:"inter_op_threads"`
	CUDA           providers.CUDAOptions     `toml:"cuda"`
	CoreML         providers.CoreMLOptions   `toml:"coreml"`
	OpenVINO       providers.OpenVINOOptions `toml:"openvino"`
}

// DetectionConfig holds the post-processing thresholds.
type DetectionConfig struct {
	ScoreThreshold  float32  `toml:"score_threshold"`
	NMSThreshold    float32  `toml:"nms_threshold"`
	Filter          string   `toml:"filter"`
	RelevantClasses []string `toml:"relevant_classes,omitempty"`
}

// InputConfig describes the frame source.
type InputConfig struct {
	// Path is a video file, a camera index or a stream URL.
	Path       string `toml:"path"`
	ColorOrder string `toml:"color_order"`
}

// OutputConfig describes the annotated video file. An empty path disables it.
type OutputConfig struct {
	Path  string  `toml:"path"`
	Codec string  `toml:"codec"`
	FPS   float64 `toml:"fps"`
}

// StreamConfig describes the MJPEG preview server.
type StreamConfig struct {
	Enabled            bool `toml:"enabled"`
	Port               uint `toml:"port"`
	ReadTimeoutSec     uint `toml:"read_timeout_sec"`
	ShutdownTimeoutSec uint `toml:"shutdown_timeout_sec"`
}

// MQTTConfig describes the detection report publisher.
type MQTTConfig struct {
	Enabled           bool   `toml:"enabled"`
	Address           string `toml:"address"`
	Topic             string `toml:"topic"`
	ClientID          string `toml:"client_id"`
	Username          string `toml:"username"`
	Password          string `toml:"password"`
	ConnectTimeoutSec uint   `toml:"connect_timeout_sec"`
}

// LoggingConfig sets the log level and the profiler summary period.
type LoggingConfig struct {
	Level         string `toml:"level"`
	StatPeriodSec uint   `toml:"stat_period_sec"`
}

// Default returns the configuration of the 416x416 COCO YOLOv4 model on the CPU provider.
func Default() File {
	return File{
		Model: ModelConfig{
			Path:        "yolov4.onnx",
			Labels:      "coco",
			InputWidth:  yolov4.DefaultInputSize,
			InputHeight: yolov4.DefaultInputSize,
			NumClasses:  yolov4.DefaultNumClasses,
		},
		Runtime: RuntimeConfig{
			Provider:     string(providers.CPUProviderBackend),
			Optimization: string(providers.OptimizationExtended),
		},
		Detection: DetectionConfig{
			ScoreThreshold: yolov4.DefaultScoreThreshold,
			NMSThreshold:   yolov4.DefaultNMSThreshold,
			Filter:         "bilinear",
		},
		Input: InputConfig{
			Path:       "0",
			ColorOrder: "bgr",
		},
		Output: OutputConfig{
			Codec: "MJPG",
			FPS:   25,
		},
		Stream: StreamConfig{
			Port:               8080,
			ReadTimeoutSec:     5,
			ShutdownTimeoutSec: 5,
		},
		MQTT: MQTTConfig{
			Address:           "127.0.0.1:1883",
			Topic:             "ortdetect/detections",
			ClientID:          "ortdetect",
			ConnectTimeoutSec: 5,
		},
		Logging: LoggingConfig{
			Level:         LoggingLevelInfo,
			StatPeriodSec: 10,
		},
	}
}

// Load reads a configuration file over the defaults. Keys missing from the file keep their
// default values; unknown keys are an error.
//
// Arguments:
//   - path: The TOML file.
//
// Returns:
//   - File: The merged, validated configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func Load(path string) (File, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, errors.Wrapf(err, "unable to read %s", path)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return File{}, errors.Wrapf(err, "unable to parse %s at %d:%d", path, row, col)
		}
		return File{}, errors.Wrapf(err, "unable to parse %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return File{}, errors.Wrap(err, path)
	}
	return cfg, nil
}

// Write stores the configuration as TOML.
func (f File) Write(path string) error {
	data, err := toml.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "unable to marshal configuration")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "unable to write %s", path)
	}
	return nil
}

// Validate range-checks every value that would otherwise fail later at construction time.
//
// Returns:
//   - error: ErrInvalidConfig (wrapped) naming the first offending key.
func (f File) Validate() error {
	if f.Model.Path == "" {
		return errors.Wrap(ErrInvalidConfig, "model.path is required")
	}
	if f.Model.InputWidth <= 0 || f.Model.InputHeight <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "model input size %dx%d", f.Model.InputWidth, f.Model.InputHeight)
	}
	if f.Model.NumClasses <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "model.num_classes %d", f.Model.NumClasses)
	}
	if !unit(f.Detection.ScoreThreshold) {
		return errors.Wrapf(ErrInvalidConfig, "detection.score_threshold %v outside [0, 1]", f.Detection.ScoreThreshold)
	}
	if !unit(f.Detection.NMSThreshold) {
		return errors.Wrapf(ErrInvalidConfig, "detection.nms_threshold %v outside [0, 1]", f.Detection.NMSThreshold)
	}
	if _, err := images.ParseFilter(f.Detection.Filter); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "detection.filter: %v", err)
	}
	if _, err := images.ParseColorOrder(f.Input.ColorOrder); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "input.color_order: %v", err)
	}
	if _, err := providers.ParseBackend(f.Runtime.Provider); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "runtime.provider: %v", err)
	}
	if _, err := providers.ParseOptimizationLevel(f.Runtime.Optimization); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "runtime.optimization: %v", err)
	}
	if f.Runtime.IntraOpThreads < 0 || f.Runtime.InterOpThreads < 0 {
		return errors.Wrap(ErrInvalidConfig, "runtime thread counts must not be negative")
	}
	if f.Output.Path != "" {
		if len(f.Output.Codec) != 4 {
			return errors.Wrapf(ErrInvalidConfig, "output.codec %q is not a fourcc", f.Output.Codec)
		}
		if f.Output.FPS <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "output.fps %v", f.Output.FPS)
		}
	}
	if f.Stream.Enabled && (f.Stream.Port == 0 || f.Stream.Port > 65535) {
		return errors.Wrapf(ErrInvalidConfig, "stream.port %d", f.Stream.Port)
	}
	if f.MQTT.Enabled && (f.MQTT.Address == "" || f.MQTT.Topic == "") {
		return errors.Wrap(ErrInvalidConfig, "mqtt.address and mqtt.topic are required")
	}
	return nil
}

// SlogLevel maps logging.level to a slog level. Unknown values report false and select
// slog.LevelError.
func (l LoggingConfig) SlogLevel() (slog.Level, bool) {
	switch l.Level {
	case LoggingLevelDebug:
		return slog.LevelDebug, true
	case LoggingLevelInfo:
		return slog.LevelInfo, true
	case LoggingLevelWarn:
		return slog.LevelWarn, true
	case LoggingLevelError:
		return slog.LevelError, true
	default:
		return slog.LevelError, false
	}
}

// Detector returns the detector configuration.
func (f File) Detector() (detector.Config, error) {
	filter, err := images.ParseFilter(f.Detection.Filter)
	if err != nil {
		return detector.Config{}, err
	}
	return detector.Config{
		Model: yolov4.Options{
			InputWidth:  f.Model.InputWidth,
			InputHeight: f.Model.InputHeight,
			NumClasses:  f.Model.NumClasses,
		},
		ScoreThreshold:  f.Detection.ScoreThreshold,
		NMSThreshold:    f.Detection.NMSThreshold,
		Filter:          filter,
		RelevantClasses: f.Detection.RelevantClasses,
	}, nil
}

// Session returns the ONNX Runtime session options.
func (f File) Session() (providers.Options, error) {
	backend, err := providers.ParseBackend(f.Runtime.Provider)
	if err != nil {
		return providers.Options{}, err
	}
	level, err := providers.ParseOptimizationLevel(f.Runtime.Optimization)
	if err != nil {
		return providers.Options{}, err
	}
	return providers.Options{
		LibraryPath:    f.Runtime.LibraryPath,
		ModelPath:      f.Model.Path,
		InputWidth:     f.Model.InputWidth,
		InputHeight:    f.Model.InputHeight,
		Backend:        backend,
		Optimization:   level,
		IntraOpThreads: f.Runtime.IntraOpThreads,
		InterOpThreads: f.Runtime.InterOpThreads,
		CUDA:           f.Runtime.CUDA,
		CoreML:         f.Runtime.CoreML,
		OpenVINO:       f.Runtime.OpenVINO,
	}, nil
}

func unit(v float32) bool {
	return v >= 0 && v <= 1
}
