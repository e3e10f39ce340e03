package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-ortdetect/images"
	"github.com/nvr-ai/go-ortdetect/inference/providers"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, float32(0.25), cfg.Detection.ScoreThreshold)
	assert.Equal(t, float32(0.213), cfg.Detection.NMSThreshold)
	assert.Equal(t, 416, cfg.Model.InputWidth)
	assert.Equal(t, 80, cfg.Model.NumClasses)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
[model]
path = "models/yolov4.onnx"

[runtime]
provider = "cuda"

[runtime.cuda]
device_id = 1
prefer_nhwc = true

[detection]
score_threshold = 0.4
relevant_classes = ["person", "car"]

[mqtt]
enabled = true
topic = "cameras/front"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "models/yolov4.onnx", cfg.Model.Path)
	assert.Equal(t, 416, cfg.Model.InputHeight, "missing keys keep their defaults")
	assert.Equal(t, "cuda", cfg.Runtime.Provider)
	assert.Equal(t, 1, cfg.Runtime.CUDA.DeviceID)
	assert.True(t, cfg.Runtime.CUDA.PreferNHWC)
	assert.Equal(t, float32(0.4), cfg.Detection.ScoreThreshold)
	assert.Equal(t, float32(0.213), cfg.Detection.NMSThreshold)
	assert.Equal(t, []string{"person", "car"}, cfg.Detection.RelevantClasses)
	assert.Equal(t, "cameras/front", cfg.MQTT.Topic)
	assert.Equal(t, "127.0.0.1:1883", cfg.MQTT.Address)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		invalid bool
	}{
		{name: "syntax", content: "[model\npath = 1"},
		{name: "unknown key", content: "[model]\nweights = \"x\""},
		{name: "wrong type", content: "[model]\ninput_width = \"wide\""},
		{name: "threshold range", content: "[detection]\nnms_threshold = 1.5", invalid: true},
		{name: "provider", content: "[runtime]\nprovider = \"tpu\"", invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			require.Error(t, err)
			assert.Equal(t, tt.invalid, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*File)
	}{
		{name: "model path", mutate: func(f *File) { f.Model.Path = "" }},
		{name: "input width", mutate: func(f *File) { f.Model.InputWidth = 0 }},
		{name: "classes", mutate: func(f *File) { f.Model.NumClasses = -1 }},
		{name: "negative score", mutate: func(f *File) { f.Detection.ScoreThreshold = -0.1 }},
		{name: "filter", mutate: func(f *File) { f.Detection.Filter = "box" }},
		{name: "color order", mutate: func(f *File) { f.Input.ColorOrder = "yuv" }},
		{name: "optimization", mutate: func(f *File) { f.Runtime.Optimization = "max" }},
		{name: "threads", mutate: func(f *File) { f.Runtime.IntraOpThreads = -2 }},
		{name: "codec", mutate: func(f *File) { f.Output.Path = "out.avi"; f.Output.Codec = "MP4" }},
		{name: "fps", mutate: func(f *File) { f.Output.Path = "out.avi"; f.Output.FPS = 0 }},
		{name: "stream port", mutate: func(f *File) { f.Stream.Enabled = true; f.Stream.Port = 0 }},
		{name: "mqtt topic", mutate: func(f *File) { f.MQTT.Enabled = true; f.MQTT.Topic = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.toml")
	require.NoError(t, Default().Write(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
		ok    bool
	}{
		{level: "debug", want: slog.LevelDebug, ok: true},
		{level: "info", want: slog.LevelInfo, ok: true},
		{level: "warn", want: slog.LevelWarn, ok: true},
		{level: "error", want: slog.LevelError, ok: true},
		{level: "verbose", want: slog.LevelError, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, ok := LoggingConfig{Level: tt.level}.SlogLevel()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestDerivedOptions(t *testing.T) {
	cfg := Default()
	cfg.Runtime.Provider = "openvino"
	cfg.Runtime.OpenVINO.DeviceType = "GPU"
	cfg.Detection.Filter = "lanczos"
	cfg.Detection.RelevantClasses = []string{"person"}

	det, err := cfg.Detector()
	require.NoError(t, err)
	assert.Equal(t, images.FilterLanczos, det.Filter)
	assert.Equal(t, 416, det.Model.InputWidth)
	assert.Equal(t, []string{"person"}, det.RelevantClasses)

	sess, err := cfg.Session()
	require.NoError(t, err)
	assert.Equal(t, providers.OpenVINOProviderBackend, sess.Backend)
	assert.Equal(t, providers.OptimizationExtended, sess.Optimization)
	assert.Equal(t, "yolov4.onnx", sess.ModelPath)
	assert.Equal(t, "GPU", sess.OpenVINO.DeviceType)
}
