package sink

import (
	"context"
	"log/slog"
)

// Log writes one structured log line per report. Frames without detections are logged at
// debug level.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log sink. Nil selects slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("sink", "log")}
}

// Publish logs the report.
func (l *Log) Publish(ctx context.Context, report Report) error {
	level := slog.LevelInfo
	if len(report.Detections) == 0 {
		level = slog.LevelDebug
	}
	l.logger.Log(ctx, level, "detections",
		"frame", report.Frame,
		"count", len(report.Detections),
		"labels", report.Labels(),
	)
	return nil
}

// Close is a no-op.
func (l *Log) Close() error { return nil }
