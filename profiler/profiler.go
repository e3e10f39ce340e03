// Package profiler - Per-stage timing collection and summary statistics.
package profiler

import (
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Pipeline stage names recorded by the detector.
const (
	StageLetterbox = "letterbox"
	StageNormalize = "normalize"
	StageInference = "inference"
	StageDecode    = "decode"
	StageNMS       = "nms"
)

// DefaultMaxSamples is the per-stage history kept when Options.MaxSamples is zero.
const DefaultMaxSamples = 600

// Options configures a Stages recorder.
type Options struct {
	// MaxSamples bounds the history kept per stage (default: 600).
	MaxSamples int
}

// Stages records durations per named stage. It is safe for concurrent use, and a nil *Stages
// discards every record.
type Stages struct {
	mu         sync.Mutex
	maxSamples int
	order      []string
	stages     map[string]*tracker
	startTime  time.Time
}

type tracker struct {
	samples []float64 // milliseconds, oldest first
	count   int64
	min     time.Duration
	max     time.Duration
}

// New creates a stage recorder.
//
// Arguments:
//   - opts: Configuration options for the recorder.
//
// Returns:
//   - *Stages: An empty recorder.
func New(opts Options) *Stages {
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = DefaultMaxSamples
	}
	return &Stages{
		maxSamples: opts.MaxSamples,
		stages:     make(map[string]*tracker),
		startTime:  time.Now(),
	}
}

// Start begins timing a stage and returns the function that records it.
//
// Example:
//
//	done := stages.Start(profiler.StageInference)
//	outputs, err := runner.Run(ctx, input)
//	done()
func (s *Stages) Start(name string) func() {
	if s == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		s.Record(name, time.Since(start))
	}
}

// Record adds one duration to a stage. Once the stage holds MaxSamples durations the oldest is
// dropped.
func (s *Stages) Record(name string, d time.Duration) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.stages[name]
	if !ok {
		t = &tracker{samples: make([]float64, 0, s.maxSamples), min: d, max: d}
		s.stages[name] = t
		s.order = append(s.order, name)
	}

	if len(t.samples) == s.maxSamples {
		copy(t.samples, t.samples[1:])
		t.samples = t.samples[:len(t.samples)-1]
	}
	t.samples = append(t.samples, float64(d)/float64(time.Millisecond))
	t.count++
	if d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
}

// Reset discards every recorded stage.
func (s *Stages) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	s.stages = make(map[string]*tracker)
	s.startTime = time.Now()
}

// StageSummary describes the retained history of one stage. Times are in milliseconds; Min, Max
// and Count cover every record since the last Reset.
type StageSummary struct {
	Name   string
	Count  int64
	Mean   float64
	StdDev float64
	P50    float64
	P95    float64
	Min    float64
	Max    float64
}

// LogValue renders the summary as a log group.
func (s StageSummary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("count", s.Count),
		slog.Float64("mean_ms", s.Mean),
		slog.Float64("stddev_ms", s.StdDev),
		slog.Float64("p50_ms", s.P50),
		slog.Float64("p95_ms", s.P95),
		slog.Float64("min_ms", s.Min),
		slog.Float64("max_ms", s.Max),
	)
}

// Summary is a point-in-time report of every stage plus process runtime counters.
type Summary struct {
	Uptime     time.Duration
	Stages     []StageSummary
	Goroutines int
	HeapAlloc  uint64
	NumGC      uint32
}

// Summary computes statistics for every stage in first-recorded order.
//
// Returns:
//   - Summary: The report. Empty for a nil recorder.
func (s *Stages) Summary() Summary {
	if s == nil {
		return Summary{}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.mu.Lock()
	defer s.mu.Unlock()

	out := Summary{
		Uptime:     time.Since(s.startTime),
		Stages:     make([]StageSummary, 0, len(s.order)),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		NumGC:      mem.NumGC,
	}
	for _, name := range s.order {
		out.Stages = append(out.Stages, s.stages[name].summarize(name))
	}
	return out
}

// Stage returns the summary of one stage and whether it has been recorded.
func (s *Stages) Stage(name string) (StageSummary, bool) {
	if s == nil {
		return StageSummary{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.stages[name]
	if !ok {
		return StageSummary{}, false
	}
	return t.summarize(name), true
}

func (t *tracker) summarize(name string) StageSummary {
	sorted := slices.Clone(t.samples)
	slices.Sort(sorted)

	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) < 2 {
		std = 0
	}
	return StageSummary{
		Name:   name,
		Count:  t.count,
		Mean:   mean,
		StdDev: std,
		P50:    stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Min:    float64(t.min) / float64(time.Millisecond),
		Max:    float64(t.max) / float64(time.Millisecond),
	}
}

// LogValue renders the summary as a log group with one nested group per stage.
func (s Summary) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Duration("uptime", s.Uptime),
		slog.Int("goroutines", s.Goroutines),
		slog.Uint64("heap_alloc", s.HeapAlloc),
		slog.Any("num_gc", s.NumGC),
	}
	for _, st := range s.Stages {
		attrs = append(attrs, slog.Any(st.Name, st))
	}
	return slog.GroupValue(attrs...)
}
