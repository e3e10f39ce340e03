package profiler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagesSummary(t *testing.T) {
	s := New(Options{})
	for i := 1; i <= 10; i++ {
		s.Record(StageInference, time.Duration(i)*time.Millisecond)
	}
	s.Record(StageNMS, 250*time.Microsecond)

	sum := s.Summary()
	require.Len(t, sum.Stages, 2)
	assert.Equal(t, StageInference, sum.Stages[0].Name, "stages keep first-recorded order")
	assert.Equal(t, StageNMS, sum.Stages[1].Name)

	inf := sum.Stages[0]
	assert.Equal(t, int64(10), inf.Count)
	assert.InDelta(t, 5.5, inf.Mean, 1e-9)
	assert.InDelta(t, 3.02765, inf.StdDev, 1e-5)
	assert.InDelta(t, 5, inf.P50, 1e-9)
	assert.InDelta(t, 10, inf.P95, 1e-9)
	assert.InDelta(t, 1, inf.Min, 1e-9)
	assert.InDelta(t, 10, inf.Max, 1e-9)

	nms := sum.Stages[1]
	assert.InDelta(t, 0.25, nms.Mean, 1e-9)
	assert.Zero(t, nms.StdDev, "a single sample has no spread")
	assert.Positive(t, sum.Goroutines)
}

func TestStagesBoundedHistory(t *testing.T) {
	s := New(Options{MaxSamples: 3})
	for i := 1; i <= 4; i++ {
		s.Record(StageDecode, time.Duration(i)*time.Millisecond)
	}

	st, ok := s.Stage(StageDecode)
	require.True(t, ok)
	assert.Equal(t, int64(4), st.Count, "count covers every record")
	assert.InDelta(t, 3, st.Mean, 1e-9, "mean covers the retained window only")
	assert.InDelta(t, 1, st.Min, 1e-9, "min covers every record")

	_, ok = s.Stage(StageLetterbox)
	assert.False(t, ok)
}

func TestStagesStart(t *testing.T) {
	s := New(Options{})
	done := s.Start(StageNormalize)
	time.Sleep(2 * time.Millisecond)
	done()

	st, ok := s.Stage(StageNormalize)
	require.True(t, ok)
	assert.GreaterOrEqual(t, st.Mean, 2.0)
}

func TestStagesNil(t *testing.T) {
	var s *Stages
	s.Start(StageInference)()
	s.Record(StageInference, time.Millisecond)
	s.Reset()

	assert.Empty(t, s.Summary().Stages)
	_, ok := s.Stage(StageInference)
	assert.False(t, ok)
}

func TestStagesReset(t *testing.T) {
	s := New(Options{})
	s.Record(StageNMS, time.Millisecond)
	s.Reset()
	assert.Empty(t, s.Summary().Stages)
}

func TestStagesConcurrent(t *testing.T) {
	s := New(Options{MaxSamples: 50})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Record(StageInference, time.Millisecond)
				_ = s.Summary()
			}
		}()
	}
	wg.Wait()

	st, ok := s.Stage(StageInference)
	require.True(t, ok)
	assert.Equal(t, int64(800), st.Count)
	assert.InDelta(t, 1, st.Mean, 1e-9)
}
