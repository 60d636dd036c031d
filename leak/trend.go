package leak

import (
	"math"

	"github.com/mobileperf/leakmon/sample"
)

// TrendResult is the growth estimate over the buffer's current time
// span. It is recomputed from scratch on every detection attempt and
// never stored.
type TrendResult struct {
	GrowthRateMBPerMin float64
	MemoryIncreaseMB   float64
	TimeSpanMin        float64
	CurrentValueMB     float64
	SampleCount        int
}

// estimateTrend fits an endpoint-to-endpoint slope over the retained
// window. ok is false when there is not enough evidence to judge:
// fewer than minSamples samples, or a zero/negative time span from
// simultaneous timestamps.
func estimateTrend(samples []sample.MemorySample, minSamples int) (TrendResult, bool) {
	if len(samples) < minSamples {
		return TrendResult{}, false
	}

	first := samples[0]
	last := samples[len(samples)-1]

	spanMin := (last.Timestamp - first.Timestamp) / 60
	if spanMin <= 0 {
		return TrendResult{}, false
	}

	increase := last.ValueMB - first.ValueMB
	return TrendResult{
		GrowthRateMBPerMin: round2(increase / spanMin),
		MemoryIncreaseMB:   increase,
		TimeSpanMin:        spanMin,
		CurrentValueMB:     last.ValueMB,
		SampleCount:        len(samples),
	}, true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
