package leak

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mobileperf/leakmon/sample"
)

func samplesFrom(points ...[2]float64) []sample.MemorySample {
	out := make([]sample.MemorySample, 0, len(points))
	for _, p := range points {
		out = append(out, sample.MemorySample{Timestamp: p[0], ValueMB: p[1]})
	}
	return out
}

func TestEstimateTrendNotEnoughSamples(t *testing.T) {
	samples := samplesFrom([2]float64{0, 100}, [2]float64{10, 101})
	_, ok := estimateTrend(samples, 3)
	assert.False(t, ok)

	_, ok = estimateTrend(nil, 1)
	assert.False(t, ok)
}

func TestEstimateTrendDegenerateSpan(t *testing.T) {
	// Simultaneous timestamps must not divide by zero.
	samples := samplesFrom([2]float64{50, 100}, [2]float64{50, 120})
	_, ok := estimateTrend(samples, 2)
	assert.False(t, ok)
}

func TestEstimateTrendLinearGrowth(t *testing.T) {
	samples := samplesFrom(
		[2]float64{0, 100},
		[2]float64{60, 105},
		[2]float64{120, 110},
	)

	trend, ok := estimateTrend(samples, 3)
	assert.True(t, ok)
	assert.Equal(t, 10.0, trend.MemoryIncreaseMB)
	assert.Equal(t, 2.0, trend.TimeSpanMin)
	assert.Equal(t, 5.0, trend.GrowthRateMBPerMin)
	assert.Equal(t, 110.0, trend.CurrentValueMB)
	assert.Equal(t, 3, trend.SampleCount)
}

func TestEstimateTrendRoundsRate(t *testing.T) {
	// 1 MB over 3 minutes: 0.333... rounds to 0.33.
	samples := samplesFrom([2]float64{0, 100}, [2]float64{180, 101})
	trend, ok := estimateTrend(samples, 2)
	assert.True(t, ok)
	assert.Equal(t, 0.33, trend.GrowthRateMBPerMin)
}

func TestEstimateTrendNegativeGrowth(t *testing.T) {
	samples := samplesFrom([2]float64{0, 200}, [2]float64{60, 150})
	trend, ok := estimateTrend(samples, 2)
	assert.True(t, ok)
	assert.Equal(t, -50.0, trend.MemoryIncreaseMB)
	assert.Equal(t, -50.0, trend.GrowthRateMBPerMin)
}
