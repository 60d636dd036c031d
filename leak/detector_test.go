package leak

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDetector(t *testing.T, cfg Config) *Detector {
	t.Helper()
	d, err := NewDetector(cfg, TargetInfo{
		Name:     "TestApp",
		PID:      12345,
		Platform: "ios",
		BundleID: "com.test.app",
	}, zerolog.Nop())
	require.NoError(t, err)
	d.now = func() time.Time {
		return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return d
}

// feed pushes value(i) at timestamp(i) for i in [0,n) and returns every
// emitted event.
func feed(d *Detector, n int, timestamp, value func(i int) float64) []*Event {
	var events []*Event
	for i := 0; i < n; i++ {
		d.AddMemorySample(value(i), timestamp(i))
		if ev := d.Detect(); ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

func TestDetectorFlatSignalNoVerdict(t *testing.T) {
	cfg := Config{
		LeakThresholdMB:     10,
		TimeWindowSec:       150,
		GrowthRateThreshold: 1.0,
		AlertCooldownSec:    300,
		MinSamples:          10,
	}
	d := newTestDetector(t, cfg)

	// Constant baseline with small alternating jitter.
	events := feed(d, 20,
		func(i int) float64 { return float64(i * 10) },
		func(i int) float64 {
			if i%2 == 0 {
				return 100.2
			}
			return 99.8
		})

	assert.Empty(t, events)
}

func TestDetectorLinearLeakScenario(t *testing.T) {
	// 15 samples, one every 10s, 0.8 MB growth per sample. The increase
	// crosses 10 MB at the 14th sample; the induced 4.8 MB/min rate is
	// 4.8x the threshold, so the single emitted event is CRITICAL.
	cfg := Config{
		LeakThresholdMB:     10,
		TimeWindowSec:       150,
		GrowthRateThreshold: 1.0,
		AlertCooldownSec:    300,
		MinSamples:          10,
	}
	d := newTestDetector(t, cfg)

	events := feed(d, 15,
		func(i int) float64 { return float64(i * 10) },
		func(i int) float64 { return 100 + float64(i)*0.8 })

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, SeverityCritical, ev.Severity)
	assert.Equal(t, 4.8, ev.GrowthRate)
	assert.Equal(t, 110.4, ev.CurrentMemory)
	assert.Equal(t, 10.4, ev.MemoryIncrease)
	assert.Equal(t, "TestApp", ev.Target.Name)
	assert.Equal(t, "com.test.app", ev.Target.BundleID)
	assert.Equal(t, "2024-06-01 12:00:00", ev.Timestamp)
}

func TestDetectorRepeatedDetectDoesNotDoubleAlert(t *testing.T) {
	cfg := Config{
		LeakThresholdMB:     10,
		TimeWindowSec:       600,
		GrowthRateThreshold: 1.0,
		AlertCooldownSec:    300,
		MinSamples:          2,
	}
	d := newTestDetector(t, cfg)

	d.AddMemorySample(100, 0)
	d.AddMemorySample(120, 60)

	require.NotNil(t, d.Detect())
	// Same buffer, cooldown armed: suppressed.
	assert.Nil(t, d.Detect())
	assert.Nil(t, d.Detect())
}

func TestDetectorCooldownSuppression(t *testing.T) {
	// Growth at 2 MB/min, one sample per minute. The first alert fires
	// once 10 MB have accumulated; qualifying ticks within the 300s
	// cooldown stay silent and the next alert lands 5 minutes later.
	cfg := Config{
		LeakThresholdMB:     10,
		TimeWindowSec:       100000,
		GrowthRateThreshold: 1.0,
		AlertCooldownSec:    300,
		MinSamples:          2,
	}
	d := newTestDetector(t, cfg)

	events := feed(d, 11,
		func(i int) float64 { return float64(i * 60) },
		func(i int) float64 { return 100 + float64(i)*2 })

	require.Len(t, events, 2)
}

func TestDetectorResetRestoresFreshBehavior(t *testing.T) {
	cfg := Config{
		LeakThresholdMB:     10,
		TimeWindowSec:       150,
		GrowthRateThreshold: 1.0,
		AlertCooldownSec:    300,
		MinSamples:          10,
	}
	run := func(d *Detector) []*Event {
		return feed(d, 15,
			func(i int) float64 { return float64(i * 10) },
			func(i int) float64 { return 100 + float64(i)*0.8 })
	}

	fresh := newTestDetector(t, cfg)
	want := run(fresh)

	reused := newTestDetector(t, cfg)
	run(reused)
	reused.Reset()
	require.Equal(t, 0, reused.SampleCount())
	got := run(reused)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Severity, got[i].Severity)
		assert.Equal(t, want[i].GrowthRate, got[i].GrowthRate)
		assert.Equal(t, want[i].MemoryIncrease, got[i].MemoryIncrease)
	}
}

func TestDetectorDropsMalformedSamples(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())

	d.AddMemorySample(-5, 10)
	d.AddMemorySample(math.NaN(), 20)
	d.AddMemorySample(math.Inf(1), 30)
	assert.Equal(t, 0, d.SampleCount())

	d.AddMemorySample(100, 40)
	assert.Equal(t, 1, d.SampleCount())
}

func TestDetectorConfigUpdate(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())

	threshold := 25.0
	cfg, err := d.UpdateConfig(ConfigUpdate{LeakThresholdMB: &threshold})
	require.NoError(t, err)
	assert.Equal(t, 25.0, cfg.LeakThresholdMB)
	// Unspecified fields unchanged.
	assert.Equal(t, DefaultConfig().MinSamples, cfg.MinSamples)
}

func TestDetectorConfigUpdateRejectsNonPositive(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())
	before := d.Config()

	bad := -1
	_, err := d.UpdateConfig(ConfigUpdate{TimeWindowSec: &bad})
	require.ErrorIs(t, err, ErrInvalidConfig)

	// Fail closed: previous config still in force.
	assert.Equal(t, before, d.Config())
}

func TestNewDetectorRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 0
	_, err := NewDetector(cfg, TargetInfo{}, zerolog.Nop())
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAlertGate(t *testing.T) {
	var g alertGate

	assert.True(t, g.admit(1000, 300))
	assert.False(t, g.admit(1100, 300))
	assert.False(t, g.admit(1299, 300))
	assert.True(t, g.admit(1300, 300))

	g.reset()
	assert.True(t, g.admit(1301, 300))
}
