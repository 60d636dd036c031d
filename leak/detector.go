package leak

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mobileperf/leakmon/sample"
)

// TargetInfo identifies the monitored application instance an event
// belongs to.
type TargetInfo struct {
	Name     string `json:"name"`
	PID      uint32 `json:"pid"`
	Platform string `json:"platform"`
	BundleID string `json:"bundle_id"`
}

// Event is one emitted leak alert. Immutable once created.
type Event struct {
	Timestamp      string     `json:"timestamp"`
	Severity       Severity   `json:"severity"`
	CurrentMemory  float64    `json:"current_memory"`
	GrowthRate     float64    `json:"growth_rate"`
	MemoryIncrease float64    `json:"memory_increase"`
	TimeSpan       float64    `json:"time_span"`
	Recommendation string     `json:"recommendation"`
	Target         TargetInfo `json:"target"`
}

// Detector watches one target's memory series for sustained growth.
// Each monitored target owns its own Detector; the only state shared
// across targets is the event store.
type Detector struct {
	mu     sync.Mutex
	cfg    Config
	buf    *sample.Buffer
	gate   alertGate
	target TargetInfo
	log    zerolog.Logger

	now func() time.Time
}

// NewDetector creates a detector for one target. cfg must validate.
func NewDetector(cfg Config, target TargetInfo, log zerolog.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg:    cfg,
		buf:    sample.NewBuffer(float64(cfg.TimeWindowSec)),
		target: target,
		log:    log.With().Str("component", "leak-detector").Str("target", target.Name).Logger(),
		now:    time.Now,
	}, nil
}

// AddMemorySample ingests one reading. Non-finite or negative values
// are dropped so a parse glitch can never corrupt the buffer.
func (d *Detector) AddMemorySample(valueMB, timestamp float64) {
	s := sample.MemorySample{ValueMB: valueMB, Timestamp: timestamp}
	if !s.Valid() {
		d.log.Debug().Float64("value_mb", valueMB).Msg("dropping malformed memory sample")
		return
	}
	d.mu.Lock()
	d.buf.Add(s)
	d.mu.Unlock()
}

// Detect evaluates the current window and returns a leak event, or nil
// when there is no verdict: not enough samples, no sustained growth, or
// a qualifying condition suppressed by the alert cooldown.
func (d *Detector) Detect() *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	samples := d.buf.Snapshot()
	trend, ok := estimateTrend(samples, d.cfg.MinSamples)
	if !ok {
		return nil
	}

	v, ok := classify(trend, d.cfg)
	if !ok {
		return nil
	}

	// Gate on sample time, not wall time, so replayed series behave
	// the same as live ones.
	if !d.gate.admit(samples[len(samples)-1].Timestamp, d.cfg.AlertCooldownSec) {
		return nil
	}

	ev := &Event{
		Timestamp:      d.now().Format("2006-01-02 15:04:05"),
		Severity:       v.severity,
		CurrentMemory:  round1(trend.CurrentValueMB),
		GrowthRate:     trend.GrowthRateMBPerMin,
		MemoryIncrease: round1(trend.MemoryIncreaseMB),
		TimeSpan:       round2(trend.TimeSpanMin),
		Recommendation: v.recommendation,
		Target:         d.target,
	}

	d.log.Warn().
		Str("severity", string(ev.Severity)).
		Float64("current_memory_mb", ev.CurrentMemory).
		Float64("growth_rate_mb_per_min", ev.GrowthRate).
		Float64("memory_increase_mb", ev.MemoryIncrease).
		Float64("time_span_min", ev.TimeSpan).
		Msg("memory leak detected")

	return ev
}

// Config returns the current configuration.
func (d *Detector) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// UpdateConfig merges a partial update into the current config and
// returns the effective config. Invalid values are rejected as a whole
// and the previous config stays in force.
func (d *Detector) UpdateConfig(u ConfigUpdate) (Config, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := d.cfg.Merge(u)
	if err != nil {
		return d.cfg, err
	}
	d.cfg = next
	d.buf.SetWindow(float64(next.TimeWindowSec))
	d.log.Info().
		Float64("leak_threshold_mb", next.LeakThresholdMB).
		Int("time_window_sec", next.TimeWindowSec).
		Float64("growth_rate_threshold", next.GrowthRateThreshold).
		Int("alert_cooldown_sec", next.AlertCooldownSec).
		Int("min_samples", next.MinSamples).
		Msg("detector config updated")
	return d.cfg, nil
}

// Target returns the target descriptor this detector was built for.
func (d *Detector) Target() TargetInfo {
	return d.target
}

// SampleCount returns the number of samples currently retained.
func (d *Detector) SampleCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.Len()
}

// Reset clears the sample buffer and disarms the alert cooldown, so
// the detector behaves like a freshly constructed one.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf.Clear()
	d.gate.reset()
	d.log.Info().Msg("detector reset")
}
