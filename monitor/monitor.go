package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mobileperf/leakmon/leak"
	"github.com/mobileperf/leakmon/sample"
	"github.com/mobileperf/leakmon/sampler"
)

// Storage defines what the monitor needs from the storage backend.
type Storage interface {
	InsertLeakEvent(ev *leak.Event) error
	InsertSnapshot(targetID string, snap *sample.PerfSnapshot) error
}

// Monitor drives one target: it polls the sampler on a fixed cadence,
// fans snapshots out to subscribers, persists them, and feeds the
// memory series into the target's leak detector. All detector calls
// happen on this loop, so samples reach the buffer in poll order.
type Monitor struct {
	id       string
	sampler  sampler.Sampler
	detector *leak.Detector
	storage  Storage
	notifier *Notifier
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	latest *sample.PerfSnapshot
}

// NewMonitor creates a monitor for one target.
func NewMonitor(id string, smp sampler.Sampler, det *leak.Detector, storage Storage, notifier *Notifier, interval time.Duration, log zerolog.Logger) *Monitor {
	return &Monitor{
		id:       id,
		sampler:  smp,
		detector: det,
		storage:  storage,
		notifier: notifier,
		interval: interval,
		log:      log.With().Str("component", "monitor").Str("target", id).Logger(),
	}
}

// ID returns the target identifier.
func (m *Monitor) ID() string { return m.id }

// Detector returns the target's leak detector.
func (m *Monitor) Detector() *leak.Detector { return m.detector }

// Latest returns the most recent snapshot, or nil before the first one.
func (m *Monitor) Latest() *sample.PerfSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// Run polls until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", m.interval).Msg("starting performance monitoring")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.collect(ctx)
		}
	}
}

// collect handles one tick: sample, stream, persist, detect. Errors
// never escape to the loop; a bad tick is logged and skipped.
func (m *Monitor) collect(ctx context.Context) {
	snap, err := m.sampler.Sample(ctx)
	if err != nil {
		if !errors.Is(err, sampler.ErrNoData) {
			sampleErrorsTotal.WithLabelValues(m.id).Inc()
			m.log.Warn().Err(err).Msg("sampler tick failed")
		}
		return
	}

	samplesTotal.WithLabelValues(m.id).Inc()

	m.mu.Lock()
	m.latest = snap
	m.mu.Unlock()

	m.notifier.Publish(Message{Type: MessageSnapshot, TargetID: m.id, Snapshot: snap})

	if err := m.storage.InsertSnapshot(m.id, snap); err != nil {
		storageErrorsTotal.Inc()
		m.log.Error().Err(err).Msg("failed to persist snapshot")
	}

	m.detector.AddMemorySample(snap.MemoryMB, snap.Timestamp)

	detectionsTotal.WithLabelValues(m.id).Inc()
	ev := m.detector.Detect()
	if ev == nil {
		return
	}

	leakEventsTotal.WithLabelValues(m.id, string(ev.Severity)).Inc()
	m.notifier.Publish(Message{Type: MessageLeak, TargetID: m.id, Event: ev})

	// Detection and logging are decoupled: a storage failure is
	// reported but the event has already gone out to subscribers.
	if err := m.storage.InsertLeakEvent(ev); err != nil {
		storageErrorsTotal.Inc()
		m.log.Error().Err(err).Msg("failed to persist leak event")
	}
}

// Manager owns the registry of running monitors and the plumbing they
// share: storage, the notifier, and the detector defaults applied to
// newly started targets.
type Manager struct {
	targets  *TargetMap
	storage  Storage
	notifier *Notifier
	interval time.Duration
	log      zerolog.Logger

	mu       sync.Mutex
	defaults leak.Config
	cancels  map[string]context.CancelFunc
	baseCtx  context.Context
	wg       sync.WaitGroup
}

// NewManager creates a manager with the given detector defaults.
func NewManager(storage Storage, notifier *Notifier, defaults leak.Config, interval time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		targets:  NewTargetMap(),
		storage:  storage,
		notifier: notifier,
		interval: interval,
		log:      log,
		defaults: defaults,
		cancels:  make(map[string]context.CancelFunc),
		baseCtx:  context.Background(),
	}
}

// SetContext binds new monitor goroutines to ctx; cancelling it stops
// every running monitor.
func (mg *Manager) SetContext(ctx context.Context) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.baseCtx = ctx
}

// Targets returns the live registry.
func (mg *Manager) Targets() *TargetMap { return mg.targets }

// Notifier returns the shared notifier.
func (mg *Manager) Notifier() *Notifier { return mg.notifier }

// Defaults returns the config applied to newly started targets.
func (mg *Manager) Defaults() leak.Config {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return mg.defaults
}

// StartTarget creates a detector with the current defaults and begins
// polling smp for the target. The sampler is owned by the manager from
// here on and is closed when the target stops.
func (mg *Manager) StartTarget(id string, info leak.TargetInfo, smp sampler.Sampler) (*Monitor, error) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	if _, exists := mg.targets.Get(id); exists {
		return nil, fmt.Errorf("target %q is already being monitored", id)
	}

	det, err := leak.NewDetector(mg.defaults, info, mg.log)
	if err != nil {
		return nil, err
	}

	mon := NewMonitor(id, smp, det, mg.storage, mg.notifier, mg.interval, mg.log)
	ctx, cancel := context.WithCancel(mg.baseCtx)
	mg.targets.Add(id, mon)
	mg.cancels[id] = cancel
	activeTargets.Inc()

	mg.wg.Add(1)
	go func() {
		defer mg.wg.Done()
		if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			mg.log.Error().Err(err).Str("target", id).Msg("monitor stopped")
		}
		smp.Close()
	}()

	return mon, nil
}

// StopTarget cancels a target's polling loop and removes it from the
// registry. Returns false if the target is unknown.
func (mg *Manager) StopTarget(id string) bool {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	cancel, ok := mg.cancels[id]
	if !ok {
		return false
	}
	cancel()
	delete(mg.cancels, id)
	mg.targets.Remove(id)
	activeTargets.Dec()
	mg.log.Info().Str("target", id).Msg("stopped monitoring")
	return true
}

// StopAll stops every target and waits for the loops to exit.
func (mg *Manager) StopAll() {
	mg.mu.Lock()
	for id, cancel := range mg.cancels {
		cancel()
		mg.targets.Remove(id)
		delete(mg.cancels, id)
		activeTargets.Dec()
	}
	mg.mu.Unlock()
	mg.wg.Wait()
}

// UpdateConfig validates the partial update against the defaults, then
// applies it to the defaults and to every running detector. Fail
// closed: an invalid update changes nothing anywhere.
func (mg *Manager) UpdateConfig(u leak.ConfigUpdate) (leak.Config, error) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	next, err := mg.defaults.Merge(u)
	if err != nil {
		return mg.defaults, err
	}
	mg.defaults = next

	for _, mon := range mg.targets.List() {
		if _, err := mon.Detector().UpdateConfig(u); err != nil {
			// Cannot happen after the merge above validated the same
			// values, but log rather than drop it silently.
			mg.log.Error().Err(err).Str("target", mon.ID()).Msg("failed to apply config")
		}
	}
	return mg.defaults, nil
}

// ResetTarget resets one target's detector. Returns false if unknown.
func (mg *Manager) ResetTarget(id string) bool {
	mon, ok := mg.targets.Get(id)
	if !ok {
		return false
	}
	mon.Detector().Reset()
	return true
}

// ResetAll resets every running detector.
func (mg *Manager) ResetAll() {
	for _, mon := range mg.targets.List() {
		mon.Detector().Reset()
	}
}
