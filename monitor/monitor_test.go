package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobileperf/leakmon/leak"
	"github.com/mobileperf/leakmon/sample"
	"github.com/mobileperf/leakmon/sampler"
)

// fakeStorage records inserts and can be told to fail event writes.
type fakeStorage struct {
	mu        sync.Mutex
	snapshots []string
	events    []*leak.Event
	failEvent bool
}

func (f *fakeStorage) InsertSnapshot(targetID string, snap *sample.PerfSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, targetID)
	return nil
}

func (f *fakeStorage) InsertLeakEvent(ev *leak.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEvent {
		return errors.New("disk full")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeStorage) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func detectorConfig() leak.Config {
	return leak.Config{
		LeakThresholdMB:     10,
		TimeWindowSec:       600,
		GrowthRateThreshold: 1.0,
		AlertCooldownSec:    300,
		MinSamples:          2,
	}
}

// leakySnapshots builds a replay series growing fast enough to alert.
func leakySnapshots(n int) []sample.PerfSnapshot {
	snaps := make([]sample.PerfSnapshot, 0, n)
	for i := 0; i < n; i++ {
		snaps = append(snaps, sample.PerfSnapshot{
			Timestamp: float64(i * 30),
			MemoryMB:  100 + float64(i)*6, // 12 MB/min
			PID:       42,
			Name:      "LeakyApp",
		})
	}
	return snaps
}

func newTestMonitor(t *testing.T, smp sampler.Sampler, storage Storage, notifier *Notifier) *Monitor {
	t.Helper()
	det, err := leak.NewDetector(detectorConfig(), leak.TargetInfo{Name: "LeakyApp", PID: 42}, zerolog.Nop())
	require.NoError(t, err)
	return NewMonitor("dev1/leaky", smp, det, storage, notifier, time.Second, zerolog.Nop())
}

func TestMonitorCollectDetectsLeak(t *testing.T) {
	storage := &fakeStorage{}
	notifier := NewNotifier()
	smp := sampler.NewReplaySampler(leakySnapshots(5))
	mon := newTestMonitor(t, smp, storage, notifier)

	msgs, cancel := notifier.Subscribe()
	defer cancel()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mon.collect(ctx)
	}

	// Every tick produced a snapshot; exactly one leak event fired
	// (the 10 MB increase threshold crossed at the third sample, the
	// rest suppressed by cooldown).
	require.Len(t, storage.snapshots, 5)
	require.Equal(t, 1, storage.eventCount())

	var snapshots, leaks int
	for done := false; !done; {
		select {
		case msg := <-msgs:
			switch msg.Type {
			case MessageSnapshot:
				snapshots++
			case MessageLeak:
				leaks++
				assert.Equal(t, "dev1/leaky", msg.TargetID)
				assert.Equal(t, leak.SeverityCritical, msg.Event.Severity)
			}
		default:
			done = true
		}
	}
	assert.Equal(t, 5, snapshots)
	assert.Equal(t, 1, leaks)

	assert.Equal(t, "LeakyApp", mon.Latest().Name)
}

func TestMonitorNoDataTickIsSkipped(t *testing.T) {
	storage := &fakeStorage{}
	notifier := NewNotifier()
	smp := sampler.NewReplaySampler(nil) // always ErrNoData
	mon := newTestMonitor(t, smp, storage, notifier)

	mon.collect(context.Background())

	assert.Empty(t, storage.snapshots)
	assert.Equal(t, 0, mon.Detector().SampleCount())
	assert.Nil(t, mon.Latest())
}

func TestMonitorStorageFailureDoesNotBlockNotification(t *testing.T) {
	storage := &fakeStorage{failEvent: true}
	notifier := NewNotifier()
	smp := sampler.NewReplaySampler(leakySnapshots(3))
	mon := newTestMonitor(t, smp, storage, notifier)

	msgs, cancel := notifier.Subscribe()
	defer cancel()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		mon.collect(ctx)
	}

	var leaks int
	for done := false; !done; {
		select {
		case msg := <-msgs:
			if msg.Type == MessageLeak {
				leaks++
			}
		default:
			done = true
		}
	}
	assert.Equal(t, 1, leaks)
	assert.Equal(t, 0, storage.eventCount())
}

func TestManagerStartStopTarget(t *testing.T) {
	storage := &fakeStorage{}
	mg := NewManager(storage, NewNotifier(), leak.DefaultConfig(), time.Hour, zerolog.Nop())

	smp := sampler.NewReplaySampler(nil)
	_, err := mg.StartTarget("dev1/app", leak.TargetInfo{Name: "app"}, smp)
	require.NoError(t, err)

	_, err = mg.StartTarget("dev1/app", leak.TargetInfo{Name: "app"}, smp)
	require.Error(t, err)

	_, ok := mg.Targets().Get("dev1/app")
	assert.True(t, ok)

	assert.True(t, mg.StopTarget("dev1/app"))
	assert.False(t, mg.StopTarget("dev1/app"))

	_, ok = mg.Targets().Get("dev1/app")
	assert.False(t, ok)

	mg.StopAll()
}

func TestManagerUpdateConfigAppliesEverywhere(t *testing.T) {
	storage := &fakeStorage{}
	mg := NewManager(storage, NewNotifier(), leak.DefaultConfig(), time.Hour, zerolog.Nop())
	defer mg.StopAll()

	mon, err := mg.StartTarget("dev1/app", leak.TargetInfo{Name: "app"}, sampler.NewReplaySampler(nil))
	require.NoError(t, err)

	threshold := 42.0
	effective, err := mg.UpdateConfig(leak.ConfigUpdate{LeakThresholdMB: &threshold})
	require.NoError(t, err)
	assert.Equal(t, 42.0, effective.LeakThresholdMB)
	assert.Equal(t, 42.0, mon.Detector().Config().LeakThresholdMB)
	assert.Equal(t, 42.0, mg.Defaults().LeakThresholdMB)
}

func TestManagerUpdateConfigFailsClosed(t *testing.T) {
	storage := &fakeStorage{}
	mg := NewManager(storage, NewNotifier(), leak.DefaultConfig(), time.Hour, zerolog.Nop())
	defer mg.StopAll()

	mon, err := mg.StartTarget("dev1/app", leak.TargetInfo{Name: "app"}, sampler.NewReplaySampler(nil))
	require.NoError(t, err)

	bad := -3.0
	_, err = mg.UpdateConfig(leak.ConfigUpdate{GrowthRateThreshold: &bad})
	require.ErrorIs(t, err, leak.ErrInvalidConfig)
	assert.Equal(t, leak.DefaultConfig(), mon.Detector().Config())
	assert.Equal(t, leak.DefaultConfig(), mg.Defaults())
}
