package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	samplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leakmon_samples_total",
		Help: "Performance snapshots ingested, per target.",
	}, []string{"target"})

	sampleErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leakmon_sample_errors_total",
		Help: "Sampler ticks that failed (excluding no-data ticks).",
	}, []string{"target"})

	detectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leakmon_detections_total",
		Help: "Leak detection attempts, per target.",
	}, []string{"target"})

	leakEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leakmon_leak_events_total",
		Help: "Emitted leak events, per severity.",
	}, []string{"target", "severity"})

	storageErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leakmon_storage_errors_total",
		Help: "Failed writes to the event store.",
	})

	activeTargets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leakmon_active_targets",
		Help: "Targets currently being monitored.",
	})
)
