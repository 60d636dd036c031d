package sample

import "math"

// MemorySample is a single memory reading for a monitored target.
// Timestamps are seconds and are expected to be non-decreasing per target.
type MemorySample struct {
	ValueMB   float64
	Timestamp float64
}

// Valid reports whether the sample carries a usable memory value.
// Non-finite and negative readings come from parse glitches in the
// bridge tools and must never enter a buffer.
func (s MemorySample) Valid() bool {
	return !math.IsNaN(s.ValueMB) && !math.IsInf(s.ValueMB, 0) && s.ValueMB >= 0
}

// PerfSnapshot holds the full set of counters produced by one poll tick.
// Jank and BigJank are nil on platforms where FPS is not available.
type PerfSnapshot struct {
	Time        string  `json:"time"`
	Timestamp   float64 `json:"timestamp"`
	CPUPercent  float64 `json:"cpu"`
	MemoryMB    float64 `json:"memory"`
	FPS         int     `json:"fps"`
	Jank        *int    `json:"jank"`
	BigJank     *int    `json:"bigJank"`
	ThreadCount int     `json:"threads"`
	DiskReadKB  float64 `json:"diskReadKb"`
	DiskWriteKB float64 `json:"diskWriteKb"`
	PID         uint32  `json:"pid"`
	Name        string  `json:"name"`
}
