package web

import (
	"time"

	"github.com/mobileperf/leakmon/database"
	"github.com/mobileperf/leakmon/sample"
)

// TargetRow represents an active monitor for the web API.
type TargetRow struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	PID         uint32               `json:"pid"`
	Platform    string               `json:"platform"`
	BundleID    string               `json:"bundleId"`
	SampleCount int                  `json:"sampleCount"`
	Latest      *sample.PerfSnapshot `json:"latest,omitempty"`
}

// EventRow represents a persisted leak event for the web API.
type EventRow struct {
	ID             int64     `json:"id"`
	Timestamp      string    `json:"timestamp"`
	Severity       string    `json:"severity"`
	CurrentMemory  float64   `json:"currentMemory"`
	GrowthRate     float64   `json:"growthRate"`
	MemoryIncrease float64   `json:"memoryIncrease"`
	TimeSpan       float64   `json:"timeSpan"`
	Recommendation string    `json:"recommendation"`
	TargetName     string    `json:"targetName"`
	TargetPID      uint32    `json:"targetPid"`
	Platform       string    `json:"platform"`
	BundleID       string    `json:"bundleId"`
	CreatedAt      time.Time `json:"createdAt"`
}

func eventRow(rec database.LeakEventRecord) EventRow {
	return EventRow{
		ID:             rec.ID,
		Timestamp:      rec.Timestamp,
		Severity:       rec.Severity,
		CurrentMemory:  rec.CurrentMemory,
		GrowthRate:     rec.GrowthRate,
		MemoryIncrease: rec.MemoryIncrease,
		TimeSpan:       rec.TimeSpan,
		Recommendation: rec.Recommendation,
		TargetName:     rec.TargetName,
		TargetPID:      rec.TargetPID,
		Platform:       rec.Platform,
		BundleID:       rec.BundleID,
		CreatedAt:      rec.CreatedAt,
	}
}

// SampleRow represents a persisted performance snapshot for the web API.
type SampleRow struct {
	ID          int64     `json:"id"`
	TargetID    string    `json:"targetId"`
	Timestamp   time.Time `json:"timestamp"`
	CPUPercent  float64   `json:"cpu"`
	MemoryMB    float64   `json:"memory"`
	FPS         int       `json:"fps"`
	Jank        *int64    `json:"jank"`
	BigJank     *int64    `json:"bigJank"`
	ThreadCount int       `json:"threads"`
	DiskReadKB  float64   `json:"diskReadKb"`
	DiskWriteKB float64   `json:"diskWriteKb"`
	PID         uint32    `json:"pid"`
	Name        string    `json:"name"`
}

func sampleRow(rec database.SnapshotRecord) SampleRow {
	row := SampleRow{
		ID:          rec.ID,
		TargetID:    rec.TargetID,
		Timestamp:   rec.Timestamp,
		CPUPercent:  rec.CPUPercent,
		MemoryMB:    rec.MemoryMB,
		FPS:         rec.FPS,
		ThreadCount: rec.ThreadCount,
		DiskReadKB:  rec.DiskReadKB,
		DiskWriteKB: rec.DiskWriteKB,
		PID:         rec.PID,
		Name:        rec.Name,
	}
	if rec.Jank.Valid {
		v := rec.Jank.Int64
		row.Jank = &v
	}
	if rec.BigJank.Valid {
		v := rec.BigJank.Int64
		row.BigJank = &v
	}
	return row
}

// startTargetRequest is the body of POST /api/targets.
type startTargetRequest struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Platform string   `json:"platform"`
	BundleID string   `json:"bundleId"`
	PID      int32    `json:"pid,omitempty"`
	Command  string   `json:"command,omitempty"`
	Args     []string `json:"args,omitempty"`
}
