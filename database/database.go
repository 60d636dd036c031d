package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mobileperf/leakmon/leak"
	"github.com/mobileperf/leakmon/sample"
)

// DB handles database operations. It is the one store shared across
// monitored targets; sqlite serializes writers and a single record
// write is atomic, so concurrent detectors can append without
// interleaving corruption.
type DB struct {
	Db *sql.DB
}

// LeakEventRecord is a persisted leak event row.
type LeakEventRecord struct {
	ID             int64
	Timestamp      string
	Severity       string
	CurrentMemory  float64
	GrowthRate     float64
	MemoryIncrease float64
	TimeSpan       float64
	Recommendation string
	TargetName     string
	TargetPID      uint32
	Platform       string
	BundleID       string
	CreatedAt      time.Time
}

// SnapshotRecord is a persisted performance snapshot row.
type SnapshotRecord struct {
	ID          int64
	TargetID    string
	Timestamp   time.Time
	CPUPercent  float64
	MemoryMB    float64
	FPS         int
	Jank        sql.NullInt64
	BigJank     sql.NullInt64
	ThreadCount int
	DiskReadKB  float64
	DiskWriteKB float64
	PID         uint32
	Name        string
}

func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "perf_monitor.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %v", err)
	}

	if err := initLeakEventSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize leak event schema: %v", err)
	}

	if err := initSnapshotSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize snapshot schema: %v", err)
	}

	return &DB{Db: db}, nil
}

func initLeakEventSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS leak_events (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp       TEXT NOT NULL,
		severity        TEXT NOT NULL,
		current_memory  REAL,           -- MB, 1 decimal
		growth_rate     REAL,           -- MB/min, 2 decimals
		memory_increase REAL,           -- MB over the window
		time_span       REAL,           -- minutes
		recommendation  TEXT,
		target_name     TEXT,
		target_pid      INTEGER,
		platform        TEXT,
		bundle_id       TEXT,
		created_at      DATETIME NOT NULL
	);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create leak_events table: %v", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_leak_created ON leak_events(created_at);",
		"CREATE INDEX IF NOT EXISTS idx_leak_severity ON leak_events(severity);",
		"CREATE INDEX IF NOT EXISTS idx_leak_target ON leak_events(target_name, bundle_id);",
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %v", err)
		}
	}

	return nil
}

func initSnapshotSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS perf_samples (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		target_id     TEXT NOT NULL,
		timestamp     DATETIME NOT NULL,
		cpu_percent   REAL,
		memory_mb     REAL,
		fps           INTEGER,
		jank          INTEGER,        -- NULL when FPS is unavailable
		big_jank      INTEGER,
		thread_count  INTEGER,
		disk_read_kb  REAL,
		disk_write_kb REAL,
		pid           INTEGER,
		name          TEXT
	);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create perf_samples table: %v", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_samples_target ON perf_samples(target_id, timestamp);",
		"CREATE INDEX IF NOT EXISTS idx_samples_timestamp ON perf_samples(timestamp);",
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %v", err)
		}
	}

	return nil
}

// InsertLeakEvent appends a leak event record. Records are stored
// oldest-first; retrieval reverses.
func (db *DB) InsertLeakEvent(ev *leak.Event) error {
	query := `
        INSERT INTO leak_events (
            timestamp, severity, current_memory, growth_rate,
            memory_increase, time_span, recommendation,
            target_name, target_pid, platform, bundle_id, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.Db.Exec(query,
		ev.Timestamp,
		string(ev.Severity),
		ev.CurrentMemory,
		ev.GrowthRate,
		ev.MemoryIncrease,
		ev.TimeSpan,
		ev.Recommendation,
		ev.Target.Name,
		ev.Target.PID,
		ev.Target.Platform,
		ev.Target.BundleID,
		time.Now())

	return err
}

// RecentLeakEvents returns up to limit events, most recent first.
func (db *DB) RecentLeakEvents(limit int) ([]LeakEventRecord, error) {
	rows, err := db.Db.Query(`
        SELECT
            id, timestamp, severity, current_memory, growth_rate,
            memory_increase, time_span, recommendation,
            target_name, target_pid, platform, bundle_id, created_at
        FROM leak_events
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leak events: %v", err)
	}
	defer rows.Close()

	var events []LeakEventRecord
	for rows.Next() {
		var rec LeakEventRecord
		err := rows.Scan(
			&rec.ID, &rec.Timestamp, &rec.Severity, &rec.CurrentMemory,
			&rec.GrowthRate, &rec.MemoryIncrease, &rec.TimeSpan,
			&rec.Recommendation, &rec.TargetName, &rec.TargetPID,
			&rec.Platform, &rec.BundleID, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leak event row: %v", err)
		}
		events = append(events, rec)
	}

	return events, rows.Err()
}

// ClearLeakEvents empties the event store.
func (db *DB) ClearLeakEvents() error {
	_, err := db.Db.Exec("DELETE FROM leak_events")
	return err
}

// InsertSnapshot appends one performance snapshot for a target.
func (db *DB) InsertSnapshot(targetID string, snap *sample.PerfSnapshot) error {
	jank := sql.NullInt64{}
	if snap.Jank != nil {
		jank = sql.NullInt64{Int64: int64(*snap.Jank), Valid: true}
	}
	bigJank := sql.NullInt64{}
	if snap.BigJank != nil {
		bigJank = sql.NullInt64{Int64: int64(*snap.BigJank), Valid: true}
	}

	query := `
        INSERT INTO perf_samples (
            target_id, timestamp, cpu_percent, memory_mb, fps,
            jank, big_jank, thread_count, disk_read_kb, disk_write_kb,
            pid, name
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.Db.Exec(query,
		targetID,
		time.Now(),
		snap.CPUPercent,
		snap.MemoryMB,
		snap.FPS,
		jank,
		bigJank,
		snap.ThreadCount,
		snap.DiskReadKB,
		snap.DiskWriteKB,
		snap.PID,
		snap.Name)

	return err
}

// RecentSnapshots returns up to limit snapshots for one target, most
// recent first.
func (db *DB) RecentSnapshots(targetID string, limit int) ([]SnapshotRecord, error) {
	rows, err := db.Db.Query(`
        SELECT
            id, target_id, timestamp, cpu_percent, memory_mb, fps,
            jank, big_jank, thread_count, disk_read_kb, disk_write_kb,
            pid, name
        FROM perf_samples
        WHERE target_id = ?
        ORDER BY id DESC
        LIMIT ?`, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %v", err)
	}
	defer rows.Close()

	var snaps []SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		err := rows.Scan(
			&rec.ID, &rec.TargetID, &rec.Timestamp, &rec.CPUPercent,
			&rec.MemoryMB, &rec.FPS, &rec.Jank, &rec.BigJank,
			&rec.ThreadCount, &rec.DiskReadKB, &rec.DiskWriteKB,
			&rec.PID, &rec.Name,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %v", err)
		}
		snaps = append(snaps, rec)
	}

	return snaps, rows.Err()
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.Db.Close()
}
