package sample

import "sync"

// Buffer is a time-windowed history of memory samples for one target,
// ordered by timestamp ascending. Adding a sample evicts everything
// older than the window relative to the newest timestamp, so the buffer
// is bounded by time rather than by count.
type Buffer struct {
	mu        sync.Mutex
	windowSec float64
	samples   []MemorySample
}

// NewBuffer creates a buffer retaining windowSec seconds of history.
func NewBuffer(windowSec float64) *Buffer {
	return &Buffer{windowSec: windowSec}
}

// Add appends a sample and drops retained samples that fall out of the
// window. The single producer per target delivers timestamps in
// non-decreasing order; out-of-order samples are still appended but the
// eviction cutoff only ever moves forward.
func (b *Buffer) Add(s MemorySample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, s)

	cutoff := s.Timestamp - b.windowSec
	i := 0
	for i < len(b.samples) && b.samples[i].Timestamp < cutoff {
		i++
	}
	if i > 0 {
		b.samples = append(b.samples[:0], b.samples[i:]...)
	}
}

// Snapshot returns a copy of the retained samples, oldest first.
func (b *Buffer) Snapshot() []MemorySample {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]MemorySample, len(b.samples))
	copy(out, b.samples)
	return out
}

// Len returns the number of retained samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// SetWindow changes the retention window. Takes effect on the next Add.
func (b *Buffer) SetWindow(windowSec float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.windowSec = windowSec
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = b.samples[:0]
}
