// Package sampler produces per-tick performance snapshots for monitored
// targets. The monitor loop treats samplers as unreliable collaborators:
// a tick may return ErrNoData (app not running, poll failed, bridge tool
// stalled) and the loop simply skips it.
package sampler

import (
	"context"
	"errors"
	"sync"

	"github.com/mobileperf/leakmon/sample"
)

// ErrNoData means the tick produced no usable reading. It is a normal
// outcome, not a failure; the caller must not synthesize a zero sample.
var ErrNoData = errors.New("no sample this tick")

// A Sampler produces one performance snapshot per tick.
type Sampler interface {
	Sample(ctx context.Context) (*sample.PerfSnapshot, error)
	Close() error
}

// ReplaySampler plays back a canned snapshot sequence, then reports
// ErrNoData. Used in tests and demo mode.
type ReplaySampler struct {
	mu    sync.Mutex
	snaps []sample.PerfSnapshot
	next  int
}

func NewReplaySampler(snaps []sample.PerfSnapshot) *ReplaySampler {
	return &ReplaySampler{snaps: snaps}
}

func (r *ReplaySampler) Sample(ctx context.Context) (*sample.PerfSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.snaps) {
		return nil, ErrNoData
	}
	snap := r.snaps[r.next]
	r.next++
	return &snap, nil
}

func (r *ReplaySampler) Close() error { return nil }
