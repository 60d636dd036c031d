package monitor

import "sync"

// TargetMap is a thread-safe registry of active monitors keyed by
// target ID (device serial plus bundle or package identifier).
type TargetMap struct {
	targets map[string]*Monitor
	mu      sync.RWMutex
}

// NewTargetMap creates a new target map.
func NewTargetMap() *TargetMap {
	return &TargetMap{
		targets: make(map[string]*Monitor),
	}
}

// Add adds or replaces a monitor in the map.
func (tm *TargetMap) Add(id string, m *Monitor) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.targets[id] = m
}

// Get retrieves a monitor from the map.
func (tm *TargetMap) Get(id string) (*Monitor, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	m, exists := tm.targets[id]
	return m, exists
}

// Remove removes a monitor from the map.
func (tm *TargetMap) Remove(id string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	delete(tm.targets, id)
}

// List returns all registered monitors.
func (tm *TargetMap) List() []*Monitor {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	monitors := make([]*Monitor, 0, len(tm.targets))
	for _, m := range tm.targets {
		monitors = append(monitors, m)
	}
	return monitors
}
