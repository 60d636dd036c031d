package monitor

import (
	"sync"

	"github.com/mobileperf/leakmon/leak"
	"github.com/mobileperf/leakmon/sample"
)

// Message kinds pushed to subscribers.
const (
	MessageSnapshot = "snapshot"
	MessageLeak     = "leak_event"
)

// Message is one item on the outward notification channel: either a
// performance snapshot or an emitted leak event for a target.
type Message struct {
	Type     string               `json:"type"`
	TargetID string               `json:"target_id"`
	Snapshot *sample.PerfSnapshot `json:"snapshot,omitempty"`
	Event    *leak.Event          `json:"event,omitempty"`
}

// Notifier fans messages out to subscribers. Delivery is best-effort:
// a subscriber that falls behind loses messages rather than stalling
// the polling loops.
type Notifier struct {
	mu   sync.RWMutex
	subs map[int]chan Message
	next int
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan Message)}
}

// Subscribe registers a subscriber and returns its channel plus a
// cancel func. The channel is closed on cancel.
func (n *Notifier) Subscribe() (<-chan Message, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan Message, 64)
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if c, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers a message to every subscriber without blocking.
func (n *Notifier) Publish(msg Message) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}
