package relay

import (
	"sync"

	"camstream/rtsp"
)

// Relay fans frames from a single RTSP producer out to any number of
// subscribers. Each subscriber has its own bounded buffer; when a slow
// subscriber's buffer fills, the oldest buffered frame is discarded so the
// producer never blocks and never sees an error. Freshness wins over
// completeness for live video.
type Relay struct {
	capacity int

	mu          sync.Mutex
	subscribers map[int]chan rtsp.Frame
	nextID      int
	closed      bool
}

// NewRelay creates a relay whose subscribers each buffer up to capacity frames
func NewRelay(capacity int) *Relay {
	if capacity < 1 {
		capacity = 1
	}
	return &Relay{
		capacity:    capacity,
		subscribers: make(map[int]chan rtsp.Frame),
	}
}

// Publish delivers a frame to every subscriber without ever blocking.
// Publishing on a closed relay is a no-op.
func (r *Relay) Publish(frame rtsp.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	for _, ch := range r.subscribers {
		select {
		case ch <- frame:
		default:
			// Buffer full: drop the oldest frame to make room
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- frame:
			default:
			}
		}
	}
}

// Subscribe returns a receive channel and a cancel function. The channel is
// closed either by cancel or when the relay itself is closed.
func (r *Relay) Subscribe() (<-chan rtsp.Frame, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan rtsp.Frame, r.capacity)
	if r.closed {
		close(ch)
		return ch, func() {}
	}

	id := r.nextID
	r.nextID++
	r.subscribers[id] = ch

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := r.subscribers[id]; ok {
			delete(r.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// SubscriberCount returns the number of live subscriptions
func (r *Relay) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers)
}

// Close tears down all subscriptions. Safe to call more than once.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, ch := range r.subscribers {
		delete(r.subscribers, id)
		close(ch)
	}
}
