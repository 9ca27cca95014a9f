package execution

import "sync"

// Hub fans status events out to every subscription. Publish never blocks on
// a subscriber: each subscription is a mailbox that the consumer drains at
// its own pace.
//
// Delivery is lossy for intermediate Running events on purpose. A pending
// Running event of a job is replaced by the next one for that job before the
// consumer drains it. Every event carries the full output, so a slow
// consumer still converges on the latest state, and terminal events are
// never replaced.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

func (h *Hub) Publish(ev StatusEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		s.push(ev)
	}
}

// Subscribe registers a new mailbox. After Close the returned subscription
// is already closed.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{
		hub:   h,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.closeLocked()
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		s.mu.Lock()
		s.closeLocked()
		s.mu.Unlock()
		delete(h.subs, s)
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

// Subscription buffers events for one observer. While an event for a job is
// still pending, a newer non-terminal event for the same job replaces it;
// the replacement carries the full output so nothing observable is lost.
// Terminal events are never replaced, and per-job order is preserved.
type Subscription struct {
	hub *Hub

	mu      sync.Mutex
	pending []StatusEvent
	closed  bool

	ready chan struct{}
	done  chan struct{}
}

func (s *Subscription) push(ev StatusEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !ev.Status.Terminal() {
		if i := s.lastPendingFor(ev.JobID); i >= 0 && !s.pending[i].Status.Terminal() {
			s.pending[i] = ev
			s.mu.Unlock()
			return
		}
	}
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *Subscription) lastPendingFor(jobID string) int {
	for i := len(s.pending) - 1; i >= 0; i-- {
		if s.pending[i].JobID == jobID {
			return i
		}
	}
	return -1
}

// Ready receives a value whenever events may be waiting in Drain.
func (s *Subscription) Ready() <-chan struct{} { return s.ready }

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Drain returns and clears the pending events in publication order.
func (s *Subscription) Drain() []StatusEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

func (s *Subscription) Close() {
	s.hub.remove(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
