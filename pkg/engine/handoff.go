package engine

import (
	"sync"

	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// Handoff is a single-slot mailbox between the perception provider and the
// processing goroutine. Only the newest frame is kept: offering a frame
// while another is still waiting replaces it and counts a drop. The
// consumer selects on Ready and Done and calls Take.
type Handoff struct {
	mu      sync.Mutex
	frame   tracking.RawFrame
	full    bool
	closed  bool
	dropped uint64

	ready chan struct{}
	done  chan struct{}
}

// NewHandoff creates an empty handoff.
func NewHandoff() *Handoff {
	return &Handoff{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Offer stores f, replacing any undelivered frame. It never blocks and
// reports whether a frame was replaced. Offers after Close are ignored.
func (h *Handoff) Offer(f tracking.RawFrame) (replaced bool) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	replaced = h.full
	if replaced {
		h.dropped++
	}
	h.frame, h.full = f, true
	h.mu.Unlock()

	select {
	case h.ready <- struct{}{}:
	default:
	}
	return replaced
}

// Ready is signalled after an Offer. A signal may be stale; use Take.
func (h *Handoff) Ready() <-chan struct{} {
	return h.ready
}

// Take removes the waiting frame, if any.
func (h *Handoff) Take() (tracking.RawFrame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return tracking.RawFrame{}, false
	}
	f := h.frame
	h.frame, h.full = tracking.RawFrame{}, false
	return f, true
}

// Dropped returns how many frames were replaced before delivery.
func (h *Handoff) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close discards any waiting frame and wakes waiters.
func (h *Handoff) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.full = false
	h.frame = tracking.RawFrame{}
	close(h.done)
}

// Done is closed by Close.
func (h *Handoff) Done() <-chan struct{} {
	return h.done
}
