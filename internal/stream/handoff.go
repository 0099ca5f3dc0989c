// Package stream decouples frame acquisition from frame processing. A
// Handoff sits between the two: acquisition never waits for processing, and
// when processing falls behind the oldest queued frame is discarded.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handoff is a bounded drop-oldest queue. A capacity of 1 behaves as a
// latest-frame slot.
type Handoff[T any] struct {
	mu      sync.Mutex
	items   chan T
	closed  bool
	dropped atomic.Int64
}

// NewHandoff creates a hand-off holding at most capacity items (minimum 1).
func NewHandoff[T any](capacity int) *Handoff[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Handoff[T]{items: make(chan T, capacity)}
}

// Put enqueues v without blocking. When the queue is full the oldest item
// is discarded and Put reports true. Put after Close discards v.
func (h *Handoff[T]) Put(v T) (droppedOldest bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	select {
	case h.items <- v:
		return false
	default:
	}
	select {
	case <-h.items:
		droppedOldest = true
		h.dropped.Add(1)
	default:
	}
	// Only Put sends and mu is held, so there is room now.
	h.items <- v
	return droppedOldest
}

// Take blocks until an item is available, the hand-off is closed and
// drained, or ctx is done. ok is false in the latter two cases.
func (h *Handoff[T]) Take(ctx context.Context) (v T, ok bool) {
	select {
	case v, ok = <-h.items:
		return v, ok
	case <-ctx.Done():
		return v, false
	}
}

// Close stops accepting items. Queued items can still be taken.
func (h *Handoff[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.items)
}

// Len returns the number of queued items.
func (h *Handoff[T]) Len() int { return len(h.items) }

// Cap returns the capacity.
func (h *Handoff[T]) Cap() int { return cap(h.items) }

// Dropped returns how many items were discarded to make room.
func (h *Handoff[T]) Dropped() int64 { return h.dropped.Load() }
