package ipc

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a bounded channel with overwrite-oldest semantics.
//
// Producers never block: when the buffer is full the oldest element is
// discarded. Sending after Close is a no-op instead of a panic.
//
//	rc := NewRingChannel[Command](3)
//	for i := 0; i < 10; i++ {
//	    rc.Send(cmd)
//	}
//	for c := range rc.C() {
//	    // only the last 3 commands arrive
//	}
type RingChannel[T any] struct {
	mu      sync.Mutex // serializes producers and Close
	closed  bool
	ch      chan T
	metrics Metrics
}

// NewRingChannel creates a RingChannel with the given capacity. A
// non-positive capacity is raised to 1.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. It is closed by Close.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full. It
// reports whether an element was dropped to make room and whether v was
// accepted at all.
func (rc *RingChannel[T]) Send(v T) (dropped, accepted bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return false, false
	}

	select {
	case rc.ch <- v:
	default:
		select {
		case <-rc.ch:
			rc.metrics.addOverwritten(1)
			dropped = true
		default:
		}
		// Producers are serialized and the consumer only removes, so there is
		// room now.
		rc.ch <- v
	}
	rc.metrics.addWritten(1)
	return dropped, true
}

func (rc *RingChannel[T]) Len() int { return len(rc.ch) }
func (rc *RingChannel[T]) Cap() int { return cap(rc.ch) }

// Close closes the receive side. Further sends are ignored.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
}

// GetMetrics returns a snapshot of the counters.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
	}
}

// Metrics counts accepted and overwritten elements.
type Metrics struct {
	Written     int64
	Overwritten int64
}

func (m *Metrics) addWritten(n int) {
	atomic.AddInt64(&m.Written, int64(n))
}

func (m *Metrics) addOverwritten(n int) {
	atomic.AddInt64(&m.Overwritten, int64(n))
}
