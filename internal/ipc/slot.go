package ipc

import "sync"

// Slot is a single-value broadcast cell. Readers that fall behind only ever
// see the latest value.
type Slot[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64
	changed chan struct{}
}

func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{changed: make(chan struct{})}
}

// Publish stores v and wakes every waiting reader.
func (s *Slot[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = v
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
}

// Load returns the current value and its version. Version 0 means nothing
// has been published yet.
func (s *Slot[T]) Load() (T, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.version
}

// Changed returns a channel that is closed once the slot holds a version
// newer than seen.
func (s *Slot[T]) Changed(seen uint64) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.version != seen {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.changed
}
