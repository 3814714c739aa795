// Package reactive provides the small push-based primitives the engine is
// wired with: a versioned Signal and trailing-edge debounce gates over it.
//
// Subscribers are called synchronously on the goroutine that changed the
// value, after the signal's lock is released, in subscription order.
package reactive

import (
	"sort"
	"sync"
)

// Readable is the read side of a reactive value.
type Readable[T any] interface {
	// Get returns the current value.
	Get() T

	// Subscribe registers fn for every subsequent change and returns a
	// function that cancels the subscription.
	Subscribe(fn func(T)) (unsubscribe func())
}

// Signal holds a value and notifies subscribers when it changes.
type Signal[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64
	equal   func(a, b T) bool
	subs    map[uint64]func(T)
	nextID  uint64
}

// Option configures a Signal.
type Option[T any] func(*Signal[T])

// WithEqual suppresses Set calls whose value equals the current one.
// Without it every Set notifies.
func WithEqual[T any](equal func(a, b T) bool) Option[T] {
	return func(s *Signal[T]) { s.equal = equal }
}

// NewSignal creates a signal holding initial at version 0.
func NewSignal[T any](initial T, opts ...Option[T]) *Signal[T] {
	s := &Signal[T]{
		value: initial,
		subs:  make(map[uint64]func(T)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current value.
func (s *Signal[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Version returns a counter incremented on every accepted Set.
func (s *Signal[T]) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Snapshot returns the value together with its version.
func (s *Signal[T]) Snapshot() (T, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.version
}

// Set stores v and notifies subscribers. Returns false when v was
// suppressed by the signal's equality function.
func (s *Signal[T]) Set(v T) bool {
	s.mu.Lock()
	if s.equal != nil && s.equal(s.value, v) {
		s.mu.Unlock()
		return false
	}
	s.value = v
	s.version++
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
	return true
}

// Update replaces the value with fn(current).
func (s *Signal[T]) Update(fn func(T) T) bool {
	return s.Set(fn(s.Get()))
}

// Subscribe registers fn for every subsequent change.
func (s *Signal[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (s *Signal[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// subscribersLocked copies subscribers in subscription order. Caller holds s.mu.
func (s *Signal[T]) subscribersLocked() []func(T) {
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fns := make([]func(T), len(ids))
	for i, id := range ids {
		fns[i] = s.subs[id]
	}
	return fns
}
