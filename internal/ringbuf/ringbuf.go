// Package ringbuf provides a bounded FIFO ring buffer that overwrites its
// oldest element when full. It is safe for concurrent use.
package ringbuf

import "sync"

// Ring holds at most Cap values of T.
type Ring[T any] struct {
	mu   sync.Mutex
	buf  []T
	head int // index of the oldest element
	n    int

	// Overflow counts values evicted to make room.
	overflow uint64
}

// New creates a ring with the given capacity. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. When the ring is full the oldest value is dropped and
// Push returns true.
func (r *Ring[T]) Push(v T) (evicted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n == len(r.buf) {
		var zero T
		r.buf[r.head] = zero
		r.head = (r.head + 1) % len(r.buf)
		r.n--
		r.overflow++
		evicted = true
	}
	r.buf[(r.head+r.n)%len(r.buf)] = v
	r.n++
	return evicted
}

// Pop removes and returns the oldest value.
func (r *Ring[T]) Pop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.n == 0 {
		return zero, false
	}
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return v, true
}

// Drain removes every value and returns them oldest first.
func (r *Ring[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n == 0 {
		return nil
	}
	out := make([]T, r.n)
	var zero T
	for i := range r.n {
		j := (r.head + i) % len(r.buf)
		out[i] = r.buf[j]
		r.buf[j] = zero
	}
	r.head, r.n = 0, 0
	return out
}

// Snapshot returns the values oldest first without removing them.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, r.n)
	for i := range r.n {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the current number of values.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Overflow returns the total number of evicted values.
func (r *Ring[T]) Overflow() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overflow
}
