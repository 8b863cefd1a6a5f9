// Bounded FIFO ring buffers backing path, event, and update history
package history

import "sync"

// Ring is a fixed-capacity FIFO buffer. Append always succeeds; once the
// buffer is full the oldest element is evicted first. Safe for concurrent
// use.
type Ring[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
	size  int
	total uint64
}

// NewRing creates a ring with the given capacity. Capacity must be
// positive.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Append adds an item, evicting the oldest if the ring is at capacity.
func (r *Ring[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	if r.size < len(r.items) {
		r.items[(r.head+r.size)%len(r.items)] = item
		r.size++
		return
	}
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
}

// ReadAll returns all items in insertion order.
func (r *Ring[T]) ReadAll() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

// Tail returns up to n most recent items in insertion order. n <= 0 returns
// everything.
func (r *Ring[T]) Tail(n int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]T, n)
	start := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.items[(r.head+start+i)%len(r.items)]
	}
	return out
}

// Since returns the still-retained items appended after sequence seq,
// oldest first, together with the current sequence. The sequence counts
// every Append ever made and keeps growing after eviction starts, so
// incremental readers never stall on a full ring. Entries evicted before
// the caller drained them are lost to that caller.
func (r *Ring[T]) Since(seq uint64) ([]T, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fresh := r.total - seq
	if seq > r.total || fresh > uint64(r.size) {
		fresh = uint64(r.size)
	}
	n := int(fresh)
	out := make([]T, n)
	start := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.items[(r.head+start+i)%len(r.items)]
	}
	return out, r.total
}

// Len returns the number of stored items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Clear empties the ring.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}
