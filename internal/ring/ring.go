// Package ring provides a fixed-capacity ring that overwrites its oldest
// element once full.
package ring

// Ring holds up to Cap() values in insertion order.
type Ring[T any] struct {
	items []T
	start int
	size  int
}

// New returns an empty ring. It panics if capacity is not positive.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ring: capacity must be greater than zero")
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when the ring is full.
// It reports whether an element was evicted.
func (r *Ring[T]) Push(v T) bool {
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = v
		r.size++
		return false
	}
	r.items[r.start] = v
	r.start = (r.start + 1) % len(r.items)
	return true
}

// At returns the i-th element, 0 being the oldest.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.size {
		panic("ring: index out of range")
	}
	return r.items[(r.start+i)%len(r.items)]
}

// Last returns the newest element.
func (r *Ring[T]) Last() T {
	return r.At(r.size - 1)
}

func (r *Ring[T]) Len() int { return r.size }
func (r *Ring[T]) Cap() int { return len(r.items) }

// Full reports whether the next Push evicts.
func (r *Ring[T]) Full() bool { return r.size == len(r.items) }

// Slice copies the elements out, oldest first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}

// Clear empties the ring and keeps its storage.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.start = 0
	r.size = 0
}
