/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ring provides a fixed-capacity FIFO deque. Pushing onto a full
// ring evicts the oldest element in O(1).
package ring

// Ring is not safe for concurrent use; owners guard it with their own lock.
type Ring[T any] struct {
	items    []T
	capacity int
	head     int // index of the oldest element
	count    int
}

// New creates a ring holding at most capacity elements.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends v as the newest element, evicting the oldest when full.
// It reports whether an element was evicted.
func (r *Ring[T]) Push(v T) bool {
	if r.count < r.capacity {
		r.items[(r.head+r.count)%r.capacity] = v
		r.count++
		return false
	}
	r.items[r.head] = v
	r.head = (r.head + 1) % r.capacity
	return true
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return r.capacity }

// At returns the i-th element, oldest first. It panics when i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		panic("ring: index out of range")
	}
	return r.items[(r.head+i)%r.capacity]
}

// Items returns a copy of the contents, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.items[(r.head+i)%r.capacity]
	}
	return out
}

// Last returns up to n of the newest elements, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.items[(r.head+start+i)%r.capacity]
	}
	return out
}

// RemoveFunc drops every element for which match returns true, keeping order.
// It returns the number of removed elements.
func (r *Ring[T]) RemoveFunc(match func(T) bool) int {
	kept := 0
	var zero T
	for i := 0; i < r.count; i++ {
		v := r.items[(r.head+i)%r.capacity]
		if match(v) {
			continue
		}
		r.items[(r.head+kept)%r.capacity] = v
		kept++
	}
	removed := r.count - kept
	for i := kept; i < r.count; i++ {
		r.items[(r.head+i)%r.capacity] = zero
	}
	r.count = kept
	return removed
}

// Clear empties the ring.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.count = 0
}
