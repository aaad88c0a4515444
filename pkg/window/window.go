// Package window provides a fixed-capacity, oldest-evicted sequence used to
// bound retained history.
package window

// Window keeps at most Cap() values in insertion order. Once full, every Append
// evicts exactly one value from the head.
//
// Window is not safe for concurrent use. Owners are expected to guard it.
type Window[T any] struct {
	buf  []T
	head int
	size int
}

// New creates a window holding up to capacity values. A capacity lower than one
// is treated as one.
func New[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{buf: make([]T, capacity)}
}

// Append adds v to the tail, evicting the oldest value when the window is full.
// It reports whether a value was evicted.
func (w *Window[T]) Append(v T) bool {
	if w.size < len(w.buf) {
		w.buf[(w.head+w.size)%len(w.buf)] = v
		w.size++
		return false
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	return true
}

// Clear empties the window. Capacity is retained.
func (w *Window[T]) Clear() {
	var zero T
	for i := range w.buf {
		w.buf[i] = zero
	}
	w.head = 0
	w.size = 0
}

func (w *Window[T]) Len() int {
	return w.size
}

func (w *Window[T]) Cap() int {
	return len(w.buf)
}

// Values returns a copy of the retained values, oldest first.
func (w *Window[T]) Values() []T {
	out := make([]T, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// First returns the oldest retained value.
func (w *Window[T]) First() (T, bool) {
	if w.size == 0 {
		var zero T
		return zero, false
	}
	return w.buf[w.head], true
}

// Last returns the most recently appended value.
func (w *Window[T]) Last() (T, bool) {
	if w.size == 0 {
		var zero T
		return zero, false
	}
	return w.buf[(w.head+w.size-1)%len(w.buf)], true
}
