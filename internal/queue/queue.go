// Package queue holds the hand-off primitives between the live engine
// and the database writers: append-and-drain batch buffers plus the
// per-session checkpoint map.
package queue

import "sync"

// Buffer collects rows until a writer drains the whole batch. Safe for
// concurrent use.
type Buffer[T any] struct {
	mu   sync.Mutex
	rows []T
}

// NewBuffer creates an empty buffer.
func NewBuffer[T any]() *Buffer[T] {
	return &Buffer[T]{}
}

// Add appends rows to the pending batch.
func (b *Buffer[T]) Add(rows ...T) {
	b.mu.Lock()
	b.rows = append(b.rows, rows...)
	b.mu.Unlock()
}

// Len reports how many rows are waiting.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}

// Drain removes and returns every pending row. Returns nil when the
// buffer is empty. The freed capacity is kept for the next batch.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.rows) == 0 {
		return nil
	}
	out := b.rows
	b.rows = make([]T, 0, cap(out))
	return out
}
