//go:build !debug

package channel

// New returns the production queue: buffered at the given capacity,
// clamped to at least zero.
func New[T any](size int) Queue[T] {
	if size < 0 {
		size = 0
	}
	return &Buffered[T]{ch: make(chan T, size)}
}
