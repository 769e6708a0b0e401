//go:build debug

package channel

// New ignores size and returns a rendezvous queue, so in debug builds
// every dispatched event is handled before the producer moves on.
func New[T any](size int) Queue[T] {
	return &Unbuffered[T]{ch: make(chan T)}
}
