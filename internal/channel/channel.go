// Package channel provides the event queues behind the dispatcher's
// buffered kinds. Production builds get buffered queues; debug builds
// swap in rendezvous ones so event handling runs in lock step and
// ordering bugs reproduce deterministically.
package channel

// A Queue carries values from dispatching goroutines to one drain
// goroutine.
type Queue[T any] interface {
	// Send queues v, waiting for room if it must.
	Send(v T)

	// TrySend queues v only if there is room and reports whether it
	// did. Callers that must not stall treat false as a drop.
	TrySend(v T) bool

	// Out exposes the drain side.
	Out() <-chan T

	// Len reports how many values are waiting.
	Len() int

	// Close ends the queue. The drain side finishes the backlog and
	// then sees the close.
	Close()
}
