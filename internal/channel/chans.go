package channel

// Buffered queues up to a fixed number of values between producers and
// the drain.
type Buffered[T any] struct {
	ch chan T
}

func (b *Buffered[T]) Send(v T) { b.ch <- v }

func (b *Buffered[T]) TrySend(v T) bool {
	select {
	case b.ch <- v:
		return true
	default:
		return false
	}
}

func (b *Buffered[T]) Out() <-chan T { return b.ch }

func (b *Buffered[T]) Len() int { return len(b.ch) }

func (b *Buffered[T]) Close() { close(b.ch) }

// Unbuffered hands every value straight to the drain. Nothing queues,
// and TrySend never reports a drop; debug builds serialize instead.
type Unbuffered[T any] struct {
	ch chan T
}

func (u *Unbuffered[T]) Send(v T) { u.ch <- v }

func (u *Unbuffered[T]) TrySend(v T) bool {
	u.ch <- v
	return true
}

func (u *Unbuffered[T]) Out() <-chan T { return u.ch }

func (u *Unbuffered[T]) Len() int { return 0 }

func (u *Unbuffered[T]) Close() { close(u.ch) }
