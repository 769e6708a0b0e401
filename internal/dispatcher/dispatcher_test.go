package dispatcher

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// memLogger records log calls so tests can assert on them.
type memLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *memLogger) record(level, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, level+" "+msg)
	l.mu.Unlock()
}

func (l *memLogger) Debug(msg string, _ ...any) { l.record("DEBUG", msg) }
func (l *memLogger) Info(msg string, _ ...any)  { l.record("INFO", msg) }
func (l *memLogger) Error(msg string, _ ...any) { l.record("ERROR", msg) }

// contains reports whether any recorded entry has the given substring,
// polling briefly because buffered kinds log from their drain goroutine.
func (l *memLogger) contains(sub string) bool {
	deadline := time.Now().Add(time.Second)
	for {
		l.mu.Lock()
		for _, e := range l.entries {
			if strings.Contains(e, sub) {
				l.mu.Unlock()
				return true
			}
		}
		l.mu.Unlock()
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newDispatcher(t *testing.T) (*Dispatcher, *memLogger) {
	t.Helper()
	logger := &memLogger{}
	d, err := New(logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, logger
}

func TestDispatchRoutesToHandler(t *testing.T) {
	d, _ := newDispatcher(t)

	var got Event
	d.Register(":SESSION:START:", func(e Event) (any, error) {
		got = e
		return "started", nil
	})

	result, err := d.Dispatch(Event{
		Kind:      ":SESSION:START:",
		SessionID: "sess-1",
		Payload:   []byte(`{"exercise":"pushup"}`),
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result != "started" {
		t.Errorf("result = %v, want started", result)
	}
	if got.SessionID != "sess-1" {
		t.Errorf("handler saw session %q", got.SessionID)
	}
	if string(got.Payload) != `{"exercise":"pushup"}` {
		t.Errorf("handler saw payload %s", got.Payload)
	}
}

func TestDispatchUnknownKind(t *testing.T) {
	d, _ := newDispatcher(t)

	_, err := d.Dispatch(Event{Kind: ":NOPE:"})
	if err == nil {
		t.Fatal("expected an error for an unregistered kind")
	}
	if !strings.Contains(err.Error(), ":NOPE:") {
		t.Errorf("error %q does not name the kind", err)
	}
}

func TestHasHandler(t *testing.T) {
	d, _ := newDispatcher(t)
	d.Register(":FRAME:", func(Event) (any, error) { return nil, nil })

	if !d.HasHandler(":FRAME:") {
		t.Error("registered kind not reported")
	}
	if d.HasHandler(":REP:") {
		t.Error("unregistered kind reported as present")
	}
}

func TestBufferedHandlerRunsAsync(t *testing.T) {
	d, _ := newDispatcher(t)

	var handled atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)
	d.Register(":PERFORMANCE:", func(Event) (any, error) {
		handled.Add(1)
		wg.Done()
		return nil, nil
	}, Buffered(16))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(Event{Kind: ":PERFORMANCE:"})
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
		if result != "queued" {
			t.Fatalf("dispatch %d result = %v, want queued", i, result)
		}
	}

	wg.Wait()
	if handled.Load() != 3 {
		t.Errorf("handled %d events, want 3", handled.Load())
	}
}

func TestBufferedDropsWhenFull(t *testing.T) {
	d, _ := newDispatcher(t)

	release := make(chan struct{})
	d.Register(":PERFORMANCE:", func(Event) (any, error) {
		<-release
		return nil, nil
	}, Buffered(1))
	defer close(release)

	// With the handler stalled, at most one event is in flight and one
	// queued; everything after that must drop.
	var dropped bool
	for i := 0; i < 4; i++ {
		if _, err := d.Dispatch(Event{Kind: ":PERFORMANCE:"}); err != nil {
			dropped = true
		}
	}
	if !dropped {
		t.Error("no dispatch was dropped with a full queue")
	}
}

func TestBlockingWaitsForRoom(t *testing.T) {
	d, _ := newDispatcher(t)

	release := make(chan struct{})
	d.Register(":SESSION:END:", func(Event) (any, error) {
		<-release
		return nil, nil
	}, Buffered(1), Blocking())

	d.Dispatch(Event{Kind: ":SESSION:END:"})
	d.Dispatch(Event{Kind: ":SESSION:END:"})

	done := make(chan struct{})
	go func() {
		d.Dispatch(Event{Kind: ":SESSION:END:"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("third dispatch should have blocked on the full queue")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked dispatch never completed after the queue drained")
	}
}

func TestLoggedRecordsHandling(t *testing.T) {
	d, logger := newDispatcher(t)

	d.Register(":SESSION:START:", func(Event) (any, error) {
		return "ok", nil
	}, Logged())

	d.Dispatch(Event{Kind: ":SESSION:START:", SessionID: "sess-1", Payload: []byte(`{}`)})

	if !logger.contains("DEBUG event in") {
		t.Error("no handling log recorded")
	}
	if !logger.contains("DEBUG event handled") {
		t.Error("no completion log recorded")
	}
}

func TestLoggedRecordsFailure(t *testing.T) {
	d, logger := newDispatcher(t)

	d.Register(":FRAME:", func(Event) (any, error) {
		return nil, errors.New("decode failed")
	}, Logged())

	d.Dispatch(Event{Kind: ":FRAME:"})

	if !logger.contains("ERROR event handler failed") {
		t.Error("handler error was not logged")
	}
}

// A kind that is both buffered and logged logs from the drain
// goroutine, after the dispatch call has already returned "queued".
func TestBufferedLoggedTimesTheWork(t *testing.T) {
	d, logger := newDispatcher(t)

	d.Register(":PERFORMANCE:", func(Event) (any, error) {
		return nil, nil
	}, Buffered(8), Logged())

	result, err := d.Dispatch(Event{Kind: ":PERFORMANCE:"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result != "queued" {
		t.Fatalf("result = %v, want queued", result)
	}

	if !logger.contains("DEBUG event handled") {
		t.Error("drain goroutine never logged the handled event")
	}
}
