package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/repcoach/engine/internal/channel"
)

const instrumentationName = "github.com/repcoach/engine/internal/dispatcher"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Event is one routed message: a kind, the session it belongs to, and
// the raw payload the handler decodes.
type Event struct {
	Kind      string
	SessionID string
	Payload   json.RawMessage
	Timestamp time.Time
}

// HandlerFunc consumes an event and returns the handler's result.
type HandlerFunc func(Event) (any, error)

// Logger is the small logging surface the dispatcher needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Option configures one Register call.
type Option func(*regOpts)

type regOpts struct {
	queueSize int
	blocking  bool
	logged    bool
}

// Buffered detaches the handler behind a queue of the given size; the
// caller gets "queued" back and a drain goroutine does the work.
func Buffered(size int) Option {
	return func(o *regOpts) {
		o.queueSize = size
	}
}

// Blocking makes a buffered kind wait for queue room instead of
// dropping when it is full.
func Blocking() Option {
	return func(o *regOpts) {
		o.blocking = true
	}
}

// Logged wraps the handler with debug/error logging and timing.
func Logged() Option {
	return func(o *regOpts) {
		o.logged = true
	}
}

// Dispatcher routes events to their registered handlers and counts what
// happens to them.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	queueDepth metric.Int64ObservableGauge
	processed  metric.Int64Counter
	dropped    metric.Int64Counter

	mu     sync.RWMutex
	queues map[string]channel.Queue[Event]
}

// New creates a Dispatcher. Metrics come from the global OTel meter,
// which is a no-op until a provider is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		queues:   make(map[string]channel.Queue[Event]),
		logger:   logger,
	}
	if err := d.initMetrics(meter()); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) initMetrics(m metric.Meter) error {
	var err error

	d.queueDepth, err = m.Int64ObservableGauge(
		"engine.events.queue.size",
		metric.WithDescription("Events waiting in each kind's queue"),
	)
	if err != nil {
		return fmt.Errorf("queue depth gauge: %w", err)
	}

	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		for kind, q := range d.queues {
			o.ObserveInt64(d.queueDepth, int64(q.Len()),
				metric.WithAttributes(attribute.String("kind", kind)))
		}
		return nil
	}, d.queueDepth)
	if err != nil {
		return fmt.Errorf("queue depth callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"engine.events.processed",
		metric.WithDescription("Events drained and handled"),
	)
	if err != nil {
		return fmt.Errorf("processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"engine.events.dropped",
		metric.WithDescription("Events dropped on a full queue"),
	)
	if err != nil {
		return fmt.Errorf("dropped counter: %w", err)
	}

	return nil
}

// Register installs the handler for an event kind. Logged wraps the
// handler itself, so a kind that is both buffered and logged reports
// the real handling time from the drain goroutine, not the enqueue.
func (d *Dispatcher) Register(kind string, h HandlerFunc, opts ...Option) {
	var o regOpts
	for _, opt := range opts {
		opt(&o)
	}

	if o.logged {
		h = d.logWrap(kind, h)
	}
	if o.queueSize > 0 {
		h = d.queueWrap(kind, o.queueSize, o.blocking, h)
	}

	d.handlers[kind] = h
}

// Dispatch routes one event. Unregistered kinds are an error.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown event kind: %s", e.Kind)
	}
	return h(e)
}

// HasHandler reports whether a kind is registered.
func (d *Dispatcher) HasHandler(kind string) bool {
	_, ok := d.handlers[kind]
	return ok
}

// queueWrap detaches h behind a channel and starts its drain goroutine.
func (d *Dispatcher) queueWrap(kind string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	q := channel.New[Event](size)

	d.mu.Lock()
	d.queues[kind] = q
	d.mu.Unlock()

	kindAttr := metric.WithAttributes(attribute.String("kind", kind))

	go func() {
		for e := range q.Out() {
			h(e)
			d.processed.Add(context.Background(), 1, kindAttr)
		}
	}()

	if blocking {
		return func(e Event) (any, error) {
			q.Send(e)
			return "queued", nil
		}
	}
	return func(e Event) (any, error) {
		if !q.TrySend(e) {
			d.dropped.Add(context.Background(), 1, kindAttr)
			return nil, fmt.Errorf("queue full: %s", kind)
		}
		return "queued", nil
	}
}

func (d *Dispatcher) logWrap(kind string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("event in", "kind", kind, "session", e.SessionID, "bytes", len(e.Payload))

		result, err := h(e)
		if err != nil {
			d.logger.Error("event handler failed", "kind", kind, "duration", time.Since(start), "error", err)
			return result, err
		}

		d.logger.Debug("event handled", "kind", kind, "duration", time.Since(start))
		return result, err
	}
}
