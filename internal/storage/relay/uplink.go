package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/repcoach/engine/pkg/streaming"
)

const (
	outboxSize     = 10_000
	writeTimeout   = 10 * time.Second
	ackTimeout     = 10 * time.Second
	redialAttempts = 10
	backoffStart   = time.Second
	backoffCap     = 30 * time.Second
)

// uplink owns the client half of the relay protocol: a buffered outbox
// drained by the connection supervisor, a registry of ack waiters, and
// the start frame of every open session for replay after a redial.
type uplink struct {
	wsURL  string
	secret string
	log    *slog.Logger

	outbox chan []byte
	done   chan struct{}

	mu      sync.Mutex
	starts  map[string][]byte
	waits   map[string]chan struct{}
	stopped chan struct{}
	closed  bool
}

func newUplink(log *slog.Logger) *uplink {
	return &uplink{
		log:    log,
		outbox: make(chan []byte, outboxSize),
		done:   make(chan struct{}),
		starts: make(map[string][]byte),
		waits:  make(map[string]chan struct{}),
	}
}

// dial performs the first connect synchronously so a bad address fails
// Init, then hands the connection to the supervisor.
func (u *uplink) dial(rawURL, secret string) error {
	u.wsURL = rawURL
	u.secret = secret

	conn, err := u.dialOnce()
	if err != nil {
		return err
	}

	u.mu.Lock()
	u.stopped = make(chan struct{})
	u.mu.Unlock()

	go u.run(conn)
	return nil
}

func (u *uplink) dialOnce() (*ws.Conn, error) {
	addr, err := url.Parse(u.wsURL)
	if err != nil {
		return nil, fmt.Errorf("relay URL %q: %w", u.wsURL, err)
	}
	q := addr.Query()
	q.Set("secret", u.secret)
	addr.RawQuery = q.Encode()

	conn, resp, err := ws.DefaultDialer.Dial(addr.String(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("relay dial %s: %w", addr.Host, err)
	}
	return conn, nil
}

// run supervises the connection: serve until the link drops, then
// redial and replay open sessions. Returns when the uplink closes or
// the redial budget runs out.
func (u *uplink) run(conn *ws.Conn) {
	defer close(u.stopped)

	for {
		u.serve(conn)

		select {
		case <-u.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			conn.Close()
			return
		default:
		}

		conn.Close()
		if conn = u.redial(); conn == nil {
			return
		}
	}
}

// serve pumps the outbox into the connection and routes incoming acks
// until either direction fails or the uplink is closed.
func (u *uplink) serve(conn *ws.Conn) {
	lost := make(chan struct{})
	var once sync.Once
	abort := func() { once.Do(func() { close(lost) }) }

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-u.done:
				default:
					u.log.Warn("Relay read failed", "error", err)
				}
				abort()
				return
			}
			u.routeAck(raw)
		}
	}()

	for {
		select {
		case <-u.done:
			return
		case <-lost:
			return
		case frame := <-u.outbox:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(ws.TextMessage, frame); err != nil {
				u.log.Warn("Relay write failed, frame dropped", "error", err)
				abort()
				return
			}
		}
	}
}

// redial re-establishes the connection with exponential backoff and
// replays the start frame of every open session so the server can
// reattach them.
func (u *uplink) redial() *ws.Conn {
	for attempt := 1; attempt <= redialAttempts; attempt++ {
		wait := backoffStart << (attempt - 1)
		if wait > backoffCap {
			wait = backoffCap
		}
		u.log.Info("Redialing relay", "attempt", attempt, "wait", wait)

		select {
		case <-u.done:
			return nil
		case <-time.After(wait):
		}

		conn, err := u.dialOnce()
		if err != nil {
			u.log.Warn("Relay redial failed", "attempt", attempt, "error", err)
			continue
		}

		if err := u.replayStarts(conn); err != nil {
			u.log.Warn("Failed to replay open sessions", "error", err)
			conn.Close()
			continue
		}

		u.log.Info("Relay connection restored", "attempt", attempt)
		return conn
	}

	u.log.Error("Relay unreachable, giving up", "attempts", redialAttempts)
	return nil
}

// rememberStart keeps a session's start frame for replay after a
// redial. The frame is held until the session ends.
func (u *uplink) rememberStart(sessionID string, frame []byte) {
	u.mu.Lock()
	u.starts[sessionID] = frame
	u.mu.Unlock()
}

func (u *uplink) forgetStart(sessionID string) {
	u.mu.Lock()
	delete(u.starts, sessionID)
	u.mu.Unlock()
}

func (u *uplink) replayStarts(conn *ws.Conn) error {
	u.mu.Lock()
	frames := make([][]byte, 0, len(u.starts))
	for _, f := range u.starts {
		frames = append(frames, f)
	}
	u.mu.Unlock()

	for _, f := range frames {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(ws.TextMessage, f); err != nil {
			return err
		}
	}
	return nil
}

// routeAck wakes the waiter registered for the acked message type.
// Acks nobody waits for, such as those for replayed session starts,
// are dropped.
func (u *uplink) routeAck(raw []byte) {
	var ack streaming.AckMessage
	if err := json.Unmarshal(raw, &ack); err != nil || ack.Type != streaming.TypeAck {
		u.log.Debug("Unexpected relay message", "raw", string(raw))
		return
	}

	u.mu.Lock()
	ch, ok := u.waits[ack.For]
	delete(u.waits, ack.For)
	u.mu.Unlock()

	if ok {
		close(ch)
	}
}

// send queues one frame for the writer. Never blocks; the frame is
// dropped when the outbox is full.
func (u *uplink) send(frame []byte) {
	select {
	case u.outbox <- frame:
	default:
		u.log.Warn("Relay outbox full, dropping frame")
	}
}

// sendAndWait queues the frame and blocks until the server acks the
// given message type, the timeout passes, or the uplink closes. One
// waiter per message type at a time.
func (u *uplink) sendAndWait(frame []byte, forType string, timeout time.Duration) error {
	ch := make(chan struct{})
	u.mu.Lock()
	u.waits[forType] = ch
	u.mu.Unlock()

	u.send(frame)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-timer.C:
		return fmt.Errorf("no ack for %q within %s", forType, timeout)
	case <-u.done:
		return fmt.Errorf("uplink closed while awaiting ack of %q", forType)
	}
}

// close stops the supervisor and waits briefly for it to wind down.
func (u *uplink) close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	stopped := u.stopped
	u.mu.Unlock()

	close(u.done)
	if stopped != nil {
		select {
		case <-stopped:
		case <-time.After(writeTimeout):
		}
	}
	return nil
}
