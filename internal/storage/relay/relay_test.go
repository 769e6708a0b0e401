package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repcoach/engine/pkg/core"
	"github.com/repcoach/engine/pkg/streaming"
)

// relayServer plays the coaching frontend side of the protocol: it
// records every envelope and, unless muted, acks session starts and
// summaries.
type relayServer struct {
	srv  *httptest.Server
	acks bool

	mu     sync.Mutex
	got    []streaming.Envelope
	active *ws.Conn
}

func startRelayServer(t *testing.T, acks bool) *relayServer {
	t.Helper()
	rs := &relayServer{acks: acks}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	rs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		rs.mu.Lock()
		rs.active = conn
		rs.mu.Unlock()
		rs.pump(conn)
	}))
	t.Cleanup(rs.srv.Close)
	return rs
}

func (rs *relayServer) pump(conn *ws.Conn) {
	defer conn.Close()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		rs.mu.Lock()
		rs.got = append(rs.got, env)
		rs.mu.Unlock()

		if rs.acks && (env.Type == streaming.TypeSessionStart || env.Type == streaming.TypeSummary) {
			data, _ := json.Marshal(streaming.AckMessage{Type: streaming.TypeAck, For: env.Type})
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (rs *relayServer) url() string {
	return "ws" + strings.TrimPrefix(rs.srv.URL, "http")
}

// sever force closes the live server-side connection to provoke a
// client redial.
func (rs *relayServer) sever() {
	rs.mu.Lock()
	if rs.active != nil {
		rs.active.Close()
	}
	rs.mu.Unlock()
}

func (rs *relayServer) envelopes() []streaming.Envelope {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]streaming.Envelope(nil), rs.got...)
}

func (rs *relayServer) countByType() map[string]int {
	counts := make(map[string]int)
	for _, env := range rs.envelopes() {
		counts[env.Type]++
	}
	return counts
}

// startIDs returns the session IDs of every session_start received, in
// arrival order.
func (rs *relayServer) startIDs() []string {
	var ids []string
	for _, env := range rs.envelopes() {
		if env.Type != streaming.TypeSessionStart {
			continue
		}
		var sp streaming.SessionStartPayload
		if json.Unmarshal(env.Payload, &sp) == nil {
			ids = append(ids, sp.Session.ID)
		}
	}
	return ids
}

func TestSessionRoundTrip(t *testing.T) {
	rs := startRelayServer(t, true)

	b := New(Config{URL: rs.url(), Secret: "test"})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{ID: "sess-1", Exercise: core.ExercisePushup}))
	require.NoError(t, b.EndSession(&core.SessionSummary{SessionID: "sess-1", RepCount: 8}))

	msgs := rs.envelopes()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, streaming.TypeSessionStart, msgs[0].Type)

	last := msgs[len(msgs)-1]
	require.Equal(t, streaming.TypeSummary, last.Type)
	var sp streaming.SummaryPayload
	require.NoError(t, json.Unmarshal(last.Payload, &sp))
	assert.Equal(t, 8, sp.Summary.RepCount)
}

func TestResultStreaming(t *testing.T) {
	rs := startRelayServer(t, true)

	b := New(Config{URL: rs.url(), Secret: "s"})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{ID: "sess-1", Exercise: core.ExerciseSquat}))

	frame := core.Frame{RelativeTime: 0.1, Landmarks: map[string]core.Landmark{}}
	for i := uint(0); i < 3; i++ {
		require.NoError(t, b.RecordFrame("sess-1", frame, core.FrameResult{FrameIndex: i}))
	}

	// Reps, cues and health samples produce no extra wire traffic.
	require.NoError(t, b.RecordRep("sess-1", core.Rep{Index: 1}, 1))
	require.NoError(t, b.RecordFeedback("sess-1", core.FeedbackEvent{Kind: core.FeedbackDepth}))
	require.NoError(t, b.RecordPerformance(core.EnginePerformance{}))

	require.NoError(t, b.EndSession(&core.SessionSummary{SessionID: "sess-1"}))

	require.Eventually(t, func() bool {
		return rs.countByType()[streaming.TypeResult] == 3
	}, 2*time.Second, 10*time.Millisecond)

	counts := rs.countByType()
	assert.Equal(t, 1, counts[streaming.TypeSessionStart])
	assert.Equal(t, 1, counts[streaming.TypeSummary])
	assert.Zero(t, counts[streaming.TypeFrame], "raw frames must not be relayed")
}

func TestReplayAfterReconnect(t *testing.T) {
	rs := startRelayServer(t, true)

	b := New(Config{URL: rs.url(), Secret: "s"})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{ID: "sess-1"}))
	require.NoError(t, b.StartSession(&core.Session{ID: "sess-2"}))
	require.NoError(t, b.EndSession(&core.SessionSummary{SessionID: "sess-1"}))

	rs.sever()

	// Only sess-2 is still open, so the redial replays exactly its
	// start frame.
	require.Eventually(t, func() bool {
		return len(rs.startIDs()) == 3
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, []string{"sess-1", "sess-2", "sess-2"}, rs.startIDs())
}

func TestAckTimeout(t *testing.T) {
	rs := startRelayServer(t, false) // never acks

	b := New(Config{URL: rs.url(), Secret: "s"})
	b.ackWait = 100 * time.Millisecond
	require.NoError(t, b.Init())
	defer b.Close()

	err := b.StartSession(&core.Session{ID: "sess-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ack")
}

func TestInitDialFailure(t *testing.T) {
	b := New(Config{URL: "ws://127.0.0.1:1", Secret: "s"})

	require.Error(t, b.Init())
}

func TestEndSessionNilSummary(t *testing.T) {
	b := New(Config{URL: "ws://unused", Secret: "s"})

	require.NoError(t, b.EndSession(nil))
}
