package signaling

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/meetings"
	"github.com/parleyhq/parley/internal/metrics"
)

func testConfig() config.Config {
	return config.Config{
		WSSendBuffer:        64,
		WSIdleTimeout:       60 * time.Second,
		WSPingInterval:      25 * time.Second,
		MaxWSMessageBytes:   64 * 1024,
		MaxWSMessagesPerSec: 1000,
	}
}

type testEnv struct {
	ts       *httptest.Server
	registry *meetings.Registry
	srv      *Server
	events   *metrics.Metrics
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()
	return startTestServerWithConfig(t, testConfig())
}

func startTestServerWithConfig(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	registry := meetings.NewRegistry()
	events := metrics.New()
	srv := NewServer(cfg, logger, registry, events)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, registry: registry, srv: srv, events: events}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws/meet"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return msg
}

func expectType(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	msg := readMessage(t, conn)
	if msg["type"] != wantType {
		t.Fatalf("got message %v, want type %q", msg, wantType)
	}
	return msg
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %s", data)
	}
}

// join dials, joins the meeting and drains the joined message, returning the
// connection and its assigned client id.
func (e *testEnv) join(t *testing.T, meetingID string) (*websocket.Conn, string) {
	t.Helper()
	conn := e.dial(t)
	sendJSON(t, conn, map[string]any{"type": "join", "meetingId": meetingID})
	msg := expectType(t, conn, TypeJoined)
	id, _ := msg["clientId"].(string)
	if id == "" {
		t.Fatalf("joined without clientId: %v", msg)
	}
	return conn, id
}

func TestJoinSnapshotAndPeerJoined(t *testing.T) {
	env := startTestServer(t)
	meeting, err := env.registry.Create()
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}

	connA := env.dial(t)
	sendJSON(t, connA, map[string]any{"type": "join", "meetingId": meeting.ID})
	joinedA := expectType(t, connA, TypeJoined)
	if peers, _ := joinedA["peers"].([]any); len(peers) != 0 {
		t.Fatalf("first joiner peers=%v, want empty", peers)
	}
	idA := joinedA["clientId"].(string)

	connB := env.dial(t)
	sendJSON(t, connB, map[string]any{"type": "join", "meetingId": meeting.ID})
	joinedB := expectType(t, connB, TypeJoined)
	peers, _ := joinedB["peers"].([]any)
	if len(peers) != 1 || peers[0] != idA {
		t.Fatalf("second joiner peers=%v, want [%s]", peers, idA)
	}
	if joinedB["clientId"] == idA {
		t.Fatalf("client ids not unique")
	}

	notice := expectType(t, connA, TypePeerJoined)
	if notice["clientId"] != joinedB["clientId"] {
		t.Fatalf("peer-joined clientId=%v, want %v", notice["clientId"], joinedB["clientId"])
	}
}

func TestJoinUnknownMeeting(t *testing.T) {
	env := startTestServer(t)

	conn := env.dial(t)
	sendJSON(t, conn, map[string]any{"type": "join", "meetingId": "NOSUCH"})
	msg := expectType(t, conn, TypeMeetingNotFound)
	if msg["meetingId"] != "NOSUCH" {
		t.Fatalf("meetingId=%v", msg["meetingId"])
	}

	// The connection survives and can join a real meeting afterwards.
	meeting, err := env.registry.Create()
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}
	sendJSON(t, conn, map[string]any{"type": "join", "meetingId": meeting.ID})
	expectType(t, conn, TypeJoined)
}

func TestOfferIsUnicast(t *testing.T) {
	env := startTestServer(t)
	meeting, err := env.registry.Create()
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}

	connA, idA := env.join(t, meeting.ID)
	connB, idB := env.join(t, meeting.ID)
	expectType(t, connA, TypePeerJoined) // B joining
	connC, _ := env.join(t, meeting.ID)
	expectType(t, connA, TypePeerJoined) // C joining
	expectType(t, connB, TypePeerJoined)

	sdp := map[string]any{"type": "offer", "sdp": "v=0\r\no=- 46117 2 IN IP4 127.0.0.1\r\n"}
	sendJSON(t, connA, map[string]any{"type": "offer", "to": idB, "sdp": sdp})

	got := expectType(t, connB, TypeOffer)
	if got["from"] != idA {
		t.Fatalf("from=%v, want %v", got["from"], idA)
	}
	gotSDP, _ := got["sdp"].(map[string]any)
	if gotSDP["sdp"] != sdp["sdp"] {
		t.Fatalf("sdp not relayed verbatim: %v", got["sdp"])
	}

	// Only the addressed connection hears the offer.
	expectSilence(t, connC)
	expectSilence(t, connA)

	// Answer flows back the same way.
	sendJSON(t, connB, map[string]any{"type": "answer", "to": idA, "sdp": sdp})
	back := expectType(t, connA, TypeAnswer)
	if back["from"] != idB {
		t.Fatalf("answer from=%v, want %v", back["from"], idB)
	}
}

func TestICECandidateRelay(t *testing.T) {
	env := startTestServer(t)
	meeting, err := env.registry.Create()
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}

	connA, idA := env.join(t, meeting.ID)
	connB, idB := env.join(t, meeting.ID)
	expectType(t, connA, TypePeerJoined)

	candidate := map[string]any{
		"candidate":     "candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host",
		"sdpMid":        "0",
		"sdpMLineIndex": 0,
	}
	sendJSON(t, connA, map[string]any{"type": "ice-candidate", "to": idB, "candidate": candidate})

	got := expectType(t, connB, TypeICECandidate)
	if got["from"] != idA {
		t.Fatalf("from=%v", got["from"])
	}
	gotCand, _ := got["candidate"].(map[string]any)
	if gotCand["candidate"] != candidate["candidate"] {
		t.Fatalf("candidate not relayed verbatim: %v", got["candidate"])
	}
}

func TestRelaySilentDrops(t *testing.T) {
	env := startTestServer(t)
	meeting, err := env.registry.Create()
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}

	t.Run("before join", func(t *testing.T) {
		conn := env.dial(t)
		sendJSON(t, conn, map[string]any{"type": "offer", "to": "whoever", "sdp": map[string]any{"sdp": "x"}})
		expectSilence(t, conn)
	})

	t.Run("unknown target", func(t *testing.T) {
		conn, _ := env.join(t, meeting.ID)
		sendJSON(t, conn, map[string]any{"type": "offer", "to": "ghost", "sdp": map[string]any{"sdp": "x"}})
		expectSilence(t, conn)
	})

	t.Run("missing to", func(t *testing.T) {
		conn, _ := env.join(t, meeting.ID)
		sendJSON(t, conn, map[string]any{"type": "offer", "sdp": map[string]any{"sdp": "x"}})
		expectSilence(t, conn)
	})

	t.Run("missing payload", func(t *testing.T) {
		connA, _ := env.join(t, meeting.ID)
		connB, idB := env.join(t, meeting.ID)
		expectType(t, connA, TypePeerJoined)
		sendJSON(t, connA, map[string]any{"type": "offer", "to": idB})
		expectSilence(t, connB)
	})

	t.Run("malformed json", func(t *testing.T) {
		conn, _ := env.join(t, meeting.ID)
		if err := conn.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
			t.Fatalf("write: %v", err)
		}
		expectSilence(t, conn)

		// Connection stays usable.
		sendJSON(t, conn, map[string]any{"type": "join", "meetingId": meeting.ID})
		expectType(t, conn, TypeJoined)
	})
}

func TestDisconnectedTargetDropsSilently(t *testing.T) {
	env := startTestServer(t)
	meeting, err := env.registry.Create()
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}

	connA, _ := env.join(t, meeting.ID)
	connB, idB := env.join(t, meeting.ID)
	expectType(t, connA, TypePeerJoined)

	_ = connB.Close()
	expectType(t, connA, TypePeerLeft)

	sendJSON(t, connA, map[string]any{"type": "offer", "to": idB, "sdp": map[string]any{"sdp": "x"}})
	expectSilence(t, connA)
}

func TestPeerLeftOnDisconnect(t *testing.T) {
	env := startTestServer(t)
	meeting, err := env.registry.Create()
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}

	connA, idA := env.join(t, meeting.ID)
	connB, _ := env.join(t, meeting.ID)
	expectType(t, connA, TypePeerJoined)
	connC, _ := env.join(t, meeting.ID)
	expectType(t, connA, TypePeerJoined)
	expectType(t, connB, TypePeerJoined)

	_ = connA.Close()

	for _, conn := range []*websocket.Conn{connB, connC} {
		notice := expectType(t, conn, TypePeerLeft)
		if notice["clientId"] != idA {
			t.Fatalf("peer-left clientId=%v, want %v", notice["clientId"], idA)
		}
		// Exactly one notification per remaining peer.
		expectSilence(t, conn)
	}
}

func TestRejoinIsIdempotent(t *testing.T) {
	env := startTestServer(t)
	meeting, err := env.registry.Create()
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}

	connA, idA := env.join(t, meeting.ID)
	connB, idB := env.join(t, meeting.ID)
	expectType(t, connA, TypePeerJoined)

	sendJSON(t, connA, map[string]any{"type": "join", "meetingId": meeting.ID})
	rejoined := expectType(t, connA, TypeJoined)
	if rejoined["clientId"] != idA {
		t.Fatalf("rejoin changed client id: %v", rejoined["clientId"])
	}
	peers, _ := rejoined["peers"].([]any)
	if len(peers) != 1 || peers[0] != idB {
		t.Fatalf("rejoin peers=%v, want [%s]", peers, idB)
	}

	// The peer must not hear a duplicate peer-joined.
	expectSilence(t, connB)
}

type frozenClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *frozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *frozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRateLimitedFramesAreDroppedNotFatal(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWSMessagesPerSec = 2
	env := startTestServerWithConfig(t, cfg)
	meeting, err := env.registry.Create()
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}

	clk := &frozenClock{now: time.Unix(1_700_000_000, 0)}
	env.srv.clock = clk

	connA, _ := env.join(t, meeting.ID) // join spends one token
	connB, idB := env.join(t, meeting.ID)
	expectType(t, connA, TypePeerJoined)

	// Second token relays; the frozen clock then keeps A's bucket empty.
	sendJSON(t, connA, map[string]any{"type": "offer", "to": idB, "sdp": map[string]any{"sdp": "x"}})
	expectType(t, connB, TypeOffer)

	for i := 0; i < 3; i++ {
		sendJSON(t, connA, map[string]any{"type": "offer", "to": idB, "sdp": map[string]any{"sdp": "x"}})
	}
	deadline := time.Now().Add(2 * time.Second)
	for env.events.Get(metrics.DropReasonRateLimited) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := env.events.Get(metrics.DropReasonRateLimited); got != 3 {
		t.Fatalf("rate_limited=%d, want 3", got)
	}
	expectSilence(t, connB)

	// Refilling the bucket proves the connection survived the drops.
	clk.Advance(5 * time.Second)
	sendJSON(t, connA, map[string]any{"type": "offer", "to": idB, "sdp": map[string]any{"sdp": "x"}})
	expectType(t, connB, TypeOffer)
}
