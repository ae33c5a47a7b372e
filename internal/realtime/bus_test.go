package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/pkg/logging"
)

type busFixture struct {
	bus    *Bus
	server *httptest.Server
}

func newBusFixture(t *testing.T) *busFixture {
	t.Helper()
	clock := clockwork.NewRealClock()
	buf := NewBuffer(100, time.Hour, clock)
	resolve := func(ctx context.Context, venueID string) (string, error) {
		return "owner1", nil
	}
	bus := NewBus(buf, resolve, clock, logging.NewNop())
	server := httptest.NewServer(http.HandlerFunc(bus.HandleWS))
	t.Cleanup(server.Close)
	return &busFixture{bus: bus, server: server}
}

func (f *busFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) Frame {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f Frame
	if err := ws.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func authenticate(t *testing.T, ws *websocket.Conn, userID string) {
	t.Helper()
	if got := readFrame(t, ws); got.Type() != FrameConnected {
		t.Fatalf("hello frame = %+v", got)
	}
	if err := ws.WriteJSON(Frame{"type": "authenticate", "userId": userID}); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	if got := readFrame(t, ws); got.Type() != FrameAuthenticated {
		t.Fatalf("auth reply = %+v", got)
	}
}

func waitConnected(t *testing.T, bus *Bus, userID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !bus.IsConnected(userID) {
		if time.Now().After(deadline) {
			t.Fatalf("user %s never attached", userID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAuthenticateAndSend(t *testing.T) {
	f := newBusFixture(t)
	ws := f.dial(t)
	authenticate(t, ws, "u1")
	waitConnected(t, f.bus, "u1")

	if f.bus.ConnCount() != 1 {
		t.Fatalf("ConnCount = %d, want 1", f.bus.ConnCount())
	}
	if !f.bus.Send("u1", NewFrame(FrameQueueUpdate, time.Now(), map[string]any{"queueId": "q1"})) {
		t.Fatalf("Send reported failure")
	}
	got := readFrame(t, ws)
	if got.Type() != FrameQueueUpdate || got["queueId"] != "q1" {
		t.Fatalf("frame = %+v", got)
	}
}

func TestPingPong(t *testing.T) {
	f := newBusFixture(t)
	ws := f.dial(t)
	if got := readFrame(t, ws); got.Type() != FrameConnected {
		t.Fatalf("hello frame = %+v", got)
	}
	if err := ws.WriteJSON(Frame{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if got := readFrame(t, ws); got.Type() != FramePong {
		t.Fatalf("pong = %+v", got)
	}
}

func TestAuthRequiresUserID(t *testing.T) {
	f := newBusFixture(t)
	ws := f.dial(t)
	if got := readFrame(t, ws); got.Type() != FrameConnected {
		t.Fatalf("hello frame = %+v", got)
	}
	if err := ws.WriteJSON(Frame{"type": "authenticate"}); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	if got := readFrame(t, ws); got.Type() != FrameAuthError {
		t.Fatalf("reply = %+v", got)
	}
	if f.bus.ConnCount() != 0 {
		t.Fatalf("unauthenticated socket counted as connection")
	}
}

func TestUnknownFrameType(t *testing.T) {
	f := newBusFixture(t)
	ws := f.dial(t)
	if got := readFrame(t, ws); got.Type() != FrameConnected {
		t.Fatalf("hello frame = %+v", got)
	}
	if err := ws.WriteJSON(Frame{"type": "subscribe"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readFrame(t, ws); got.Type() != FrameError {
		t.Fatalf("reply = %+v", got)
	}
}

func TestReauthenticateMovesConnection(t *testing.T) {
	f := newBusFixture(t)
	ws := f.dial(t)
	authenticate(t, ws, "userA")
	waitConnected(t, f.bus, "userA")

	// same socket switches identity
	if err := ws.WriteJSON(Frame{"type": "authenticate", "userId": "userB"}); err != nil {
		t.Fatalf("write re-auth: %v", err)
	}
	if got := readFrame(t, ws); got.Type() != FrameAuthenticated || got["userId"] != "userB" {
		t.Fatalf("re-auth reply = %+v", got)
	}
	waitConnected(t, f.bus, "userB")

	if f.bus.IsConnected("userA") {
		t.Fatalf("userA still registered after re-auth")
	}
	if f.bus.ConnCount() != 1 {
		t.Fatalf("ConnCount = %d, want 1", f.bus.ConnCount())
	}

	// userA frames must fall back to the buffer, not userB's socket
	if f.bus.SendOrBuffer("userA", NewFrame(FrameQueueUpdate, time.Now(), map[string]any{"queueId": "qa"})) {
		t.Fatalf("frame for userA delivered to a live socket")
	}
	if !f.bus.Send("userB", NewFrame(FrameQueueUpdate, time.Now(), map[string]any{"queueId": "qb"})) {
		t.Fatalf("send to userB failed")
	}
	if got := readFrame(t, ws); got["queueId"] != "qb" {
		t.Fatalf("socket received %+v, want userB's frame only", got)
	}
}

func TestBufferedFramesFlushOnAttach(t *testing.T) {
	f := newBusFixture(t)

	// u1 offline: frame lands in the buffer
	if f.bus.SendOrBuffer("u1", NewFrame(FrameQueueNotification, time.Now(), map[string]any{"queueId": "q9"})) {
		t.Fatalf("offline send should report buffered, not delivered")
	}

	ws := f.dial(t)
	if got := readFrame(t, ws); got.Type() != FrameConnected {
		t.Fatalf("hello frame = %+v", got)
	}
	if err := ws.WriteJSON(Frame{"type": "authenticate", "userId": "u1"}); err != nil {
		t.Fatalf("write auth: %v", err)
	}

	// the buffer flushes during attach, before the auth ack
	got := readFrame(t, ws)
	if got.Type() != FrameQueueNotification || got["queueId"] != "q9" {
		t.Fatalf("flushed frame = %+v", got)
	}
	if got := readFrame(t, ws); got.Type() != FrameAuthenticated {
		t.Fatalf("auth reply = %+v", got)
	}
}

func TestBroadcastToVenueOwners(t *testing.T) {
	f := newBusFixture(t)
	owner := f.dial(t)
	authenticate(t, owner, "owner1")
	other := f.dial(t)
	authenticate(t, other, "u2")
	waitConnected(t, f.bus, "owner1")
	waitConnected(t, f.bus, "u2")

	f.bus.BroadcastToVenueOwners(context.Background(), "v1", NewFrame(FrameCustomerArrived, time.Now(), map[string]any{"queueId": "q1"}))
	got := readFrame(t, owner)
	if got.Type() != FrameCustomerArrived {
		t.Fatalf("owner frame = %+v", got)
	}

	// the non-owner must not receive it; verify with a ping round-trip
	if err := other.WriteJSON(Frame{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if got := readFrame(t, other); got.Type() != FramePong {
		t.Fatalf("non-owner received %+v before pong", got)
	}
}
