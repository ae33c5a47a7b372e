package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/pkg/logging"
	"walkin-queue-coordinator/pkg/metrics"
)

const (
	writeDeadline = 10 * time.Second
	readLimit     = 4 << 10 // client frames are tiny
)

// OwnerResolver maps a venue id to its owner user id.
type OwnerResolver func(ctx context.Context, venueID string) (string, error)

// Bus is the process-local registry of connected clients keyed by userId.
// A connection only joins the registry after it authenticates.
type Bus struct {
	upgrader     websocket.Upgrader
	buffer       *Buffer
	clock        clockwork.Clock
	log          *logging.Logger
	resolveOwner OwnerResolver

	mu    sync.RWMutex
	conns map[string]map[*client]bool

	mConnections *metrics.Gauge
	mSent        *metrics.Counter
	mFailures    *metrics.Counter
}

type client struct {
	mu     sync.Mutex
	ws     *websocket.Conn
	userID string
}

func (c *client) write(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.ws.WriteJSON(f)
}

func NewBus(buffer *Buffer, resolveOwner OwnerResolver, clock clockwork.Clock, log *logging.Logger) *Bus {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Bus{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// clients are mobile apps, not browsers with cookies
			CheckOrigin: func(*http.Request) bool { return true },
		},
		buffer:       buffer,
		clock:        clock,
		log:          log.WithComponent("realtime"),
		resolveOwner: resolveOwner,
		conns:        map[string]map[*client]bool{},
		mConnections: metrics.Default.Gauge("realtime_connections", "Authenticated websocket connections"),
		mSent:        metrics.Default.Counter("realtime_frames_sent_total", "Frames written to clients"),
		mFailures:    metrics.Default.Counter("realtime_send_failures_total", "Frame writes that failed"),
	}
}

// HandleWS upgrades the request and serves the connection until it closes.
// Unauthenticated connections only get the connected hello and pong replies.
func (b *Bus) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("websocket upgrade failed", logging.Err(err))
		return
	}
	c := &client{ws: ws}
	defer b.closeClient(c)

	if err := c.write(NewFrame(FrameConnected, b.clock.Now(), nil)); err != nil {
		return
	}

	ws.SetReadLimit(readLimit)
	for {
		var in Frame
		if err := ws.ReadJSON(&in); err != nil {
			return
		}
		switch in.Type() {
		case frameAuthenticate:
			userID, _ := in["userId"].(string)
			if userID == "" {
				_ = c.write(NewFrame(FrameAuthError, b.clock.Now(), map[string]any{"error": "userId required"}))
				continue
			}
			b.Attach(userID, c)
			_ = c.write(NewFrame(FrameAuthenticated, b.clock.Now(), map[string]any{"userId": userID}))
		case framePing:
			_ = c.write(NewFrame(FramePong, b.clock.Now(), nil))
		default:
			_ = c.write(NewFrame(FrameError, b.clock.Now(), map[string]any{"error": "unknown frame type"}))
		}
	}
}

// Attach registers an authenticated connection and flushes any frames
// buffered while the user was offline. Re-authenticating under a different
// userId moves the connection; it must never stay registered under both.
func (b *Bus) Attach(userID string, c *client) {
	b.mu.Lock()
	if c.userID != "" && c.userID != userID {
		if old, ok := b.conns[c.userID]; ok {
			delete(old, c)
			if len(old) == 0 {
				delete(b.conns, c.userID)
			}
		}
	}
	c.userID = userID
	set, ok := b.conns[userID]
	if !ok {
		set = map[*client]bool{}
		b.conns[userID] = set
	}
	set[c] = true
	total := b.connCountLocked()
	b.mu.Unlock()
	b.mConnections.SetFloat64(float64(total))

	if b.buffer != nil {
		for _, f := range b.buffer.TakeFor(userID) {
			if err := c.write(f); err != nil {
				b.mFailures.Inc(1)
				return
			}
			b.mSent.Inc(1)
		}
	}
}

// Detach removes a connection from the registry.
func (b *Bus) Detach(c *client) {
	b.mu.Lock()
	if c.userID != "" {
		if set, ok := b.conns[c.userID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(b.conns, c.userID)
			}
		}
	}
	total := b.connCountLocked()
	b.mu.Unlock()
	b.mConnections.SetFloat64(float64(total))
}

func (b *Bus) closeClient(c *client) {
	b.Detach(c)
	_ = c.ws.Close()
}

func (b *Bus) connCountLocked() int {
	n := 0
	for _, set := range b.conns {
		n += len(set)
	}
	return n
}

// ConnCount returns the number of live connections across all users.
func (b *Bus) ConnCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connCountLocked()
}

// IsConnected reports whether the user has at least one live connection.
func (b *Bus) IsConnected(userID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns[userID]) > 0
}

// Send writes the frame to every connection of the user and reports whether
// at least one write succeeded.
func (b *Bus) Send(userID string, f Frame) bool {
	b.mu.RLock()
	clients := make([]*client, 0, len(b.conns[userID]))
	for c := range b.conns[userID] {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	delivered := false
	for _, c := range clients {
		if err := c.write(f); err != nil {
			b.mFailures.Inc(1)
			continue
		}
		b.mSent.Inc(1)
		delivered = true
	}
	return delivered
}

// SendOrBuffer delivers the frame, falling back to the offline buffer when
// the user has no live connection or every write fails.
func (b *Bus) SendOrBuffer(userID string, f Frame) bool {
	if b.Send(userID, f) {
		return true
	}
	if b.buffer != nil {
		b.buffer.Enqueue(userID, f)
	}
	return false
}

// BroadcastToVenueOwners sends the frame to the venue's owner. Operator
// frames are not buffered; a stale arrival alert is worse than none.
func (b *Bus) BroadcastToVenueOwners(ctx context.Context, venueID string, f Frame) {
	if b.resolveOwner == nil {
		return
	}
	ownerID, err := b.resolveOwner(ctx, venueID)
	if err != nil {
		b.log.Warn("venue owner lookup failed",
			logging.String("venue_id", venueID), logging.Err(err))
		return
	}
	b.Send(ownerID, f)
}

// Broadcast sends the frame to every connected user.
func (b *Bus) Broadcast(f Frame) {
	b.mu.RLock()
	users := make([]string, 0, len(b.conns))
	for u := range b.conns {
		users = append(users, u)
	}
	b.mu.RUnlock()
	for _, u := range users {
		b.Send(u, f)
	}
}
