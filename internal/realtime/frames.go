// Package realtime pushes JSON frames to connected clients over websockets
// and buffers frames for users who are offline.
package realtime

import "time"

// Frame is one server-to-client message. Every frame carries a "type"
// discriminator and a "timestamp"; the rest is frame-specific.
type Frame map[string]any

// Server-to-client frame types.
const (
	FrameConnected         = "connected"
	FrameAuthenticated     = "authenticated"
	FrameAuthError         = "auth_error"
	FramePong              = "pong"
	FrameError             = "error"
	FrameQueueUpdate       = "queue_update"
	FrameQueueNotification = "queue_notification"
	FrameCustomerArrived   = "customer_arrived"
	FramePositionUpdate    = "queue_position_update"
	FrameServiceStarting   = "service_starting"
	FrameServiceCompleted  = "service_completed"
	FrameNoShow            = "no_show"
)

// Client-to-server frame types.
const (
	frameAuthenticate = "authenticate"
	framePing         = "ping"
)

// NewFrame builds a frame of the given type, stamping it with now and
// merging in the extra fields.
func NewFrame(typ string, now time.Time, fields map[string]any) Frame {
	f := Frame{"type": typ, "timestamp": now.UTC().Format(time.RFC3339Nano)}
	for k, v := range fields {
		f[k] = v
	}
	return f
}

// Type returns the frame's discriminator, or "" when absent.
func (f Frame) Type() string {
	t, _ := f["type"].(string)
	return t
}
