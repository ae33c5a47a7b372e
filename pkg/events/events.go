package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event is the base interface for queue audit events. Keep payloads small
// and JSON-friendly; replay must never need a join.
type Event interface {
	Type() string
	QueueID() string
	Timestamp() time.Time
	Actor() *string
	MarshalData() ([]byte, error)
}

// Base contains common event metadata.
type Base struct {
	Ts  time.Time `json:"ts"`
	QID string    `json:"queue_id"`
	Act *string   `json:"actor,omitempty"`
}

func (b Base) Timestamp() time.Time { return b.Ts }
func (b Base) QueueID() string      { return b.QID }
func (b Base) Actor() *string       { return b.Act }

const TypeTransition = "queue.transition"

// Transition is emitted on every durable status change of a queue entry.
type Transition struct {
	Base
	VenueID   string `json:"venue_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Reason    string `json:"reason,omitempty"`
}

func (e Transition) Type() string                 { return TypeTransition }
func (e Transition) MarshalData() ([]byte, error) { return json.Marshal(e) }

// Store defines persistence and replay. Implementations must guarantee
// ordering per queue entry.
type Store interface {
	Append(ctx context.Context, e Event) error
	ListByQueue(ctx context.Context, queueID string) ([]StoredEvent, error)
	ReplayQueue(ctx context.Context, queueID string) (*RebuiltState, error)
}

// StoredEvent is a durable representation. Seq is a monotonic order within
// the DB (BIGINT AUTO_INCREMENT).
type StoredEvent struct {
	Seq     int64     `json:"seq"`
	QueueID string    `json:"queue_id"`
	Type    string    `json:"type"`
	Ts      time.Time `json:"ts"`
	Actor   *string   `json:"actor,omitempty"`
	Payload []byte    `json:"payload"`
}

// RebuiltState is the result of replaying one entry's events: the current
// status and the last transition's context. Full history comes from
// ListByQueue.
type RebuiltState struct {
	QueueID     string    `json:"queue_id"`
	Status      string    `json:"status"`
	LastActor   string    `json:"last_actor"`
	LastReason  string    `json:"last_reason"`
	LastUpdated time.Time `json:"last_updated"`
	Transitions int       `json:"transitions"`
}

// Replay applies events in order and rebuilds state.
func Replay(events []StoredEvent) *RebuiltState {
	st := &RebuiltState{}
	for _, se := range events {
		st.QueueID = se.QueueID
		st.LastUpdated = se.Ts
		if se.Type != TypeTransition {
			continue
		}
		var ev Transition
		_ = json.Unmarshal(se.Payload, &ev)
		st.Status = ev.NewStatus
		st.LastReason = ev.Reason
		if se.Actor != nil {
			st.LastActor = *se.Actor
		}
		st.Transitions++
	}
	return st
}
