package gateway

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Event is one fan-out unit: an encoded outbound frame plus the routing
// metadata subscribers need. It crosses process boundaries on the redis
// and nats drivers, so every field must survive JSON.
type Event struct {
	Kind          string          `json:"kind"`
	RoomID        uuid.UUID       `json:"room_id"`
	SenderUserID  uuid.UUID       `json:"sender_user_id"`
	ExcludeSender bool            `json:"exclude_sender"`
	Frame         json.RawMessage `json:"frame"`
}

// Broadcaster fans events out to every live subscription of a room,
// including subscriptions held by other gateway processes when the
// transport is distributed. Events published by one sender are delivered
// in publish order; no cross-sender ordering is guaranteed.
type Broadcaster interface {
	Subscribe(ctx context.Context, roomID uuid.UUID) (Subscription, error)
	Publish(ctx context.Context, roomID uuid.UUID, event Event) error
	Close() error
}

// Subscription is one room membership. Events() is closed by Close and by
// broadcaster shutdown. Close is idempotent.
type Subscription interface {
	Events() <-chan Event
	Close() error
}
