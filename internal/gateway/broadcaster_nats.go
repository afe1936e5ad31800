package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"chat_gateway/pkg/logger"
)

// natsBroadcaster is the NATS-backed driver. Core NATS preserves a single
// publisher's ordering on a subject, matching the fan-out contract.
type natsBroadcaster struct {
	nc  *nats.Conn
	log logger.Logger
}

func NewNATSBroadcaster(nc *nats.Conn, log logger.Logger) Broadcaster {
	return &natsBroadcaster{nc: nc, log: log}
}

func roomSubject(roomID uuid.UUID) string {
	return fmt.Sprintf("chat.room.%s", roomID)
}

func (b *natsBroadcaster) Subscribe(ctx context.Context, roomID uuid.UUID) (Subscription, error) {
	sub := &natsSubscription{
		events: make(chan Event, subscriptionBuffer),
	}

	nsub, err := b.nc.Subscribe(roomSubject(roomID), func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.log.Warn("dropping undecodable broadcast event", "error", err, "subject", msg.Subject)
			return
		}

		select {
		case sub.events <- event:
		default:
			b.log.Warn("dropping broadcast event for slow subscriber", "subject", msg.Subject, "kind", event.Kind)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to room subject: %w", err)
	}

	sub.nsub = nsub
	return sub, nil
}

func (b *natsBroadcaster) Publish(ctx context.Context, roomID uuid.UUID, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.nc.Publish(roomSubject(roomID), payload)
}

func (b *natsBroadcaster) Close() error {
	b.nc.Close()
	return nil
}

type natsSubscription struct {
	nsub   *nats.Subscription
	events chan Event
	once   sync.Once
}

func (s *natsSubscription) Events() <-chan Event { return s.events }

func (s *natsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		// The events channel is deliberately left open: the message
		// handler may still be in flight, and consumers exit through
		// their own closing signal.
		err = s.nsub.Drain()
	})
	return err
}
