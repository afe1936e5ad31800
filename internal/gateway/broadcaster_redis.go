package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chat_gateway/pkg/logger"
)

// redisBroadcaster carries events over redis pub/sub so subscriptions on
// other gateway processes see them too. Redis delivers a channel's
// messages in publish order, which covers the per-sender guarantee.
type redisBroadcaster struct {
	rdb *redis.Client
	log logger.Logger
}

func NewRedisBroadcaster(rdb *redis.Client, log logger.Logger) Broadcaster {
	return &redisBroadcaster{rdb: rdb, log: log}
}

func roomChannel(roomID uuid.UUID) string {
	return fmt.Sprintf("chat:room:%s", roomID)
}

func (b *redisBroadcaster) Subscribe(ctx context.Context, roomID uuid.UUID) (Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, roomChannel(roomID))

	// Force the SUBSCRIBE round trip so a failed subscribe surfaces here
	// rather than as silently missed events.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to room channel: %w", err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan Event, subscriptionBuffer),
	}
	go sub.pump(b.log)

	return sub, nil
}

func (b *redisBroadcaster) Publish(ctx context.Context, roomID uuid.UUID, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.rdb.Publish(ctx, roomChannel(roomID), payload).Err()
}

func (b *redisBroadcaster) Close() error {
	// The redis client is shared with the rate limiter and is closed by
	// the owner in main.
	return nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan Event
	once   sync.Once
}

func (s *redisSubscription) Events() <-chan Event { return s.events }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		// Closing the PubSub ends the pump, which closes events.
		err = s.pubsub.Close()
	})
	return err
}

func (s *redisSubscription) pump(log logger.Logger) {
	defer close(s.events)

	for msg := range s.pubsub.Channel() {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Warn("dropping undecodable broadcast event", "error", err, "channel", msg.Channel)
			continue
		}

		select {
		case s.events <- event:
		default:
			log.Warn("dropping broadcast event for slow subscriber", "channel", msg.Channel, "kind", event.Kind)
		}
	}
}
