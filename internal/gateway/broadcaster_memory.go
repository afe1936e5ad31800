package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"chat_gateway/pkg/logger"
)

// memoryBroadcaster is the single-process driver. Each subscription owns a
// buffered channel; Publish appends to every subscriber under the room
// lock, which preserves a single publisher's ordering.
type memoryBroadcaster struct {
	mu     sync.RWMutex
	rooms  map[uuid.UUID]map[*memorySubscription]struct{}
	closed bool
	log    logger.Logger
}

func NewMemoryBroadcaster(log logger.Logger) Broadcaster {
	return &memoryBroadcaster{
		rooms: make(map[uuid.UUID]map[*memorySubscription]struct{}),
		log:   log,
	}
}

type memorySubscription struct {
	b      *memoryBroadcaster
	roomID uuid.UUID
	events chan Event
	once   sync.Once
}

func (s *memorySubscription) Events() <-chan Event { return s.events }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.b.remove(s)
		close(s.events)
	})
	return nil
}

const subscriptionBuffer = 64

func (b *memoryBroadcaster) Subscribe(ctx context.Context, roomID uuid.UUID) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, context.Canceled
	}

	sub := &memorySubscription{
		b:      b,
		roomID: roomID,
		events: make(chan Event, subscriptionBuffer),
	}
	if b.rooms[roomID] == nil {
		b.rooms[roomID] = make(map[*memorySubscription]struct{})
	}
	b.rooms[roomID][sub] = struct{}{}

	return sub, nil
}

func (b *memoryBroadcaster) Publish(ctx context.Context, roomID uuid.UUID, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.rooms[roomID] {
		select {
		case sub.events <- event:
		default:
			// Subscriber is not draining; dropping beats blocking every
			// publisher in the room.
			b.log.Warn("dropping broadcast event for slow subscriber", "room_id", roomID, "kind", event.Kind)
		}
	}

	return nil
}

func (b *memoryBroadcaster) Close() error {
	b.mu.Lock()
	subs := make([]*memorySubscription, 0)
	for _, room := range b.rooms {
		for sub := range room {
			subs = append(subs, sub)
		}
	}
	b.rooms = make(map[uuid.UUID]map[*memorySubscription]struct{})
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.events) })
	}
	return nil
}

func (b *memoryBroadcaster) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if room, ok := b.rooms[sub.roomID]; ok {
		delete(room, sub)
		if len(room) == 0 {
			delete(b.rooms, sub.roomID)
		}
	}
}
