package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat_gateway/internal/domain"
	pkgerrors "chat_gateway/pkg/errors"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
	err   error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (r *fakeUserRepo) add(u *domain.User) {
	r.mu.Lock()
	r.users[u.ID] = u
	r.mu.Unlock()
}

func (r *fakeUserRepo) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.users[userID]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) IsActive(ctx context.Context, userID uuid.UUID) (bool, error) {
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.IsActive, nil
}

type fakeRoomRepo struct {
	mu           sync.Mutex
	rooms        map[uuid.UUID]*domain.Room
	participants map[uuid.UUID]map[uuid.UUID]*domain.Participant
	lastReads    map[uuid.UUID]time.Time
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{
		rooms:        make(map[uuid.UUID]*domain.Room),
		participants: make(map[uuid.UUID]map[uuid.UUID]*domain.Participant),
		lastReads:    make(map[uuid.UUID]time.Time),
	}
}

func (r *fakeRoomRepo) addRoom(room *domain.Room) {
	r.mu.Lock()
	r.rooms[room.ID] = room
	r.mu.Unlock()
}

func (r *fakeRoomRepo) addParticipant(roomID uuid.UUID, p *domain.Participant) {
	r.mu.Lock()
	if r.participants[roomID] == nil {
		r.participants[roomID] = make(map[uuid.UUID]*domain.Participant)
	}
	r.participants[roomID][p.UserID] = p
	r.mu.Unlock()
}

func (r *fakeRoomRepo) GetByID(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, pkgerrors.ErrRoomNotFound
	}
	return room, nil
}

func (r *fakeRoomRepo) IsActive(ctx context.Context, roomID uuid.UUID) (bool, error) {
	room, err := r.GetByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room.IsActive, nil
}

func (r *fakeRoomRepo) GetParticipant(ctx context.Context, roomID, userID uuid.UUID) (*domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[roomID][userID]
	if !ok || p.LeftAt != nil {
		return nil, pkgerrors.ErrParticipantNotFound
	}
	return p, nil
}

func (r *fakeRoomRepo) UpdateLastRead(ctx context.Context, roomID, userID uuid.UUID, readAt time.Time) error {
	r.mu.Lock()
	r.lastReads[userID] = readAt
	r.mu.Unlock()
	return nil
}

type fakeChatRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*domain.ChatMessage
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{byID: make(map[int64]*domain.ChatMessage)}
}

func (r *fakeChatRepo) CreateMessage(ctx context.Context, message *domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	message.ID = r.nextID
	stored := *message
	r.byID[message.ID] = &stored
	return nil
}

func (r *fakeChatRepo) GetMessages(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.ChatMessage, 0)
	for _, m := range r.byID {
		if m.RoomID == roomID && m.DeletedAt == nil {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeChatRepo) GetMessageByID(ctx context.Context, messageID int64) (*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[messageID]
	if !ok {
		return nil, pkgerrors.ErrMessageNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *fakeChatRepo) UpdateMessage(ctx context.Context, message *domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[message.ID]
	if !ok {
		return pkgerrors.ErrMessageNotFound
	}
	now := time.Now()
	stored.Content = message.Content
	stored.EditedAt = &now
	message.EditedAt = &now
	return nil
}

func (r *fakeChatRepo) DeleteMessage(ctx context.Context, messageID int64, deletedByUserID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[messageID]
	if !ok {
		return pkgerrors.ErrMessageNotFound
	}
	now := time.Now()
	stored.DeletedAt = &now
	stored.DeletedByUserID = &deletedByUserID
	return nil
}
