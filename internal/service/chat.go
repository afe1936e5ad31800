package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat_gateway/internal/domain"
	"chat_gateway/internal/repository"
	pkgerrors "chat_gateway/pkg/errors"
	"chat_gateway/pkg/logger"
)

type ChatService interface {
	SendMessage(ctx context.Context, roomID, senderID uuid.UUID, content, messageType string) (*domain.ChatMessage, error)
	EditMessage(ctx context.Context, roomID uuid.UUID, messageID int64, userID uuid.UUID, content string) (*domain.ChatMessage, error)
	DeleteMessage(ctx context.Context, roomID uuid.UUID, messageID int64, userID uuid.UUID) (*domain.ChatMessage, error)
	UpdateLastRead(ctx context.Context, roomID, userID uuid.UUID, readAt time.Time) error
}

type chatService struct {
	chatRepo       repository.ChatRepository
	roomRepo       repository.RoomRepository
	maxMessageSize int
	log            logger.Logger
}

func NewChatService(chatRepo repository.ChatRepository, roomRepo repository.RoomRepository, maxMessageSize int, log logger.Logger) ChatService {
	return &chatService{
		chatRepo:       chatRepo,
		roomRepo:       roomRepo,
		maxMessageSize: maxMessageSize,
		log:            log,
	}
}

func (s *chatService) SendMessage(ctx context.Context, roomID, senderID uuid.UUID, content, messageType string) (*domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, pkgerrors.ErrBadRequest
	}
	if len(content) > s.maxMessageSize {
		return nil, pkgerrors.ErrBadRequest
	}
	if messageType == "" {
		messageType = domain.MessageTypeText
	}

	message := &domain.ChatMessage{
		RoomID:       roomID,
		SenderUserID: senderID,
		MessageType:  messageType,
		Content:      content,
		CreatedAt:    time.Now(),
	}

	if err := s.chatRepo.CreateMessage(ctx, message); err != nil {
		return nil, err
	}

	return message, nil
}

func (s *chatService) EditMessage(ctx context.Context, roomID uuid.UUID, messageID int64, userID uuid.UUID, content string) (*domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > s.maxMessageSize {
		return nil, pkgerrors.ErrBadRequest
	}

	message, err := s.chatRepo.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	// A message id from another room is indistinguishable from a missing
	// one as far as the client is concerned.
	if message.RoomID != roomID || message.DeletedAt != nil {
		return nil, pkgerrors.ErrMessageNotFound
	}
	if message.SenderUserID != userID {
		return nil, pkgerrors.ErrForbidden
	}

	message.Content = content
	if err := s.chatRepo.UpdateMessage(ctx, message); err != nil {
		return nil, err
	}

	return message, nil
}

func (s *chatService) DeleteMessage(ctx context.Context, roomID uuid.UUID, messageID int64, userID uuid.UUID) (*domain.ChatMessage, error) {
	message, err := s.chatRepo.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if message.RoomID != roomID {
		return nil, pkgerrors.ErrMessageNotFound
	}
	if message.SenderUserID != userID {
		return nil, pkgerrors.ErrForbidden
	}

	if err := s.chatRepo.DeleteMessage(ctx, messageID, userID); err != nil {
		return nil, err
	}

	return message, nil
}

func (s *chatService) UpdateLastRead(ctx context.Context, roomID, userID uuid.UUID, readAt time.Time) error {
	return s.roomRepo.UpdateLastRead(ctx, roomID, userID, readAt)
}
