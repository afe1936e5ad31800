package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"chat_gateway/internal/domain"
	"chat_gateway/internal/repository"
	pkgerrors "chat_gateway/pkg/errors"
	"chat_gateway/pkg/logger"
)

// AccessService is the authorization predicate for room membership. It is
// evaluated at handshake time, before every message send, and periodically
// for the life of a connection, so it must stay a pure read.
type AccessService interface {
	CanAccess(ctx context.Context, userID, roomID uuid.UUID) (bool, error)
	IsActiveUser(ctx context.Context, userID uuid.UUID) (bool, error)
	Participant(ctx context.Context, userID, roomID uuid.UUID) (*domain.Participant, error)
}

type accessService struct {
	userRepo repository.UserRepository
	roomRepo repository.RoomRepository
	log      logger.Logger
}

func NewAccessService(userRepo repository.UserRepository, roomRepo repository.RoomRepository, log logger.Logger) AccessService {
	return &accessService{
		userRepo: userRepo,
		roomRepo: roomRepo,
		log:      log,
	}
}

func (s *accessService) CanAccess(ctx context.Context, userID, roomID uuid.UUID) (bool, error) {
	active, err := s.roomRepo.IsActive(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !active {
		return false, nil
	}

	userActive, err := s.userRepo.IsActive(ctx, userID)
	if err != nil {
		return false, err
	}
	if !userActive {
		return false, nil
	}

	_, err = s.roomRepo.GetParticipant(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrParticipantNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (s *accessService) IsActiveUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.userRepo.IsActive(ctx, userID)
}

func (s *accessService) Participant(ctx context.Context, userID, roomID uuid.UUID) (*domain.Participant, error) {
	return s.roomRepo.GetParticipant(ctx, roomID, userID)
}
