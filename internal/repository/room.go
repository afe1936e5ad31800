package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat_gateway/internal/domain"
	pkgerrors "chat_gateway/pkg/errors"
	"chat_gateway/pkg/logger"
)

type RoomRepository interface {
	GetByID(ctx context.Context, roomID uuid.UUID) (*domain.Room, error)
	IsActive(ctx context.Context, roomID uuid.UUID) (bool, error)
	GetParticipant(ctx context.Context, roomID, userID uuid.UUID) (*domain.Participant, error)
	UpdateLastRead(ctx context.Context, roomID, userID uuid.UUID, readAt time.Time) error
}

type roomRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewRoomRepository(db *pgxpool.Pool, log logger.Logger) RoomRepository {
	return &roomRepository{db: db, log: log}
}

func (r *roomRepository) GetByID(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	query := `
		SELECT id, title, is_active, message_expires_in, created_at, updated_at, closed_at
		FROM rooms
		WHERE id = $1
	`

	room := &domain.Room{}
	err := r.db.QueryRow(ctx, query, roomID).Scan(
		&room.ID, &room.Title, &room.IsActive, &room.MessageExpiresIn,
		&room.CreatedAt, &room.UpdatedAt, &room.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pkgerrors.ErrRoomNotFound
		}
		r.log.Error("failed to get room", "error", err, "room_id", roomID)
		return nil, err
	}

	return room, nil
}

func (r *roomRepository) IsActive(ctx context.Context, roomID uuid.UUID) (bool, error) {
	query := `SELECT is_active FROM rooms WHERE id = $1`

	var active bool
	err := r.db.QueryRow(ctx, query, roomID).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		r.log.Error("failed to check room active flag", "error", err, "room_id", roomID)
		return false, err
	}

	return active, nil
}

func (r *roomRepository) GetParticipant(ctx context.Context, roomID, userID uuid.UUID) (*domain.Participant, error) {
	query := `
		SELECT id, room_id, user_id, is_admin, is_muted, last_read_at, joined_at, left_at
		FROM participants
		WHERE room_id = $1 AND user_id = $2 AND left_at IS NULL
	`

	participant := &domain.Participant{}
	err := r.db.QueryRow(ctx, query, roomID, userID).Scan(
		&participant.ID, &participant.RoomID, &participant.UserID,
		&participant.IsAdmin, &participant.IsMuted, &participant.LastReadAt,
		&participant.JoinedAt, &participant.LeftAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pkgerrors.ErrParticipantNotFound
		}
		r.log.Error("failed to get participant", "error", err, "room_id", roomID, "user_id", userID)
		return nil, err
	}

	return participant, nil
}

func (r *roomRepository) UpdateLastRead(ctx context.Context, roomID, userID uuid.UUID, readAt time.Time) error {
	query := `
		UPDATE participants
		SET last_read_at = $3
		WHERE room_id = $1 AND user_id = $2 AND left_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, roomID, userID, readAt)
	if err != nil {
		r.log.Error("failed to update last read", "error", err, "room_id", roomID, "user_id", userID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrParticipantNotFound
	}

	return nil
}
