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

type ChatRepository interface {
	CreateMessage(ctx context.Context, message *domain.ChatMessage) error
	GetMessages(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]*domain.ChatMessage, error)
	GetMessageByID(ctx context.Context, messageID int64) (*domain.ChatMessage, error)
	UpdateMessage(ctx context.Context, message *domain.ChatMessage) error
	DeleteMessage(ctx context.Context, messageID int64, deletedByUserID uuid.UUID) error
}

type chatRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewChatRepository(db *pgxpool.Pool, log logger.Logger) ChatRepository {
	return &chatRepository{db: db, log: log}
}

func (r *chatRepository) CreateMessage(ctx context.Context, message *domain.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (room_id, sender_user_id, message_type, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		message.RoomID, message.SenderUserID, message.MessageType,
		message.Content, message.CreatedAt,
	).Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		r.log.Error("failed to create message", "error", err, "room_id", message.RoomID)
		return err
	}

	return nil
}

func (r *chatRepository) GetMessages(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]*domain.ChatMessage, error) {
	query := `
		SELECT id, room_id, sender_user_id, message_type, content, created_at, edited_at, deleted_at, deleted_by_user_id
		FROM chat_messages
		WHERE room_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, roomID, limit, offset)
	if err != nil {
		r.log.Error("failed to get messages", "error", err, "room_id", roomID)
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.ChatMessage
	for rows.Next() {
		message := &domain.ChatMessage{}
		err := rows.Scan(
			&message.ID, &message.RoomID, &message.SenderUserID, &message.MessageType,
			&message.Content, &message.CreatedAt, &message.EditedAt, &message.DeletedAt,
			&message.DeletedByUserID,
		)
		if err != nil {
			r.log.Error("failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}

func (r *chatRepository) GetMessageByID(ctx context.Context, messageID int64) (*domain.ChatMessage, error) {
	query := `
		SELECT id, room_id, sender_user_id, message_type, content, created_at, edited_at, deleted_at, deleted_by_user_id
		FROM chat_messages
		WHERE id = $1
	`

	message := &domain.ChatMessage{}
	err := r.db.QueryRow(ctx, query, messageID).Scan(
		&message.ID, &message.RoomID, &message.SenderUserID, &message.MessageType,
		&message.Content, &message.CreatedAt, &message.EditedAt, &message.DeletedAt,
		&message.DeletedByUserID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pkgerrors.ErrMessageNotFound
		}
		r.log.Error("failed to get message", "error", err, "message_id", messageID)
		return nil, err
	}

	return message, nil
}

func (r *chatRepository) UpdateMessage(ctx context.Context, message *domain.ChatMessage) error {
	query := `
		UPDATE chat_messages
		SET content = $2, edited_at = $3
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING edited_at
	`

	err := r.db.QueryRow(ctx, query, message.ID, message.Content, time.Now()).Scan(&message.EditedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pkgerrors.ErrMessageNotFound
		}
		r.log.Error("failed to update message", "error", err, "message_id", message.ID)
		return err
	}

	return nil
}

func (r *chatRepository) DeleteMessage(ctx context.Context, messageID int64, deletedByUserID uuid.UUID) error {
	query := `
		UPDATE chat_messages
		SET deleted_at = $2, deleted_by_user_id = $3
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, messageID, time.Now(), deletedByUserID)
	if err != nil {
		r.log.Error("failed to delete message", "error", err, "message_id", messageID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrMessageNotFound
	}

	return nil
}
