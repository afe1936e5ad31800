package domain

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	ID              int64      `json:"id"`
	RoomID          uuid.UUID  `json:"room_id"`
	SenderUserID    uuid.UUID  `json:"sender_user_id"`
	MessageType     string     `json:"message_type"`
	Content         string     `json:"content"`
	CreatedAt       time.Time  `json:"created_at"`
	EditedAt        *time.Time `json:"edited_at,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	DeletedByUserID *uuid.UUID `json:"deleted_by_user_id,omitempty"`
}

const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)
