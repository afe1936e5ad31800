package domain

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	IsActive         bool       `json:"is_active"`
	MessageExpiresIn *int       `json:"message_expires_in,omitempty"` // seconds, nil = keep forever
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
}

// Participant is the durable membership record linking a user to a room.
type Participant struct {
	ID         uuid.UUID  `json:"id"`
	RoomID     uuid.UUID  `json:"room_id"`
	UserID     uuid.UUID  `json:"user_id"`
	IsAdmin    bool       `json:"is_admin"`
	IsMuted    bool       `json:"is_muted"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
	JoinedAt   time.Time  `json:"joined_at"`
	LeftAt     *time.Time `json:"left_at,omitempty"`
}
