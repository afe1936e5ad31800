package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"chat_gateway/internal/domain"
)

// Frame types exchanged over the persistent connection. Frames are flat
// JSON objects discriminated by the "type" field.
const (
	// inbound
	FrameAuth    = "auth"
	FrameMessage = "message"
	FrameEdit    = "edit"
	FrameDelete  = "delete"
	FrameTyping  = "typing"
	FrameRead    = "read"
	FramePong    = "pong"

	// outbound
	FrameAuthSuccess    = "auth_success"
	FrameMessageEdited  = "message_edited"
	FrameMessageDeleted = "message_deleted"
	FrameError          = "error"
	FramePing           = "ping"
	FrameServerShutdown = "server_shutdown"
)

// Error frame codes. These are recoverable: the connection stays open.
const (
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeInvalidRequest = "invalid-request"
	ErrCodeRateLimited    = "rate-limited"
	ErrCodeForbidden      = "forbidden"
	ErrCodeInternal       = "internal"
)

// CloseCode is a websocket close status. The 4000 range is the private-use
// band; the numeric values are part of the client contract and must not be
// renumbered.
type CloseCode int

const (
	CloseNormal             CloseCode = 1000
	CloseInternalError      CloseCode = 1011
	CloseAuthTimeout        CloseCode = 4001
	CloseAuthInvalid        CloseCode = 4002
	CloseForbidden          CloseCode = 4003
	CloseTooManyConnections CloseCode = 4004
	CloseHeartbeatTimeout   CloseCode = 4005
	CloseShutdown           CloseCode = 4006
)

func (c CloseCode) String() string {
	switch c {
	case CloseNormal:
		return "normal"
	case CloseAuthTimeout:
		return "auth-timeout"
	case CloseAuthInvalid:
		return "auth-invalid"
	case CloseForbidden:
		return "forbidden"
	case CloseTooManyConnections:
		return "too-many-connections"
	case CloseHeartbeatTimeout:
		return "heartbeat-timeout"
	case CloseShutdown:
		return "shutdown"
	default:
		return "internal-error"
	}
}

// InboundFrame is the union of all client frame shapes.
type InboundFrame struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	Content   string `json:"content,omitempty"`
	MessageID int64  `json:"messageId,omitempty"`
}

type authSuccessFrame struct {
	Type   string    `json:"type"`
	UserID uuid.UUID `json:"userId"`
}

type messageFrame struct {
	Type        string    `json:"type"`
	ID          int64     `json:"id"`
	Sender      uuid.UUID `json:"sender"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	CreatedAt   time.Time `json:"createdAt"`
}

type messageEditedFrame struct {
	Type      string    `json:"type"`
	MessageID int64     `json:"messageId"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type messageDeletedFrame struct {
	Type      string `json:"type"`
	MessageID int64  `json:"messageId"`
}

type typingFrame struct {
	Type string    `json:"type"`
	User uuid.UUID `json:"user"`
}

type errorFrame struct {
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

type pingFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type serverShutdownFrame struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func encodeAuthSuccess(userID uuid.UUID) []byte {
	return mustEncode(authSuccessFrame{Type: FrameAuthSuccess, UserID: userID})
}

func encodeMessage(m *domain.ChatMessage) []byte {
	return mustEncode(messageFrame{
		Type:        FrameMessage,
		ID:          m.ID,
		Sender:      m.SenderUserID,
		Content:     m.Content,
		MessageType: m.MessageType,
		CreatedAt:   m.CreatedAt,
	})
}

func encodeMessageEdited(m *domain.ChatMessage) []byte {
	updatedAt := m.CreatedAt
	if m.EditedAt != nil {
		updatedAt = *m.EditedAt
	}
	return mustEncode(messageEditedFrame{
		Type:      FrameMessageEdited,
		MessageID: m.ID,
		Content:   m.Content,
		UpdatedAt: updatedAt,
	})
}

func encodeMessageDeleted(messageID int64) []byte {
	return mustEncode(messageDeletedFrame{Type: FrameMessageDeleted, MessageID: messageID})
}

func encodeTyping(userID uuid.UUID) []byte {
	return mustEncode(typingFrame{Type: FrameTyping, User: userID})
}

func encodeError(code, message string, retryAfter int) []byte {
	return mustEncode(errorFrame{Type: FrameError, Code: code, Message: message, RetryAfter: retryAfter})
}

func encodePing(ts time.Time) []byte {
	return mustEncode(pingFrame{Type: FramePing, Timestamp: ts})
}

func encodeServerShutdown(message string, ts time.Time) []byte {
	return mustEncode(serverShutdownFrame{Type: FrameServerShutdown, Message: message, Timestamp: ts})
}

func mustEncode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// All frame types marshal cleanly; this is unreachable.
		panic(err)
	}
	return data
}
