package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"chat_gateway/internal/config"
	"chat_gateway/internal/domain"
	"chat_gateway/internal/service"
	pkgerrors "chat_gateway/pkg/errors"
	"chat_gateway/pkg/logger"
)

// State is the connection lifecycle position. Transitions only move
// forward; Rejected is terminal out of AwaitingAuth.
type State int32

const (
	StateConnecting State = iota
	StateAwaitingAuth
	StateAuthenticated
	StateRejected
	StateClosing
	StateClosed
)

// Gateway bundles the collaborators every connection needs. One Gateway
// serves all rooms of a process.
type Gateway struct {
	cfg         config.GatewayConfig
	auth        service.AuthService
	access      service.AccessService
	chat        service.ChatService
	rate        service.RateLimitService
	broadcaster Broadcaster
	registry    *Registry
	log         logger.Logger
}

func NewGateway(
	cfg config.GatewayConfig,
	auth service.AuthService,
	access service.AccessService,
	chat service.ChatService,
	rate service.RateLimitService,
	broadcaster Broadcaster,
	registry *Registry,
	log logger.Logger,
) *Gateway {
	return &Gateway{
		cfg:         cfg,
		auth:        auth,
		access:      access,
		chat:        chat,
		rate:        rate,
		broadcaster: broadcaster,
		registry:    registry,
		log:         log,
	}
}

func (g *Gateway) Registry() *Registry { return g.registry }

// NewConnection binds a transport to the protocol engine for one room.
// headerToken is the out-of-band credential, empty unless header auth is
// enabled and the client supplied one.
func (g *Gateway) NewConnection(transport Transport, roomID uuid.UUID, headerToken string) *Connection {
	return &Connection{
		gw:          g,
		id:          uuid.New(),
		roomID:      roomID,
		transport:   transport,
		headerToken: headerToken,
		connectedAt: time.Now(),
		send:        make(chan []byte, g.cfg.SendQueueSize),
		closing:     make(chan struct{}),
	}
}

// Connection owns one physical client connection. All inbound frames are
// dispatched from the single read loop, so per-connection state needs no
// locking against concurrent frames; the mutex guards access from the
// heartbeat goroutine and the registry.
type Connection struct {
	gw          *Gateway
	id          uuid.UUID
	roomID      uuid.UUID
	transport   Transport
	headerToken string
	connectedAt time.Time

	mu        sync.Mutex
	state     State
	user      *domain.User
	closeCode CloseCode
	heartbeat *heartbeatMonitor
	sub       Subscription

	lastPong  atomic.Int64 // unix nanos
	authTimer *time.Timer

	send      chan []byte
	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (c *Connection) ID() uuid.UUID     { return c.id }
func (c *Connection) RoomID() uuid.UUID { return c.roomID }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// User returns the authenticated identity, nil before authentication.
func (c *Connection) User() *domain.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// CloseCode reports the code the connection closed with. Zero until the
// connection starts closing.
func (c *Connection) CloseCode() CloseCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// Run drives the connection until the transport fails or the connection is
// closed, then tears everything down. It blocks the caller's goroutine.
func (c *Connection) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Registered before auth so graceful shutdown reaches half-open
	// connections too.
	c.gw.registry.Add(c)
	defer c.gw.registry.Remove(c)

	c.setState(StateAwaitingAuth)

	c.wg.Add(1)
	go c.writeLoop()

	if c.gw.cfg.HeaderAuth && c.headerToken != "" {
		c.authenticate(ctx, c.headerToken)
	} else {
		c.authTimer = time.AfterFunc(c.gw.cfg.AuthTimeout, func() {
			if c.State() != StateAuthenticated {
				c.reject(CloseAuthTimeout, "auth-timeout")
			}
		})
	}

	c.readLoop(ctx)

	// Transport is gone or close() already ran. Cancel first so an
	// in-flight access recheck cannot stall the heartbeat join, then
	// tear down: heartbeat (awaited), room subscription, pump goroutines.
	c.close(CloseNormal, "")
	if c.authTimer != nil {
		c.authTimer.Stop()
	}
	cancel()

	c.mu.Lock()
	hb := c.heartbeat
	sub := c.sub
	c.mu.Unlock()

	if hb != nil {
		hb.Stop()
	}
	if sub != nil {
		_ = sub.Close()
	}

	c.wg.Wait()
	c.setState(StateClosed)

	c.gw.log.Info("connection closed",
		"conn_id", c.id,
		"room_id", c.roomID,
		"code", c.CloseCode().String(),
		"duration", time.Since(c.connectedAt),
	)
}

func (c *Connection) readLoop(ctx context.Context) {
	for {
		data, err := c.transport.Read()
		if err != nil {
			return
		}
		c.dispatch(ctx, data)

		select {
		case <-c.closing:
			return
		default:
		}
	}
}

// dispatch handles one inbound frame. A panicking collaborator must not
// kill the connection task, so the frame boundary recovers.
func (c *Connection) dispatch(ctx context.Context, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.gw.log.Error("panic while handling frame", "conn_id", c.id, "panic", r)
			c.enqueue(encodeError(ErrCodeInternal, "internal error", 0))
		}
	}()

	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
		c.enqueue(encodeError(ErrCodeInvalidRequest, "malformed frame", 0))
		return
	}

	if c.State() != StateAuthenticated {
		// Only auth is processed before authentication. Anything else
		// gets an error frame but keeps the connection open, tolerating
		// client ordering races.
		if frame.Type == FrameAuth {
			c.authenticate(ctx, frame.Token)
		} else {
			c.enqueue(encodeError(ErrCodeUnauthorized, "authentication required", 0))
		}
		return
	}

	switch frame.Type {
	case FrameAuth:
		// Already authenticated; re-auth is a no-op.
	case FramePong:
		c.lastPong.Store(time.Now().UnixNano())
	case FrameMessage:
		c.handleMessage(ctx, frame)
	case FrameEdit:
		c.handleEdit(ctx, frame)
	case FrameDelete:
		c.handleDelete(ctx, frame)
	case FrameTyping:
		c.handleTyping(ctx)
	case FrameRead:
		c.handleRead(ctx)
	default:
		c.enqueue(encodeError(ErrCodeInvalidRequest, "unknown frame type", 0))
	}
}

// authenticate runs the handshake: resolve identity, authorize for the
// room, apply the connection-count budget, then wire up broadcast and
// heartbeat. Any failure before Authenticated is terminal.
func (c *Connection) authenticate(ctx context.Context, token string) {
	if c.State() == StateAuthenticated {
		return
	}

	if token == "" {
		c.reject(CloseAuthInvalid, "auth-invalid")
		return
	}

	user, err := c.gw.auth.ValidateToken(ctx, token)
	if err != nil {
		c.reject(CloseAuthInvalid, "auth-invalid")
		return
	}

	allowed, err := c.gw.access.CanAccess(ctx, user.ID, c.roomID)
	if err != nil {
		c.gw.log.Error("access check failed during handshake", "error", err, "conn_id", c.id)
		c.reject(CloseInternalError, "internal error")
		return
	}
	if !allowed {
		c.reject(CloseForbidden, "forbidden")
		return
	}

	ok, _, err := c.gw.rate.Allow(ctx, user.ID, service.ActionConnect)
	if err != nil {
		c.gw.log.Error("connection rate check failed", "error", err, "conn_id", c.id)
		c.reject(CloseInternalError, "internal error")
		return
	}
	if !ok {
		c.reject(CloseTooManyConnections, "too-many-connections")
		return
	}

	sub, err := c.gw.broadcaster.Subscribe(ctx, c.roomID)
	if err != nil {
		c.gw.log.Error("room subscribe failed", "error", err, "conn_id", c.id, "room_id", c.roomID)
		c.reject(CloseInternalError, "internal error")
		return
	}

	if c.authTimer != nil {
		c.authTimer.Stop()
	}
	c.lastPong.Store(time.Now().UnixNano())

	hb := newHeartbeatMonitor(
		c.gw.cfg.HeartbeatInterval,
		c.gw.cfg.HeartbeatTimeout,
		c.gw.cfg.RecheckInterval,
		func() time.Time { return time.Unix(0, c.lastPong.Load()) },
		func(ts time.Time) { c.enqueue(encodePing(ts)) },
		func(ctx context.Context) (bool, error) { return c.gw.access.CanAccess(ctx, user.ID, c.roomID) },
		c.close,
		c.gw.log.With("conn_id", c.id),
	)

	c.mu.Lock()
	if c.state == StateRejected {
		// The auth timer fired while the handshake was in flight.
		c.mu.Unlock()
		_ = sub.Close()
		return
	}
	c.user = user
	c.sub = sub
	c.heartbeat = hb
	c.state = StateAuthenticated
	c.mu.Unlock()

	c.wg.Add(1)
	go c.forwardLoop(sub)
	hb.Start(ctx)

	c.enqueue(encodeAuthSuccess(user.ID))
	c.gw.log.Info("connection authenticated", "conn_id", c.id, "room_id", c.roomID, "user_id", user.ID)
}

// handleMessage performs the full send pipeline: membership state, access
// policy, rate budget, validation, persist, publish. Persist always
// precedes publish so a delivered frame implies durable state.
func (c *Connection) handleMessage(ctx context.Context, frame InboundFrame) {
	user := c.User()

	participant, err := c.gw.access.Participant(ctx, user.ID, c.roomID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrParticipantNotFound) {
			c.close(CloseForbidden, "forbidden")
			return
		}
		c.enqueue(encodeError(ErrCodeInternal, "internal error", 0))
		return
	}
	if participant.IsMuted {
		c.enqueue(encodeError(ErrCodeForbidden, "you are muted in this room", 0))
		return
	}

	if !c.requireRoomAccess(ctx, user.ID) {
		return
	}

	ok, retryAfter, err := c.gw.rate.Allow(ctx, user.ID, service.ActionSendMessage)
	if err != nil {
		c.enqueue(encodeError(ErrCodeInternal, "internal error", 0))
		return
	}
	if !ok {
		c.enqueue(encodeError(ErrCodeRateLimited, "message rate limit exceeded", retryAfter))
		return
	}

	message, err := c.gw.chat.SendMessage(ctx, c.roomID, user.ID, frame.Content, domain.MessageTypeText)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrBadRequest) {
			c.enqueue(encodeError(ErrCodeInvalidRequest, "empty or oversized message", 0))
		} else {
			c.gw.log.Error("failed to persist message", "error", err, "conn_id", c.id)
			c.enqueue(encodeError(ErrCodeInternal, "failed to send message", 0))
		}
		return
	}

	c.publish(ctx, Event{
		Kind:         FrameMessage,
		RoomID:       c.roomID,
		SenderUserID: user.ID,
		Frame:        encodeMessage(message),
	})
}

func (c *Connection) handleEdit(ctx context.Context, frame InboundFrame) {
	user := c.User()

	if !c.requireRoomAccess(ctx, user.ID) {
		return
	}

	message, err := c.gw.chat.EditMessage(ctx, c.roomID, frame.MessageID, user.ID, frame.Content)
	if err != nil {
		c.enqueueChatError(err, "failed to edit message")
		return
	}

	c.publish(ctx, Event{
		Kind:         FrameMessageEdited,
		RoomID:       c.roomID,
		SenderUserID: user.ID,
		Frame:        encodeMessageEdited(message),
	})
}

func (c *Connection) handleDelete(ctx context.Context, frame InboundFrame) {
	user := c.User()

	if !c.requireRoomAccess(ctx, user.ID) {
		return
	}

	message, err := c.gw.chat.DeleteMessage(ctx, c.roomID, frame.MessageID, user.ID)
	if err != nil {
		c.enqueueChatError(err, "failed to delete message")
		return
	}

	c.publish(ctx, Event{
		Kind:         FrameMessageDeleted,
		RoomID:       c.roomID,
		SenderUserID: user.ID,
		Frame:        encodeMessageDeleted(message.ID),
	})
}

func (c *Connection) handleTyping(ctx context.Context) {
	user := c.User()

	if !c.requireActiveUser(ctx, user.ID) {
		return
	}

	c.publish(ctx, Event{
		Kind:          FrameTyping,
		RoomID:        c.roomID,
		SenderUserID:  user.ID,
		ExcludeSender: true,
		Frame:         encodeTyping(user.ID),
	})
}

func (c *Connection) handleRead(ctx context.Context) {
	user := c.User()

	if !c.requireActiveUser(ctx, user.ID) {
		return
	}

	if err := c.gw.chat.UpdateLastRead(ctx, c.roomID, user.ID, time.Now()); err != nil {
		c.gw.log.Error("failed to update last read", "error", err, "conn_id", c.id)
		c.enqueue(encodeError(ErrCodeInternal, "failed to update read state", 0))
	}
}

// requireRoomAccess re-runs the full access policy for frames that mutate
// room state. Revoked access terminates the connection; a collaborator
// error keeps it open with an error frame.
func (c *Connection) requireRoomAccess(ctx context.Context, userID uuid.UUID) bool {
	allowed, err := c.gw.access.CanAccess(ctx, userID, c.roomID)
	if err != nil {
		c.enqueue(encodeError(ErrCodeInternal, "internal error", 0))
		return false
	}
	if !allowed {
		c.close(CloseForbidden, "forbidden")
		return false
	}
	return true
}

// requireActiveUser is the cheap liveness check used for frames that do
// not need the full access policy. A deactivated user is an authorization
// failure and terminates the connection.
func (c *Connection) requireActiveUser(ctx context.Context, userID uuid.UUID) bool {
	active, err := c.gw.access.IsActiveUser(ctx, userID)
	if err != nil {
		c.enqueue(encodeError(ErrCodeInternal, "internal error", 0))
		return false
	}
	if !active {
		c.close(CloseForbidden, "forbidden")
		return false
	}
	return true
}

func (c *Connection) enqueueChatError(err error, fallback string) {
	switch {
	case errors.Is(err, pkgerrors.ErrBadRequest):
		c.enqueue(encodeError(ErrCodeInvalidRequest, "empty or oversized message", 0))
	case errors.Is(err, pkgerrors.ErrForbidden):
		c.enqueue(encodeError(ErrCodeForbidden, "only the sender may modify a message", 0))
	case errors.Is(err, pkgerrors.ErrMessageNotFound):
		c.enqueue(encodeError(ErrCodeInvalidRequest, "message not found", 0))
	default:
		c.gw.log.Error(fallback, "error", err, "conn_id", c.id)
		c.enqueue(encodeError(ErrCodeInternal, fallback, 0))
	}
}

func (c *Connection) publish(ctx context.Context, event Event) {
	if err := c.gw.broadcaster.Publish(ctx, c.roomID, event); err != nil {
		c.gw.log.Error("broadcast publish failed", "error", err, "conn_id", c.id, "kind", event.Kind)
		c.enqueue(encodeError(ErrCodeInternal, "delivery failed", 0))
	}
}

// forwardLoop relays room events to this client. Exits when the
// subscription or the connection closes.
func (c *Connection) forwardLoop(sub Subscription) {
	defer c.wg.Done()

	for {
		select {
		case <-c.closing:
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if event.ExcludeSender {
				if user := c.User(); user != nil && event.SenderUserID == user.ID {
					continue
				}
			}
			c.enqueue(event.Frame)
		}
	}
}

func (c *Connection) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case data := <-c.send:
			if err := c.transport.Write(data); err != nil {
				return
			}
		case <-c.closing:
			// Flush whatever is already queued (the shutdown notice in
			// particular), then stop.
			for {
				select {
				case data := <-c.send:
					if err := c.transport.Write(data); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// enqueue queues an outbound frame without ever blocking the caller. A
// full queue means the client stopped reading; those frames are dropped.
func (c *Connection) enqueue(data []byte) {
	select {
	case <-c.closing:
		return
	default:
	}

	select {
	case c.send <- data:
	default:
		c.gw.log.Warn("send queue full, dropping frame", "conn_id", c.id)
	}
}

func (c *Connection) notifyShutdown() {
	c.enqueue(encodeServerShutdown("server is shutting down", time.Now()))
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Rejected is terminal.
	if c.state == StateRejected {
		return
	}
	c.state = s
}

func (c *Connection) reject(code CloseCode, reason string) {
	c.mu.Lock()
	c.state = StateRejected
	c.mu.Unlock()
	c.close(code, reason)
}

// close is idempotent: the first caller wins and records the close code.
// Full teardown (heartbeat join, unsubscribe, deregister) happens in Run.
func (c *Connection) close(code CloseCode, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.state != StateRejected {
			c.state = StateClosing
		}
		c.closeCode = code
		c.mu.Unlock()

		close(c.closing)
		_ = c.transport.Close(code, reason)
	})
}
