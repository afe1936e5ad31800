package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"chat_gateway/internal/config"
	"chat_gateway/internal/domain"
	"chat_gateway/internal/service"
	pkgerrors "chat_gateway/pkg/errors"
	"chat_gateway/pkg/logger"
)

// fakeTransport is an in-memory Transport driven by the test. Inbound
// frames are fed through a channel; written frames are recorded.
type fakeTransport struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	frames [][]byte
	code   CloseCode
	reason string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 32),
		closed:  make(chan struct{}),
	}
}

func (t *fakeTransport) Read() ([]byte, error) {
	select {
	case data := <-t.inbound:
		return data, nil
	case <-t.closed:
		return nil, errors.New("transport closed")
	}
}

func (t *fakeTransport) Write(data []byte) error {
	select {
	case <-t.closed:
		return errors.New("transport closed")
	default:
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	t.frames = append(t.frames, buf)
	return nil
}

func (t *fakeTransport) Close(code CloseCode, reason string) error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.code = code
		t.reason = reason
		t.mu.Unlock()
		close(t.closed)
	})
	return nil
}

func (t *fakeTransport) send(tb testing.TB, v any) {
	tb.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		tb.Fatalf("marshal inbound frame: %v", err)
	}
	select {
	case t.inbound <- data:
	case <-time.After(time.Second):
		tb.Fatalf("inbound queue full")
	}
}

func (t *fakeTransport) closeCode() CloseCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.code
}

// framesOfType decodes every written frame and returns those whose "type"
// field matches.
func (t *fakeTransport) framesOfType(frameType string) []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []map[string]any
	for _, raw := range t.frames {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		if m["type"] == frameType {
			out = append(out, m)
		}
	}
	return out
}

type fakeAuthService struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeAuthService() *fakeAuthService {
	return &fakeAuthService{users: make(map[string]*domain.User)}
}

func (f *fakeAuthService) addToken(token string, user *domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[token] = user
}

func (f *fakeAuthService) ValidateToken(ctx context.Context, token string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[token]; ok {
		return user, nil
	}
	return nil, pkgerrors.ErrInvalidCredentials
}

type fakeAccessService struct {
	mu       sync.Mutex
	denied   map[uuid.UUID]bool
	inactive map[uuid.UUID]bool
	muted    map[uuid.UUID]bool
	missing  map[uuid.UUID]bool

	hold        chan struct{}
	accessCalls int
}

func newFakeAccessService() *fakeAccessService {
	return &fakeAccessService{
		denied:   make(map[uuid.UUID]bool),
		inactive: make(map[uuid.UUID]bool),
		muted:    make(map[uuid.UUID]bool),
		missing:  make(map[uuid.UUID]bool),
	}
}

func (f *fakeAccessService) deny(userID uuid.UUID)       { f.set(f.denied, userID) }
func (f *fakeAccessService) deactivate(userID uuid.UUID) { f.set(f.inactive, userID) }
func (f *fakeAccessService) mute(userID uuid.UUID)       { f.set(f.muted, userID) }
func (f *fakeAccessService) remove(userID uuid.UUID)     { f.set(f.missing, userID) }

func (f *fakeAccessService) set(m map[uuid.UUID]bool, userID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m[userID] = true
}

// holdCanAccess makes subsequent CanAccess calls block until the returned
// release function runs, simulating a slow policy backend.
func (f *fakeAccessService) holdCanAccess() func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.hold = ch
	f.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeAccessService) canAccessCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accessCalls
}

func (f *fakeAccessService) CanAccess(ctx context.Context, userID, roomID uuid.UUID) (bool, error) {
	f.mu.Lock()
	f.accessCalls++
	hold := f.hold
	allowed := !f.denied[userID] && !f.inactive[userID]
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return allowed, nil
}

func (f *fakeAccessService) IsActiveUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.inactive[userID], nil
}

func (f *fakeAccessService) Participant(ctx context.Context, userID, roomID uuid.UUID) (*domain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[userID] {
		return nil, pkgerrors.ErrParticipantNotFound
	}
	return &domain.Participant{
		ID:       uuid.New(),
		RoomID:   roomID,
		UserID:   userID,
		IsMuted:  f.muted[userID],
		JoinedAt: time.Now(),
	}, nil
}

type fakeRateService struct {
	mu          sync.Mutex
	denyMessage bool
	retryAfter  int
	denyConnect bool
}

func (f *fakeRateService) setDenyMessage(deny bool, retryAfter int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denyMessage = deny
	f.retryAfter = retryAfter
}

func (f *fakeRateService) Allow(ctx context.Context, userID uuid.UUID, action string) (bool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch action {
	case service.ActionConnect:
		return !f.denyConnect, 0, nil
	default:
		if f.denyMessage {
			return false, f.retryAfter, nil
		}
		return true, 0, nil
	}
}

type fakeChatService struct {
	mu        sync.Mutex
	nextID    int64
	messages  map[int64]*domain.ChatMessage
	lastReads map[uuid.UUID]time.Time
}

func newFakeChatService() *fakeChatService {
	return &fakeChatService{
		messages:  make(map[int64]*domain.ChatMessage),
		lastReads: make(map[uuid.UUID]time.Time),
	}
}

func (f *fakeChatService) SendMessage(ctx context.Context, roomID, senderID uuid.UUID, content, messageType string) (*domain.ChatMessage, error) {
	if content == "" {
		return nil, pkgerrors.ErrBadRequest
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	message := &domain.ChatMessage{
		ID:           f.nextID,
		RoomID:       roomID,
		SenderUserID: senderID,
		MessageType:  messageType,
		Content:      content,
		CreatedAt:    time.Now(),
	}
	f.messages[message.ID] = message
	return message, nil
}

func (f *fakeChatService) EditMessage(ctx context.Context, roomID uuid.UUID, messageID int64, userID uuid.UUID, content string) (*domain.ChatMessage, error) {
	if content == "" {
		return nil, pkgerrors.ErrBadRequest
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	message, ok := f.messages[messageID]
	if !ok || message.RoomID != roomID {
		return nil, pkgerrors.ErrMessageNotFound
	}
	if message.SenderUserID != userID {
		return nil, pkgerrors.ErrForbidden
	}
	now := time.Now()
	message.Content = content
	message.EditedAt = &now
	return message, nil
}

func (f *fakeChatService) DeleteMessage(ctx context.Context, roomID uuid.UUID, messageID int64, userID uuid.UUID) (*domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	message, ok := f.messages[messageID]
	if !ok || message.RoomID != roomID {
		return nil, pkgerrors.ErrMessageNotFound
	}
	if message.SenderUserID != userID {
		return nil, pkgerrors.ErrForbidden
	}
	now := time.Now()
	message.DeletedAt = &now
	return message, nil
}

func (f *fakeChatService) UpdateLastRead(ctx context.Context, roomID, userID uuid.UUID, readAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReads[userID] = readAt
	return nil
}

func (f *fakeChatService) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.messages {
		if m.DeletedAt == nil {
			count++
		}
	}
	return count
}

func (f *fakeChatService) lastReadOf(userID uuid.UUID) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.lastReads[userID]
	return ts, ok
}

// testEnv wires a Gateway around fakes plus a real memory broadcaster.
type testEnv struct {
	gw     *Gateway
	auth   *fakeAuthService
	access *fakeAccessService
	rate   *fakeRateService
	chat   *fakeChatService
	bcast  Broadcaster
	reg    *Registry
}

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		BroadcastDriver:   "memory",
		AuthTimeout:       time.Second,
		HeartbeatInterval: 100 * time.Millisecond,
		HeartbeatTimeout:  5 * time.Second,
		RecheckInterval:   time.Hour,
		ShutdownGrace:     20 * time.Millisecond,
		MaxMessageSize:    1024,
		SendQueueSize:     64,
	}
}

func newTestEnv(t *testing.T, cfg config.GatewayConfig) *testEnv {
	t.Helper()

	log := logger.NewNop()
	env := &testEnv{
		auth:   newFakeAuthService(),
		access: newFakeAccessService(),
		rate:   &fakeRateService{},
		chat:   newFakeChatService(),
		bcast:  NewMemoryBroadcaster(log),
		reg:    NewRegistry(log),
	}
	env.gw = NewGateway(cfg, env.auth, env.access, env.chat, env.rate, env.bcast, env.reg, log)
	t.Cleanup(func() { _ = env.bcast.Close() })
	return env
}

// startConn launches a connection over a fresh fake transport and returns
// both. The connection's Run goroutine is joined on test cleanup.
func (env *testEnv) startConn(t *testing.T, roomID uuid.UUID, headerToken string) (*Connection, *fakeTransport) {
	t.Helper()

	transport := newFakeTransport()
	conn := env.gw.NewConnection(transport, roomID, headerToken)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.Run(context.Background())
	}()

	t.Cleanup(func() {
		conn.close(CloseNormal, "")
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("connection Run did not exit")
		}
	})

	return conn, transport
}

func newTestUser() *domain.User {
	return &domain.User{
		ID:          uuid.New(),
		Email:       "user@example.com",
		DisplayName: "User",
		GlobalRole:  domain.GlobalRoleUser,
		IsActive:    true,
	}
}

// authenticate drives the happy-path handshake and waits for auth_success.
func (env *testEnv) authenticate(t *testing.T, transport *fakeTransport, conn *Connection, token string) {
	t.Helper()
	transport.send(t, map[string]string{"type": FrameAuth, "token": token})
	waitFor(t, func() bool { return conn.State() == StateAuthenticated })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
