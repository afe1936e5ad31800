package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chat_gateway/internal/config"
	"chat_gateway/internal/repository"
	"chat_gateway/pkg/logger"
)

// Rate-limited action kinds. Counters are keyed by user, not connection,
// so several tabs of the same user share one budget.
const (
	ActionSendMessage = "send_message"
	ActionConnect     = "connect"
)

// RateLimitService enforces fixed-window limits per (user, action) pair.
// Violations never return an error; the caller picks error-frame vs close
// semantics per action.
type RateLimitService interface {
	// Allow reports whether the action is within budget and, when it is
	// not, how many seconds remain until the window resets.
	Allow(ctx context.Context, userID uuid.UUID, action string) (bool, int, error)
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	cfg           config.GatewayConfig
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, cfg config.GatewayConfig, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		cfg:           cfg,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, userID uuid.UUID, action string) (bool, int, error) {
	limit, window := s.budget(action)

	key := fmt.Sprintf("ratelimit:%s:%s", action, userID)
	count, err := s.rateLimitRepo.Increment(ctx, key, window)
	if err != nil {
		return false, 0, err
	}

	if count > int64(limit) {
		return false, int(window / time.Second), nil
	}

	return true, 0, nil
}

func (s *rateLimitService) budget(action string) (int, time.Duration) {
	switch action {
	case ActionConnect:
		return s.cfg.ConnectionRateLimit, s.cfg.ConnectionRateWindow
	default:
		return s.cfg.MessageRateLimit, s.cfg.MessageRateWindow
	}
}
