package service

import (
	"chat_gateway/internal/config"
	"chat_gateway/internal/repository"
	"chat_gateway/pkg/logger"
)

type Services struct {
	Auth      AuthService
	Access    AccessService
	Chat      ChatService
	RateLimit RateLimitService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, log logger.Logger) *Services {
	return &Services{
		Auth:      NewAuthService(repos.User, cfg.JWT, log),
		Access:    NewAccessService(repos.User, repos.Room, log),
		Chat:      NewChatService(repos.Chat, repos.Room, cfg.Gateway.MaxMessageSize, log),
		RateLimit: NewRateLimitService(repos.RateLimit, cfg.Gateway, log),
	}
}
