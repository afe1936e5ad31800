package handler

import (
	"chat_gateway/internal/config"
	"chat_gateway/internal/gateway"
	"chat_gateway/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(gw *gateway.Gateway, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(gw.Registry()),
		WebSocket: NewWebSocketHandler(gw, cfg.Gateway, log),
	}
}
