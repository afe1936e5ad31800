package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat_gateway/internal/gateway"
)

type HealthHandler struct {
	registry *gateway.Registry
}

func NewHealthHandler(registry *gateway.Registry) *HealthHandler {
	return &HealthHandler{registry: registry}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"service":     "chat-gateway",
		"connections": h.registry.Len(),
	})
}
