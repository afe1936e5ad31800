package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat_gateway/internal/config"
	"chat_gateway/internal/gateway"
	"chat_gateway/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin checks belong to the reverse proxy in this deployment
	},
}

type WebSocketHandler struct {
	gateway *gateway.Gateway
	cfg     config.GatewayConfig
	log     logger.Logger
}

func NewWebSocketHandler(gw *gateway.Gateway, cfg config.GatewayConfig, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		gateway: gw,
		cfg:     cfg,
		log:     log,
	}
}

// HandleChat upgrades the request and hands the socket to the protocol
// engine. The goroutine blocks until the connection finishes.
func (h *WebSocketHandler) HandleChat(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}

	headerToken := ""
	if h.cfg.HeaderAuth {
		headerToken = bearerToken(c.GetHeader("Authorization"))
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("failed to upgrade connection", "error", err)
		return
	}

	transport := gateway.NewWebsocketTransport(conn, int64(h.cfg.MaxMessageSize)+1024)
	h.gateway.NewConnection(transport, roomID, headerToken).Run(c.Request.Context())
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
