package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/laserpanama/legal-practice-stack/internal/api/middleware"
	"github.com/laserpanama/legal-practice-stack/internal/notify"
	"go.uber.org/zap"
)

type WSHandler struct {
	hub      *notify.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSHandler(hub *notify.Hub, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Connect upgrades an authenticated admin request to a live notification
// connection. Auth middleware runs first, so a bad credential never reaches
// the registry.
func (h *WSHandler) Connect(c *gin.Context) {
	principal := middleware.Principal(c)
	if principal == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("user_id", principal.UserID),
			zap.Error(err))
		return
	}

	conn, err := h.hub.Register(ws, principal.UserID, principal.Email)
	if err != nil {
		_ = ws.Close()
		return
	}

	h.readLoop(ws, conn.ID)
}

// readLoop handles client-to-server messages until the socket closes or a
// protocol error occurs, then removes the connection from all registries.
func (h *WSHandler) readLoop(ws *websocket.Conn, connectionID string) {
	defer h.hub.Unregister(connectionID)

	for {
		var msg notify.ClientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case notify.MessageHeartbeat:
			if err := h.hub.Heartbeat(connectionID); err != nil {
				return
			}
		case notify.MessageSubscribe:
			if err := h.hub.Subscribe(connectionID, msg.EventType); err != nil {
				h.logger.Warn("subscribe rejected",
					zap.String("connection_id", connectionID),
					zap.String("event_type", string(msg.EventType)),
					zap.Error(err))
			}
		case notify.MessageUnsubscribe:
			if err := h.hub.Unsubscribe(connectionID, msg.EventType); err != nil {
				return
			}
		default:
			h.logger.Warn("unknown client message, closing connection",
				zap.String("connection_id", connectionID),
				zap.String("type", msg.Type))
			return
		}
	}
}
