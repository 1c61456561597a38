// internal/api/handlers/websocket_handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"shiptrack-api-server/internal/socket"
)

type WebSocketHandler struct {
	Hub            *socket.Hub
	AllowedOrigins []string
	Log            *zap.Logger
}

func (h *WebSocketHandler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range h.AllowedOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// ServeWs upgrades an authenticated request. The token arrives as ?token=
// because browsers cannot set headers on websocket requests.
func (h *WebSocketHandler) ServeWs(c *gin.Context) {
	actor := actorFrom(c)
	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.String("user_id", actor.ID), zap.Error(err))
		return
	}
	h.Hub.Serve(c.Request.Context(), conn, actor)
}
