// internal/handlers/ws/ws_handler.go
package ws

import (
	"net/http"

	"glasstrace-service/internal/middleware"
	"glasstrace-service/internal/pkg/response"
	websock "glasstrace-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Agents connect from desktop apps and other hosts, not browsers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	hub    *websock.Hub
	logger *zap.Logger
}

func NewWSHandler(hub *websock.Hub, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		logger: logger,
	}
}

// Serve upgrades the connection and attaches it to the auth-event hub.
// Must be used behind Auth(); the token rides the query string because
// websocket clients cannot always set headers.
func (h *WSHandler) Serve(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		response.Error(c, http.StatusBadRequest, "websocket upgrade failed", err)
		return
	}

	client := websock.NewClient(h.hub, conn, identityID, h.logger)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
