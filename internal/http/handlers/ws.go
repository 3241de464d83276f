package handlers

import (
	"net/http"
	"os"

	"raid_backend/internal/logger"
	"raid_backend/internal/service"
	"raid_backend/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// RoomEvents upgrades to a websocket subscribed to one room's lifecycle
// events. The JWT travels in the query string since browsers cannot set
// headers on websocket upgrades.
func (h *Handler) RoomEvents(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}

	address, err := service.ParseJWT(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	roomID := c.Param("id")
	if room, _, err := h.Rooms.Get(c.Request.Context(), roomID); err != nil || room == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	allowedOrigin := os.Getenv("ALLOWED_ORIGIN")
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("ws upgrade failed", "error", err.Error())
		return
	}

	client := ws.NewClient(address, conn)
	h.Hub.Subscribe(roomID, client)

	go func() {
		client.Run()
		h.Hub.Unsubscribe(roomID, client)
	}()
}
