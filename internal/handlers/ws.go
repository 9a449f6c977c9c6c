package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleWebSocket streams leaderboard updates until the client goes away.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live stream disabled"})
		return
	}

	conn, err := h.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "ip", c.ClientIP(), "error", err)
		return
	}
	h.hub.Serve(conn)
}
