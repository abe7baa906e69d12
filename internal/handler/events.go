package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const keepAlive = 25 * time.Second

// Events streams recorded scans as server-sent events until the client leaves.
func (h *Handler) Events(c *gin.Context) {
	if h.bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live feed disabled"})
		return
	}
	ctx := c.Request.Context()
	ch, err := h.bus.Subscribe(ctx)
	if err != nil {
		h.log.Error("subscribe failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live feed unavailable"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent(evt.Type, evt)
		case <-ping.C:
			c.SSEvent("ping", "")
		}
		c.Writer.Flush()
	}
}
