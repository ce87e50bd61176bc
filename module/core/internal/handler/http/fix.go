package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
)

type fixFeed interface {
	Push(fix domain.Fix)
}

type connUpgrader interface {
	Upgrade(w http.ResponseWriter, r *http.Request) error
}

// FixHandler accepts fixes over HTTP and serves the live notification
// stream.
type FixHandler struct {
	feed fixFeed
	hub  connUpgrader
}

func NewFixHandler(feed fixFeed, hub connUpgrader) *FixHandler {
	return &FixHandler{feed: feed, hub: hub}
}

func (h *FixHandler) Register(r *gin.RouterGroup) {
	r.POST("/fixes", h.PostFix)
	if h.hub != nil {
		r.GET("/ws", h.Stream)
	}
}

func (h *FixHandler) PostFix(c *gin.Context) {
	var msg domain.FixMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fix body"})
		return
	}
	if err := msg.Validate(); err != nil {
		writeError(c, err)
		return
	}

	h.feed.Push(msg.Fix())
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *FixHandler) Stream(c *gin.Context) {
	if err := h.hub.Upgrade(c.Writer, c.Request); err != nil {
		// the upgrader has already written the failure response
		zap.L().Warn("http: websocket upgrade failed", zap.Error(err))
	}
}
