package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
	"github.com/nandanugg/geofence-monitor/module/core/service"
)

type sessionService interface {
	View() service.SessionView
	AnswerPrompt(accept bool) error
	TapPoint(coord domain.Coordinate) error
	ConfirmName(name string) error
	Cancel() error
	RequestAddMore(ctx context.Context) error
	RemoveFence(name string) error
	EditFence(name string) error
}

type geofenceReader interface {
	List() []domain.Geofence
	Get(name string) (domain.Geofence, error)
}

type promptRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

type tapRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

type confirmRequest struct {
	Name string `json:"name"`
}

// SessionHandler exposes the interaction state machine and the registry.
// Every session mutation responds with the resulting view.
type SessionHandler struct {
	session   sessionService
	geofences geofenceReader
}

func NewSessionHandler(session sessionService, geofences geofenceReader) *SessionHandler {
	return &SessionHandler{session: session, geofences: geofences}
}

func (h *SessionHandler) Register(r *gin.RouterGroup) {
	r.GET("/session", h.GetSession)
	r.POST("/session/prompt", h.AnswerPrompt)
	r.POST("/session/tap", h.TapPoint)
	r.POST("/session/confirm", h.ConfirmName)
	r.POST("/session/cancel", h.Cancel)
	r.POST("/session/add-more", h.RequestAddMore)

	r.GET("/geofences", h.ListGeofences)
	r.GET("/geofences/:name", h.GetGeofence)
	r.DELETE("/geofences/:name", h.RemoveGeofence)
	r.POST("/geofences/:name/edit", h.EditGeofence)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.View())
}

func (h *SessionHandler) AnswerPrompt(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accept is required"})
		return
	}
	h.respond(c, h.session.AnswerPrompt(*req.Accept))
}

func (h *SessionHandler) TapPoint(c *gin.Context) {
	var req tapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude are required"})
		return
	}
	h.respond(c, h.session.TapPoint(domain.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}))
}

func (h *SessionHandler) ConfirmName(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.respond(c, h.session.ConfirmName(req.Name))
}

func (h *SessionHandler) Cancel(c *gin.Context) {
	h.respond(c, h.session.Cancel())
}

func (h *SessionHandler) RequestAddMore(c *gin.Context) {
	h.respond(c, h.session.RequestAddMore(c.Request.Context()))
}

func (h *SessionHandler) ListGeofences(c *gin.Context) {
	c.JSON(http.StatusOK, h.geofences.List())
}

func (h *SessionHandler) GetGeofence(c *gin.Context) {
	gf, err := h.geofences.Get(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gf)
}

func (h *SessionHandler) RemoveGeofence(c *gin.Context) {
	if err := h.session.RemoveFence(c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) EditGeofence(c *gin.Context) {
	h.respond(c, h.session.EditFence(c.Param("name")))
}

func (h *SessionHandler) respond(c *gin.Context, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.View())
}
