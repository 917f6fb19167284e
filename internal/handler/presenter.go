package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"live_engagement/internal/middleware"
	"live_engagement/internal/service"
	"live_engagement/pkg/logger"
)

// PresenterHandler - управление комнатой со стороны ведущего, все маршруты за JWT
type PresenterHandler struct {
	engagementService service.EngagementService
	log               logger.Logger
}

func NewPresenterHandler(engagementService service.EngagementService, log logger.Logger) *PresenterHandler {
	return &PresenterHandler{
		engagementService: engagementService,
		log:               log,
	}
}

type ToggleAutoReplyRequest struct {
	Kind    string `json:"kind" binding:"required"`
	Enabled *bool  `json:"enabled" binding:"required"`
}

func (h *PresenterHandler) ToggleAutoReply(c *gin.Context) {
	room, ok := roomFromPath(c)
	if !ok {
		return
	}

	var req ToggleAutoReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, ok := kindFromString(c, req.Kind)
	if !ok {
		return
	}

	if err := h.engagementService.ToggleAutoReply(c.Request.Context(), room, middleware.PresenterID(c), kind, *req.Enabled); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kind":    kind,
		"enabled": *req.Enabled,
	})
}

func (h *PresenterHandler) EndSession(c *gin.Context) {
	room, ok := roomFromPath(c)
	if !ok {
		return
	}

	if err := h.engagementService.EndSession(c.Request.Context(), room, middleware.PresenterID(c)); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "session ended"})
}

func (h *PresenterHandler) StartAIComment(c *gin.Context) {
	room, ok := roomFromPath(c)
	if !ok {
		return
	}

	message, err := h.engagementService.StartAIComment(c.Request.Context(), room, middleware.PresenterID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

func (h *PresenterHandler) StartAIQuestion(c *gin.Context) {
	room, ok := roomFromPath(c)
	if !ok {
		return
	}

	message, err := h.engagementService.StartAIQuestion(c.Request.Context(), room, middleware.PresenterID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

func (h *PresenterHandler) State(c *gin.Context) {
	room, ok := roomFromPath(c)
	if !ok {
		return
	}

	state, err := h.engagementService.State(c.Request.Context(), room, middleware.PresenterID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, state)
}
