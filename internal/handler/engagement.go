package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"live_engagement/internal/middleware"
	"live_engagement/internal/service"
	"live_engagement/pkg/logger"
)

type EngagementHandler struct {
	engagementService service.EngagementService
	log               logger.Logger
}

func NewEngagementHandler(engagementService service.EngagementService, log logger.Logger) *EngagementHandler {
	return &EngagementHandler{
		engagementService: engagementService,
		log:               log,
	}
}

func (h *EngagementHandler) ListMessages(c *gin.Context) {
	room, ok := roomFromPath(c)
	if !ok {
		return
	}
	kind, ok := kindFromString(c, c.Query("kind"))
	if !ok {
		return
	}

	threads, err := h.engagementService.Listing(c.Request.Context(), room, kind)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kind":     kind,
		"messages": threads,
	})
}

type PostMessageRequest struct {
	Kind string `json:"kind" binding:"required"`
	Text string `json:"text" binding:"required"`
}

func (h *EngagementHandler) PostMessage(c *gin.Context) {
	room, ok := roomFromPath(c)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, ok := kindFromString(c, req.Kind)
	if !ok {
		return
	}

	message, err := h.engagementService.PostMessage(c.Request.Context(), room, kind, req.Text, c.ClientIP())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

func (h *EngagementHandler) PostReply(c *gin.Context) {
	room, ok := roomFromPath(c)
	if !ok {
		return
	}
	parentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, ok := kindFromString(c, req.Kind)
	if !ok {
		return
	}

	reply, err := h.engagementService.PostReply(c.Request.Context(), room, parentID, kind, req.Text, c.ClientIP())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, reply)
}

func (h *EngagementHandler) Like(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	message, err := h.engagementService.Like(c.Request.Context(), messageID, middleware.ParticipantID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, message)
}
