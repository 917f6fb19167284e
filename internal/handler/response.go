package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"live_engagement/internal/domain"
	apperrors "live_engagement/pkg/errors"
	"live_engagement/pkg/logger"
)

// respondError отдает ошибку сервиса с кодом из apperrors; детали 5xx остаются в логе
func respondError(c *gin.Context, log logger.Logger, err error) {
	status := apperrors.HTTPStatusFromError(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "error", err, "path", c.Request.URL.Path)
		message = apperrors.ErrInternalServer.Error()
	}
	c.JSON(status, apperrors.NewAPIError(message, status))
}

// roomFromPath разбирает :category и :code из пути
func roomFromPath(c *gin.Context) (domain.RoomKey, bool) {
	category, err := domain.ParseCategory(c.Param("category"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return domain.RoomKey{}, false
	}
	room := domain.NewRoomKey(c.Param("code"), category)
	if !room.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room code"})
		return domain.RoomKey{}, false
	}
	return room, true
}

func kindFromString(c *gin.Context, raw string) (domain.EngagementKind, bool) {
	kind, err := domain.ParseEngagementKind(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kind"})
		return "", false
	}
	return kind, true
}
