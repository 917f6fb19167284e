package middleware

import (
	"github.com/gin-gonic/gin"
	"live_engagement/pkg/errors"
	"live_engagement/pkg/logger"
)

// ErrorHandler превращает ошибки, добавленные через c.Error, в JSON-ответ
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last()
		statusCode := errors.HTTPStatusFromError(err.Err)
		message := err.Error()
		if statusCode >= 500 {
			log.Error("Unhandled request error", "error", err.Err, "path", c.Request.URL.Path)
			message = errors.ErrInternalServer.Error()
		}

		c.JSON(statusCode, errors.NewAPIError(message, statusCode))
	}
}
