package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ParticipantHeader = "X-Participant-ID"
	ParticipantIDKey  = "participant_id"
)

// ParticipantMiddleware берет participant_id из заголовка X-Participant-ID.
// Невалидный или отсутствующий идентификатор заменяется новым UUID, который
// возвращается клиенту в том же заголовке
func ParticipantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		participantID := c.GetHeader(ParticipantHeader)
		if _, err := uuid.Parse(participantID); err != nil {
			participantID = uuid.New().String()
		}

		c.Set(ParticipantIDKey, participantID)
		c.Header(ParticipantHeader, participantID)
		c.Next()
	}
}

func ParticipantID(c *gin.Context) string {
	return c.GetString(ParticipantIDKey)
}
