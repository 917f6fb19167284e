package domain

import (
	"time"
)

type AuditLog struct {
	ID        int64                  `json:"id"`
	EventTime time.Time              `json:"event_time"`
	ActorID   *string                `json:"actor_id,omitempty"`
	ActorRole string                 `json:"actor_role"`
	RoomCode  string                 `json:"room_code"`
	Category  Category               `json:"category"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
}

const (
	ActorRolePresenter = "presenter"
	ActorRoleGuest     = "guest"
	ActorRoleSystem    = "system"
)

const (
	EventTypeAutoReplyToggled = "AUTO_REPLY_TOGGLED"
	EventTypeSessionEnded     = "SESSION_ENDED"
	EventTypeAIMessageSeeded  = "AI_MESSAGE_SEEDED"
	EventTypeTriggerDead      = "TRIGGER_DEAD_LETTERED"
)
