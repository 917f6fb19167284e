package domain

import (
	"time"

	"github.com/google/uuid"
)

// Trigger - запись в очереди комнаты: на какое сообщение и по какому правилу сгенерировать ответ
type Trigger struct {
	ID              string         `json:"id"`
	Room            RoomKey        `json:"room"`
	Kind            EngagementKind `json:"kind"`
	Step            Step           `json:"step"`
	MessageText     string         `json:"message_text"`
	SenderName      string         `json:"sender_name"`
	ParentMessageID uuid.UUID      `json:"parent_message_id"`
	CreatedAt       time.Time      `json:"created_at"`
}

// NewTrigger присваивает триггеру уникальный ID; удаление из очереди идет по нему
func NewTrigger(room RoomKey, step Step, text, sender string, parentID uuid.UUID) *Trigger {
	return &Trigger{
		ID:              uuid.New().String(),
		Room:            room,
		Kind:            step.Kind(),
		Step:            step,
		MessageText:     text,
		SenderName:      sender,
		ParentMessageID: parentID,
		CreatedAt:       time.Now().UTC(),
	}
}

func (t *Trigger) Matches(kind EngagementKind, step Step) bool {
	return t.Kind == kind && t.Step == step
}
