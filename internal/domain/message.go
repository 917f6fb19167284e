package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message - комментарий или вопрос в комнате; ответы ссылаются на родителя через ParentID
type Message struct {
	ID           uuid.UUID      `json:"id"`
	RoomCode     string         `json:"room_code"`
	Category     Category       `json:"category"`
	Kind         EngagementKind `json:"kind"`
	Text         string         `json:"text"`
	Sender       string         `json:"sender"`
	SenderImage  string         `json:"sender_image,omitempty"`
	IsAIAuthored bool           `json:"is_ai_authored"`
	ParentID     *uuid.UUID     `json:"parent_id,omitempty"`
	Replies      []uuid.UUID    `json:"replies"`
	LikeCount    int            `json:"like_count"`
	LikedBy      []string       `json:"liked_by"`
	ThreadID     *string        `json:"thread_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (m *Message) Room() RoomKey {
	return NewRoomKey(m.RoomCode, m.Category)
}

func (m *Message) IsTopLevel() bool {
	return m.ParentID == nil
}

// MessageThread - сообщение вместе с развернутыми ответами (рекурсивно)
type MessageThread struct {
	*Message
	ReplyMessages []*MessageThread `json:"reply_messages"`
}

// NewMessage собирает сообщение с пустыми коллекциями, чтобы JSON не содержал null
func NewMessage(room RoomKey, kind EngagementKind, text, sender, senderImage string, isAI bool, parentID *uuid.UUID) *Message {
	return &Message{
		ID:           uuid.New(),
		RoomCode:     room.Code,
		Category:     room.Category,
		Kind:         kind,
		Text:         text,
		Sender:       sender,
		SenderImage:  senderImage,
		IsAIAuthored: isAI,
		ParentID:     parentID,
		Replies:      []uuid.UUID{},
		LikedBy:      []string{},
		CreatedAt:    time.Now().UTC(),
	}
}
