package domain

// Имена событий, рассылаемых всем сокетам комнаты
const (
	EventFetchMessages    = "fetchMessages"
	EventCreateComment    = "createComment"
	EventCreateQuestion   = "createQuestion"
	EventReplyComment     = "replyComment"
	EventReplyQuestion    = "replyQuestion"
	EventIsTypingComment  = "isTypingComment"
	EventIsTypingQuestion = "isTypingQuestion"
	EventError            = "error"
)

// Event - конверт сообщения, уходящего в websocket
type Event struct {
	Type    string  `json:"type"`
	Room    RoomKey `json:"room"`
	Payload any     `json:"payload"`
}

type TypingPayload struct {
	Kind     EngagementKind `json:"kind"`
	IsTyping bool           `json:"is_typing"`
	Persona  Persona        `json:"persona"`
}

type ErrorPayload struct {
	Message   string `json:"message"`
	TriggerID string `json:"trigger_id,omitempty"`
	Step      string `json:"step,omitempty"`
}

type ListingPayload struct {
	Kind     EngagementKind   `json:"kind"`
	Messages []*MessageThread `json:"messages"`
}

func CreateEvent(kind EngagementKind) string {
	if kind == KindQAndA {
		return EventCreateQuestion
	}
	return EventCreateComment
}

func ReplyEvent(kind EngagementKind) string {
	if kind == KindQAndA {
		return EventReplyQuestion
	}
	return EventReplyComment
}

func TypingEvent(kind EngagementKind) string {
	if kind == KindQAndA {
		return EventIsTypingQuestion
	}
	return EventIsTypingComment
}
