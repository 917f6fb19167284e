package domain

import "time"

// Session - трансляция (презентация или эпизод канала), найденная по коду приглашения
type Session struct {
	Code            string     `json:"code"`
	Category        Category   `json:"category"`
	Title           string     `json:"title"`
	PresenterID     string     `json:"presenter_id"`
	AllowAIComment  bool       `json:"allow_ai_comment"`
	AllowAIQuestion bool       `json:"allow_ai_question"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (s *Session) Room() RoomKey {
	return NewRoomKey(s.Code, s.Category)
}

// AllowsAI - значение по умолчанию для автоответов данного вида
func (s *Session) AllowsAI(kind EngagementKind) bool {
	if kind == KindQAndA {
		return s.AllowAIQuestion
	}
	return s.AllowAIComment
}

// Guest - участник, опознанный по IP; не более одного гостя на адрес
type Guest struct {
	IPAddress   string    `json:"ip_address"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar"`
	CreatedAt   time.Time `json:"created_at"`
}

// Persona - одна из ИИ-личностей: ведущий, ведущий Q&A или "зритель" из ростера
type Persona struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// RoomState - живое состояние комнаты
type RoomState struct {
	Step      Step                    `json:"step"`
	Ended     bool                    `json:"ended"`
	Overrides map[EngagementKind]bool `json:"overrides"`
	QueueSize int64                   `json:"queue_size"`
}
