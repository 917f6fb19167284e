package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"live_engagement/internal/domain"
	"live_engagement/internal/repository"
	apperrors "live_engagement/pkg/errors"
	"live_engagement/pkg/logger"
)

const maxMessageLength = 2000

// EngagementService - входные операции комнаты: сообщения, ответы, лайки и управление ведущего
type EngagementService interface {
	JoinRoom(ctx context.Context, room domain.RoomKey) (*domain.Session, error)
	PostMessage(ctx context.Context, room domain.RoomKey, kind domain.EngagementKind, text, guestIP string) (*domain.Message, error)
	PostReply(ctx context.Context, room domain.RoomKey, parentID uuid.UUID, kind domain.EngagementKind, text, guestIP string) (*domain.Message, error)
	Like(ctx context.Context, messageID uuid.UUID, participantID string) (*domain.Message, error)
	Listing(ctx context.Context, room domain.RoomKey, kind domain.EngagementKind) ([]*domain.MessageThread, error)

	ToggleAutoReply(ctx context.Context, room domain.RoomKey, presenterID string, kind domain.EngagementKind, enabled bool) error
	EndSession(ctx context.Context, room domain.RoomKey, presenterID string) error
	StartAIComment(ctx context.Context, room domain.RoomKey, presenterID string) (*domain.Message, error)
	StartAIQuestion(ctx context.Context, room domain.RoomKey, presenterID string) (*domain.Message, error)
	State(ctx context.Context, room domain.RoomKey, presenterID string) (*domain.RoomState, error)
}

type EngagementDeps struct {
	Sessions    repository.SessionRepository
	Guests      repository.GuestRepository
	Messages    repository.MessageRepository
	RoomState   repository.RoomStateRepository
	Queue       repository.TriggerQueueRepository
	Generator   GenerationClient
	Personas    PersonaService
	Broadcaster Broadcaster
	Dispatcher  Dispatcher
	Audit       AuditService
	Metrics     *Metrics
}

type engagementService struct {
	EngagementDeps
	log logger.Logger
}

func NewEngagementService(deps EngagementDeps, log logger.Logger) EngagementService {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	return &engagementService{EngagementDeps: deps, log: log}
}

func (s *engagementService) JoinRoom(ctx context.Context, room domain.RoomKey) (*domain.Session, error) {
	if !room.Valid() {
		return nil, fmt.Errorf("%w: invalid room %s", apperrors.ErrBadRequest, room)
	}
	return s.Sessions.GetByCode(ctx, room)
}

// openSession возвращает сессию, если она существует и еще не завершена
func (s *engagementService) openSession(ctx context.Context, room domain.RoomKey) (*domain.Session, error) {
	session, err := s.JoinRoom(ctx, room)
	if err != nil {
		return nil, err
	}
	if session.EndedAt != nil {
		return nil, apperrors.ErrSessionEnded
	}
	ended, err := s.RoomState.IsEnded(ctx, room)
	if err != nil {
		return nil, err
	}
	if ended {
		return nil, apperrors.ErrSessionEnded
	}
	return session, nil
}

// presenterSession дополнительно проверяет, что запрос пришел от ведущего этой сессии
func (s *engagementService) presenterSession(ctx context.Context, room domain.RoomKey, presenterID string) (*domain.Session, error) {
	session, err := s.JoinRoom(ctx, room)
	if err != nil {
		return nil, err
	}
	if presenterID == "" || session.PresenterID != presenterID {
		return nil, apperrors.ErrForbidden
	}
	return session, nil
}

func (s *engagementService) guest(ctx context.Context, ip string) (*domain.Guest, error) {
	name, avatar := s.Personas.GuestIdentity()
	return s.Guests.GetOrCreate(ctx, &domain.Guest{
		IPAddress:   ip,
		DisplayName: name,
		Avatar:      avatar,
		CreatedAt:   time.Now().UTC(),
	})
}

func validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: text is required", apperrors.ErrBadRequest)
	}
	if len([]rune(text)) > maxMessageLength {
		return "", fmt.Errorf("%w: text exceeds %d characters", apperrors.ErrBadRequest, maxMessageLength)
	}
	return text, nil
}

func (s *engagementService) PostMessage(ctx context.Context, room domain.RoomKey, kind domain.EngagementKind, text, guestIP string) (*domain.Message, error) {
	text, err := validateText(text)
	if err != nil {
		return nil, err
	}
	if _, err := s.openSession(ctx, room); err != nil {
		return nil, err
	}
	guest, err := s.guest(ctx, guestIP)
	if err != nil {
		return nil, err
	}

	message := domain.NewMessage(room, kind, text, guest.DisplayName, guest.Avatar, false, nil)
	if err := s.Messages.Create(ctx, message); err != nil {
		return nil, err
	}

	// Сообщение верхнего уровня всегда от человека: отвечает случайный персонаж
	trigger := domain.NewTrigger(room, domain.StepFor(kind, false), text, guest.DisplayName, message.ID)
	if err := s.enqueue(ctx, trigger); err != nil {
		return nil, err
	}

	s.Broadcaster.Broadcast(room, domain.CreateEvent(kind), message)
	publishListing(ctx, s.Messages, s.Broadcaster, s.log, room, kind)
	s.Dispatcher.Kick(room)
	return message, nil
}

func (s *engagementService) PostReply(ctx context.Context, room domain.RoomKey, parentID uuid.UUID, kind domain.EngagementKind, text, guestIP string) (*domain.Message, error) {
	text, err := validateText(text)
	if err != nil {
		return nil, err
	}
	if _, err := s.openSession(ctx, room); err != nil {
		return nil, err
	}

	parent, err := s.Messages.GetByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.Room() != room {
		return nil, apperrors.ErrMessageNotFound
	}
	if parent.Kind != kind {
		return nil, fmt.Errorf("%w: reply kind %s does not match parent kind %s", apperrors.ErrBadRequest, kind, parent.Kind)
	}

	guest, err := s.guest(ctx, guestIP)
	if err != nil {
		return nil, err
	}

	reply := domain.NewMessage(room, kind, text, guest.DisplayName, guest.Avatar, false, &parent.ID)
	if err := s.Messages.Create(ctx, reply); err != nil {
		return nil, err
	}

	// Ответ на реплику ИИ продолжает ведущий, ответ человеку - персонаж из ростера
	trigger := domain.NewTrigger(room, domain.StepFor(kind, parent.IsAIAuthored), text, guest.DisplayName, parent.ID)
	if err := s.enqueue(ctx, trigger); err != nil {
		return nil, err
	}

	s.Broadcaster.Broadcast(room, domain.ReplyEvent(kind), reply)
	publishListing(ctx, s.Messages, s.Broadcaster, s.log, room, kind)
	s.Dispatcher.Kick(room)
	return reply, nil
}

func (s *engagementService) enqueue(ctx context.Context, trigger *domain.Trigger) error {
	if err := s.Queue.Enqueue(ctx, trigger); err != nil {
		return err
	}
	s.Metrics.TriggersEnqueued.WithLabelValues(trigger.Step.String()).Inc()
	s.log.Debug("Trigger enqueued", "room", trigger.Room, "trigger_id", trigger.ID, "step", trigger.Step.String())
	return nil
}

func (s *engagementService) Like(ctx context.Context, messageID uuid.UUID, participantID string) (*domain.Message, error) {
	if strings.TrimSpace(participantID) == "" {
		return nil, fmt.Errorf("%w: participant is required", apperrors.ErrBadRequest)
	}
	message, err := s.Messages.Like(ctx, messageID, participantID)
	if err != nil {
		return nil, err
	}
	publishListing(ctx, s.Messages, s.Broadcaster, s.log, message.Room(), message.Kind)
	return message, nil
}

func (s *engagementService) Listing(ctx context.Context, room domain.RoomKey, kind domain.EngagementKind) ([]*domain.MessageThread, error) {
	if _, err := s.JoinRoom(ctx, room); err != nil {
		return nil, err
	}
	return s.Messages.ListThreads(ctx, room, kind)
}

func (s *engagementService) ToggleAutoReply(ctx context.Context, room domain.RoomKey, presenterID string, kind domain.EngagementKind, enabled bool) error {
	if _, err := s.presenterSession(ctx, room, presenterID); err != nil {
		return err
	}
	if err := s.RoomState.SetOverride(ctx, room, kind, enabled); err != nil {
		return err
	}

	_ = s.Audit.LogEvent(ctx, &presenterID, domain.ActorRolePresenter, room, domain.EventTypeAutoReplyToggled, map[string]interface{}{
		"kind":    string(kind),
		"enabled": enabled,
	})
	s.log.Info("Auto reply toggled", "room", room, "kind", string(kind), "enabled", enabled)

	// Включение должно возобновить застывшую комнату без ожидания нового сообщения
	s.Dispatcher.Kick(room)
	return nil
}

func (s *engagementService) EndSession(ctx context.Context, room domain.RoomKey, presenterID string) error {
	if _, err := s.presenterSession(ctx, room, presenterID); err != nil {
		return err
	}
	if err := s.RoomState.SetEnded(ctx, room, true); err != nil {
		return err
	}
	if err := s.Sessions.MarkEnded(ctx, room, time.Now().UTC()); err != nil {
		return err
	}

	_ = s.Audit.LogEvent(ctx, &presenterID, domain.ActorRolePresenter, room, domain.EventTypeSessionEnded, nil)
	s.log.Info("Session ended", "room", room)

	// Следующий тик очистит очередь
	s.Dispatcher.Kick(room)
	return nil
}

func (s *engagementService) StartAIComment(ctx context.Context, room domain.RoomKey, presenterID string) (*domain.Message, error) {
	return s.startAI(ctx, room, presenterID, domain.KindComment)
}

func (s *engagementService) StartAIQuestion(ctx context.Context, room domain.RoomKey, presenterID string) (*domain.Message, error) {
	return s.startAI(ctx, room, presenterID, domain.KindQAndA)
}

// startAI открывает новую ветку от имени ведущего; очередь триггеров не затрагивается
func (s *engagementService) startAI(ctx context.Context, room domain.RoomKey, presenterID string, kind domain.EngagementKind) (*domain.Message, error) {
	if _, err := s.presenterSession(ctx, room, presenterID); err != nil {
		return nil, err
	}
	session, err := s.openSession(ctx, room)
	if err != nil {
		return nil, err
	}

	persona := s.Personas.Host(kind)
	s.Broadcaster.Broadcast(room, domain.TypingEvent(kind), domain.TypingPayload{Kind: kind, IsTyping: true, Persona: persona})
	started := time.Now()
	result, err := s.Generator.Generate(ctx, GenerationRequest{
		Prompt: seedPrompt(kind, session),
		Author: persona,
		Kind:   kind,
	})
	s.Metrics.GenerationSeconds.Observe(time.Since(started).Seconds())
	s.Broadcaster.Broadcast(room, domain.TypingEvent(kind), domain.TypingPayload{Kind: kind, IsTyping: false, Persona: persona})
	if err != nil {
		s.Metrics.GenerationFailures.Inc()
		s.Broadcaster.Broadcast(room, domain.EventError, domain.ErrorPayload{Message: "AI message could not be generated"})
		return nil, err
	}

	ended, err := s.RoomState.IsEnded(ctx, room)
	if err != nil {
		return nil, err
	}
	if ended {
		return nil, apperrors.ErrSessionEnded
	}

	message := domain.NewMessage(room, kind, result.Text, persona.Name, persona.Image, true, nil)
	if result.ThreadID != "" {
		threadID := result.ThreadID
		message.ThreadID = &threadID
	}
	if err := s.Messages.Create(ctx, message); err != nil {
		return nil, err
	}

	s.Broadcaster.Broadcast(room, domain.CreateEvent(kind), message)
	publishListing(ctx, s.Messages, s.Broadcaster, s.log, room, kind)

	_ = s.Audit.LogEvent(ctx, &presenterID, domain.ActorRolePresenter, room, domain.EventTypeAIMessageSeeded, map[string]interface{}{
		"kind":       string(kind),
		"message_id": message.ID.String(),
	})
	return message, nil
}

func (s *engagementService) State(ctx context.Context, room domain.RoomKey, presenterID string) (*domain.RoomState, error) {
	if _, err := s.presenterSession(ctx, room, presenterID); err != nil {
		return nil, err
	}

	step, err := s.RoomState.CurrentStep(ctx, room)
	if err != nil {
		return nil, err
	}
	ended, err := s.RoomState.IsEnded(ctx, room)
	if err != nil {
		return nil, err
	}
	size, err := s.Queue.Len(ctx, room)
	if err != nil {
		return nil, err
	}

	state := &domain.RoomState{
		Step:      step,
		Ended:     ended,
		Overrides: make(map[domain.EngagementKind]bool),
		QueueSize: size,
	}
	for _, kind := range []domain.EngagementKind{domain.KindComment, domain.KindQAndA} {
		override, err := s.RoomState.Override(ctx, room, kind)
		if err != nil {
			return nil, err
		}
		if override != nil {
			state.Overrides[kind] = *override
		}
	}
	return state, nil
}

// publishListing рассылает обновленный список веток; ошибка чтения только логируется
func publishListing(ctx context.Context, messages repository.MessageRepository, broadcaster Broadcaster, log logger.Logger, room domain.RoomKey, kind domain.EngagementKind) {
	threads, err := messages.ListThreads(ctx, room, kind)
	if err != nil {
		log.Warn("Failed to refresh listing", "error", err, "room", room)
		return
	}
	broadcaster.Broadcast(room, domain.EventFetchMessages, domain.ListingPayload{Kind: kind, Messages: threads})
}
