package service

import (
	"context"
	"time"

	"live_engagement/internal/domain"
	"live_engagement/internal/repository"
	"live_engagement/pkg/logger"
)

type AuditService interface {
	LogEvent(ctx context.Context, actorID *string, actorRole string, room domain.RoomKey, eventType string, payload map[string]interface{}) error
}

type auditService struct {
	auditRepo repository.AuditRepository
	log       logger.Logger
}

func NewAuditService(auditRepo repository.AuditRepository, log logger.Logger) AuditService {
	return &auditService{
		auditRepo: auditRepo,
		log:       log,
	}
}

func (s *auditService) LogEvent(ctx context.Context, actorID *string, actorRole string, room domain.RoomKey, eventType string, payload map[string]interface{}) error {
	if payload == nil {
		payload = make(map[string]interface{})
	}

	auditLog := &domain.AuditLog{
		EventTime: time.Now().UTC(),
		ActorID:   actorID,
		ActorRole: actorRole,
		RoomCode:  room.Code,
		Category:  room.Category,
		EventType: eventType,
		Payload:   payload,
	}

	if err := s.auditRepo.CreateLog(ctx, auditLog); err != nil {
		s.log.Warn("Audit event lost", "error", err, "event_type", eventType, "room", room)
		return err
	}
	return nil
}
