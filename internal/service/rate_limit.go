package service

import (
	"context"
	"time"

	"live_engagement/internal/repository"
	"live_engagement/pkg/logger"
)

// RateLimitService ограничивает частоту сообщений от одного участника
type RateLimitService interface {
	// Allow проверяет лимит и сразу учитывает попытку; возвращает остаток в окне
	Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, bool, error)
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, bool, error) {
	if limit <= 0 {
		return 0, true, nil
	}

	key := repository.RateLimitKey(scope, subject)
	allowed, err := s.rateLimitRepo.CheckLimit(ctx, key, limit, window)
	if err != nil {
		return 0, false, err
	}
	if !allowed {
		s.log.Debug("Rate limit exceeded", "scope", scope, "subject", subject)
		return 0, false, nil
	}

	count, err := s.rateLimitRepo.Increment(ctx, key, window)
	if err != nil {
		return 0, false, err
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true, nil
}
