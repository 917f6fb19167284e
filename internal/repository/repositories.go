package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"live_engagement/internal/config"
	"live_engagement/pkg/logger"
)

type Repositories struct {
	Session      SessionRepository
	Guest        GuestRepository
	Message      MessageRepository
	RoomState    RoomStateRepository
	TriggerQueue TriggerQueueRepository
	Thread       ThreadRepository
	Audit        AuditRepository
	RateLimit    RateLimitRepository
}

func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, log logger.Logger) *Repositories {
	repos := &Repositories{
		Session:      NewSessionRepository(db, log),
		Guest:        NewGuestRepository(db, log),
		Message:      NewMessageRepository(db, log),
		RoomState:    NewRoomStateRepository(rdb, log),
		TriggerQueue: NewTriggerQueueRepository(rdb, log),
		Thread:       NewThreadRepository(rdb, log, cfg.Generation.ThreadTTL, cfg.Generation.ThreadMaxTurns),
		Audit:        NewAuditRepository(db, log),
		RateLimit:    NewRateLimitRepository(rdb, log),
	}

	log.Info("Repositories initialized")

	return repos
}
