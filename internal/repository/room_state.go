package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"live_engagement/internal/domain"
	"live_engagement/pkg/logger"
)

const (
	// Ключи состояния комнаты: engagement:<category>:<code>:<purpose>
	RoomStateKeyPrefix = "engagement:%s:%s:%s"

	purposeCurrentStep      = "current-step"
	purposeEnded            = "ended"
	purposeCommentOverride  = "auto-comment-override"
	purposeQuestionOverride = "auto-question-override"
)

// RoomStateRepository хранит шаг цикла, флаг завершения и ручные переключатели автоответов.
// Ключи живут без TTL; транзакций нет, вызывающий код сам сериализует доступ к комнате.
type RoomStateRepository interface {
	CurrentStep(ctx context.Context, room domain.RoomKey) (domain.Step, error)
	SetCurrentStep(ctx context.Context, room domain.RoomKey, step domain.Step) error
	IsEnded(ctx context.Context, room domain.RoomKey) (bool, error)
	SetEnded(ctx context.Context, room domain.RoomKey, ended bool) error
	// Override возвращает nil, если переключатель не задан (действует значение сессии)
	Override(ctx context.Context, room domain.RoomKey, kind domain.EngagementKind) (*bool, error)
	SetOverride(ctx context.Context, room domain.RoomKey, kind domain.EngagementKind, value bool) error
}

type roomStateRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewRoomStateRepository(rdb *redis.Client, log logger.Logger) RoomStateRepository {
	return &roomStateRepository{rdb: rdb, log: log}
}

func roomStateKey(room domain.RoomKey, purpose string) string {
	return fmt.Sprintf(RoomStateKeyPrefix, room.Category, room.Code, purpose)
}

func overridePurpose(kind domain.EngagementKind) string {
	if kind == domain.KindQAndA {
		return purposeQuestionOverride
	}
	return purposeCommentOverride
}

func (r *roomStateRepository) get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		r.log.Error("Failed to read room state", "error", err, "key", key)
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return val, true, nil
}

func (r *roomStateRepository) set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		r.log.Error("Failed to write room state", "error", err, "key", key)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (r *roomStateRepository) CurrentStep(ctx context.Context, room domain.RoomKey) (domain.Step, error) {
	val, ok, err := r.get(ctx, roomStateKey(room, purposeCurrentStep))
	if err != nil || !ok {
		return domain.InitialStep, err
	}
	step, err := domain.ParseStep(val)
	if err != nil {
		// Мусор в кэше не должен останавливать комнату
		r.log.Warn("Unknown step in room state, resetting", "room", room, "value", val)
		return domain.InitialStep, nil
	}
	return step, nil
}

func (r *roomStateRepository) SetCurrentStep(ctx context.Context, room domain.RoomKey, step domain.Step) error {
	if !step.Valid() {
		return fmt.Errorf("invalid step %d", int(step))
	}
	return r.set(ctx, roomStateKey(room, purposeCurrentStep), step.String())
}

func (r *roomStateRepository) IsEnded(ctx context.Context, room domain.RoomKey) (bool, error) {
	val, ok, err := r.get(ctx, roomStateKey(room, purposeEnded))
	if err != nil || !ok {
		return false, err
	}
	ended, _ := strconv.ParseBool(val)
	return ended, nil
}

func (r *roomStateRepository) SetEnded(ctx context.Context, room domain.RoomKey, ended bool) error {
	return r.set(ctx, roomStateKey(room, purposeEnded), strconv.FormatBool(ended))
}

func (r *roomStateRepository) Override(ctx context.Context, room domain.RoomKey, kind domain.EngagementKind) (*bool, error) {
	val, ok, err := r.get(ctx, roomStateKey(room, overridePurpose(kind)))
	if err != nil || !ok {
		return nil, err
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return nil, nil
	}
	return &parsed, nil
}

func (r *roomStateRepository) SetOverride(ctx context.Context, room domain.RoomKey, kind domain.EngagementKind, value bool) error {
	return r.set(ctx, roomStateKey(room, overridePurpose(kind)), strconv.FormatBool(value))
}
