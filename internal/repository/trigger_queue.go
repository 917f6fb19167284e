package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"live_engagement/internal/domain"
	"live_engagement/pkg/logger"
)

const (
	TriggerQueueKeyPrefix     = "engagement:%s:%s:triggers"
	DeadTriggerQueueKeyPrefix = "engagement:%s:%s:dead-triggers"
	TriggerFailuresKeyPrefix  = "engagement:%s:%s:trigger-failures"

	triggerQueueScanPattern = "engagement:*:*:triggers"
)

// TriggerQueueRepository - упорядоченная очередь триггеров комнаты (Redis list, FIFO)
type TriggerQueueRepository interface {
	Enqueue(ctx context.Context, trigger *domain.Trigger) error
	All(ctx context.Context, room domain.RoomKey) ([]*domain.Trigger, error)
	FirstMatching(ctx context.Context, room domain.RoomKey, match func(*domain.Trigger) bool) (*domain.Trigger, error)
	// Remove удаляет триггер по ID; false - триггера в очереди уже нет
	Remove(ctx context.Context, room domain.RoomKey, triggerID string) (bool, error)
	Len(ctx context.Context, room domain.RoomKey) (int64, error)
	Purge(ctx context.Context, room domain.RoomKey) error
	// DeadLetter переносит триггер из очереди в отдельный список для разбора оператором
	DeadLetter(ctx context.Context, trigger *domain.Trigger) error
	DeadLetters(ctx context.Context, room domain.RoomKey) ([]*domain.Trigger, error)
	// RecordFailure увеличивает счетчик неудачных генераций триггера и возвращает новое значение
	RecordFailure(ctx context.Context, room domain.RoomKey, triggerID string) (int, error)
	// Rooms - комнаты, в очередях которых остались триггеры
	Rooms(ctx context.Context) ([]domain.RoomKey, error)
}

type triggerQueueRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewTriggerQueueRepository(rdb *redis.Client, log logger.Logger) TriggerQueueRepository {
	return &triggerQueueRepository{rdb: rdb, log: log}
}

func triggerQueueKey(room domain.RoomKey) string {
	return fmt.Sprintf(TriggerQueueKeyPrefix, room.Category, room.Code)
}

func deadTriggerQueueKey(room domain.RoomKey) string {
	return fmt.Sprintf(DeadTriggerQueueKeyPrefix, room.Category, room.Code)
}

func triggerFailuresKey(room domain.RoomKey) string {
	return fmt.Sprintf(TriggerFailuresKeyPrefix, room.Category, room.Code)
}

func (r *triggerQueueRepository) Enqueue(ctx context.Context, trigger *domain.Trigger) error {
	raw, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}
	if err := r.rdb.RPush(ctx, triggerQueueKey(trigger.Room), raw).Err(); err != nil {
		r.log.Error("Failed to enqueue trigger", "error", err, "room", trigger.Room)
		return fmt.Errorf("failed to enqueue trigger: %w", err)
	}
	return nil
}

func (r *triggerQueueRepository) All(ctx context.Context, room domain.RoomKey) ([]*domain.Trigger, error) {
	items, err := r.rdb.LRange(ctx, triggerQueueKey(room), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.log.Error("Failed to read trigger queue", "error", err, "room", room)
		return nil, fmt.Errorf("failed to read trigger queue: %w", err)
	}
	return r.decode(items), nil
}

func (r *triggerQueueRepository) decode(items []string) []*domain.Trigger {
	triggers := make([]*domain.Trigger, 0, len(items))
	for _, item := range items {
		var t domain.Trigger
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			r.log.Warn("Failed to unmarshal trigger", "error", err)
			continue
		}
		triggers = append(triggers, &t)
	}
	return triggers
}

func (r *triggerQueueRepository) FirstMatching(ctx context.Context, room domain.RoomKey, match func(*domain.Trigger) bool) (*domain.Trigger, error) {
	triggers, err := r.All(ctx, room)
	if err != nil {
		return nil, err
	}
	for _, t := range triggers {
		if match(t) {
			return t, nil
		}
	}
	return nil, nil
}

func (r *triggerQueueRepository) Remove(ctx context.Context, room domain.RoomKey, triggerID string) (bool, error) {
	key := triggerQueueKey(room)
	items, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("failed to read trigger queue: %w", err)
	}

	// Ищем сырое значение по ID и удаляем ровно его
	for _, item := range items {
		var t domain.Trigger
		if err := json.Unmarshal([]byte(item), &t); err != nil || t.ID != triggerID {
			continue
		}
		var removed *redis.IntCmd
		_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			removed = pipe.LRem(ctx, key, 1, item)
			pipe.HDel(ctx, triggerFailuresKey(room), triggerID)
			return nil
		})
		if err != nil {
			r.log.Error("Failed to remove trigger", "error", err, "trigger_id", triggerID)
			return false, fmt.Errorf("failed to remove trigger: %w", err)
		}
		return removed.Val() > 0, nil
	}
	return false, nil
}

func (r *triggerQueueRepository) Len(ctx context.Context, room domain.RoomKey) (int64, error) {
	n, err := r.rdb.LLen(ctx, triggerQueueKey(room)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to read trigger queue length: %w", err)
	}
	return n, nil
}

func (r *triggerQueueRepository) Purge(ctx context.Context, room domain.RoomKey) error {
	if err := r.rdb.Del(ctx, triggerQueueKey(room), triggerFailuresKey(room)).Err(); err != nil {
		r.log.Error("Failed to purge trigger queue", "error", err, "room", room)
		return fmt.Errorf("failed to purge trigger queue: %w", err)
	}
	return nil
}

func (r *triggerQueueRepository) DeadLetter(ctx context.Context, trigger *domain.Trigger) error {
	raw, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}
	if err := r.rdb.RPush(ctx, deadTriggerQueueKey(trigger.Room), raw).Err(); err != nil {
		return fmt.Errorf("failed to dead-letter trigger: %w", err)
	}
	if _, err := r.Remove(ctx, trigger.Room, trigger.ID); err != nil {
		return err
	}
	return nil
}

func (r *triggerQueueRepository) DeadLetters(ctx context.Context, room domain.RoomKey) ([]*domain.Trigger, error) {
	items, err := r.rdb.LRange(ctx, deadTriggerQueueKey(room), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read dead triggers: %w", err)
	}
	return r.decode(items), nil
}

func (r *triggerQueueRepository) RecordFailure(ctx context.Context, room domain.RoomKey, triggerID string) (int, error) {
	n, err := r.rdb.HIncrBy(ctx, triggerFailuresKey(room), triggerID, 1).Result()
	if err != nil {
		r.log.Error("Failed to record trigger failure", "error", err, "trigger_id", triggerID)
		return 0, fmt.Errorf("failed to record trigger failure: %w", err)
	}
	return int(n), nil
}

func (r *triggerQueueRepository) Rooms(ctx context.Context) ([]domain.RoomKey, error) {
	rooms := make([]domain.RoomKey, 0)
	iter := r.rdb.Scan(ctx, 0, triggerQueueScanPattern, 100).Iterator()
	for iter.Next(ctx) {
		room, ok := roomFromQueueKey(iter.Val())
		if !ok {
			r.log.Warn("Skipping unexpected trigger queue key", "key", iter.Val())
			continue
		}
		rooms = append(rooms, room)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan trigger queues: %w", err)
	}
	return rooms, nil
}

// roomFromQueueKey разбирает engagement:<category>:<code>:triggers
func roomFromQueueKey(key string) (domain.RoomKey, bool) {
	rest, ok := strings.CutPrefix(key, "engagement:")
	if !ok {
		return domain.RoomKey{}, false
	}
	rest, ok = strings.CutSuffix(rest, ":triggers")
	if !ok {
		return domain.RoomKey{}, false
	}
	rawCategory, code, ok := strings.Cut(rest, ":")
	if !ok {
		return domain.RoomKey{}, false
	}
	category, err := domain.ParseCategory(rawCategory)
	if err != nil {
		return domain.RoomKey{}, false
	}
	room := domain.NewRoomKey(code, category)
	return room, room.Valid()
}
