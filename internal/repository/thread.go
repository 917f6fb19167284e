package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"live_engagement/pkg/logger"
)

// ThreadTurn - одна реплика в истории разговора с моделью
type ThreadTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

const (
	ThreadRoleUser      = "user"
	ThreadRoleAssistant = "assistant"
)

// ThreadRepository хранит историю разговора ведущего, чтобы ответы в одной ветке были связными
type ThreadRepository interface {
	History(ctx context.Context, threadID string) ([]ThreadTurn, error)
	Append(ctx context.Context, threadID string, turns ...ThreadTurn) error
}

type threadRepository struct {
	rdb      *redis.Client
	log      logger.Logger
	ttl      time.Duration
	maxTurns int
}

func NewThreadRepository(rdb *redis.Client, log logger.Logger, ttl time.Duration, maxTurns int) ThreadRepository {
	return &threadRepository{rdb: rdb, log: log, ttl: ttl, maxTurns: maxTurns}
}

func threadKey(threadID string) string {
	return fmt.Sprintf("engagement:thread:%s", threadID)
}

func (r *threadRepository) History(ctx context.Context, threadID string) ([]ThreadTurn, error) {
	items, err := r.rdb.LRange(ctx, threadKey(threadID), 0, -1).Result()
	if err != nil {
		r.log.Error("Failed to read thread history", "error", err, "thread_id", threadID)
		return nil, err
	}

	turns := make([]ThreadTurn, 0, len(items))
	for _, item := range items {
		var turn ThreadTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			r.log.Warn("Skipping corrupt thread turn", "error", err, "thread_id", threadID)
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (r *threadRepository) Append(ctx context.Context, threadID string, turns ...ThreadTurn) error {
	if len(turns) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("failed to encode thread turn: %w", err)
		}
		values = append(values, string(data))
	}

	key := threadKey(threadID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if r.maxTurns > 0 {
			pipe.LTrim(ctx, key, int64(-r.maxTurns), -1)
		}
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		r.log.Error("Failed to append thread history", "error", err, "thread_id", threadID)
		return err
	}
	return nil
}
