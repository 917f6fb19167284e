package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"live_engagement/internal/config"
	"live_engagement/internal/domain"
	"live_engagement/internal/repository"
	apperrors "live_engagement/pkg/errors"
	"live_engagement/pkg/logger"
)

// GenerationRequest - один запрос к текстовой модели от имени персоны
type GenerationRequest struct {
	Prompt   string
	ThreadID *string
	Author   domain.Persona
	Kind     domain.EngagementKind
}

type GenerationResult struct {
	Text     string
	ThreadID string
}

// GenerationClient выполняет одну генерацию; ошибка может быть временной
type GenerationClient interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// completer - минимальный контракт провайдера: системная роль плюс история реплик
type completer interface {
	Complete(ctx context.Context, system string, turns []repository.ThreadTurn) (string, error)
}

// NewGenerationClient собирает клиент выбранного провайдера с историей веток и повторами
func NewGenerationClient(cfg config.GenerationConfig, threads repository.ThreadRepository, log logger.Logger) (GenerationClient, error) {
	var provider completer
	switch cfg.Provider {
	case config.ProviderOpenAI:
		provider = newOpenAICompleter(cfg)
	case config.ProviderAnthropic:
		provider = newAnthropicCompleter(cfg)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}

	threaded := NewThreadedGenerationClient(provider, threads, cfg.CallTimeout, log)
	return NewRetryingGenerationClient(threaded, cfg.MaxAttempts, cfg.RetryDelay, log), nil
}

type threadedGenerationClient struct {
	provider    completer
	threads     repository.ThreadRepository
	callTimeout time.Duration
	log         logger.Logger
}

// NewThreadedGenerationClient хранит историю разговора по threadID, чтобы ведущий помнил ветку
func NewThreadedGenerationClient(provider completer, threads repository.ThreadRepository, callTimeout time.Duration, log logger.Logger) GenerationClient {
	return &threadedGenerationClient{
		provider:    provider,
		threads:     threads,
		callTimeout: callTimeout,
		log:         log,
	}
}

func (c *threadedGenerationClient) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	threadID := ""
	if req.ThreadID != nil && *req.ThreadID != "" {
		threadID = *req.ThreadID
	}

	var history []repository.ThreadTurn
	if threadID != "" {
		turns, err := c.threads.History(ctx, threadID)
		if err != nil {
			// Без истории ответ все равно возможен
			c.log.Warn("Generating without thread history", "error", err, "thread_id", threadID)
		}
		history = turns
	} else {
		threadID = uuid.New().String()
	}

	prompt := repository.ThreadTurn{Role: repository.ThreadRoleUser, Text: req.Prompt}
	turns := append(history, prompt)

	callCtx := ctx
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	text, err := c.provider.Complete(callCtx, personaSystemPrompt(req.Author, req.Kind), turns)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("generation returned empty text")
	}

	answer := repository.ThreadTurn{Role: repository.ThreadRoleAssistant, Text: text}
	if err := c.threads.Append(ctx, threadID, prompt, answer); err != nil {
		c.log.Warn("Failed to store thread history", "error", err, "thread_id", threadID)
	}

	return &GenerationResult{Text: text, ThreadID: threadID}, nil
}

type retryingGenerationClient struct {
	next        GenerationClient
	maxAttempts int
	delay       time.Duration
	log         logger.Logger
}

// NewRetryingGenerationClient повторяет вызов с фиксированной паузой; после maxAttempts
// возвращает ErrGenerationExhausted
func NewRetryingGenerationClient(next GenerationClient, maxAttempts int, delay time.Duration, log logger.Logger) GenerationClient {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &retryingGenerationClient{
		next:        next,
		maxAttempts: maxAttempts,
		delay:       delay,
		log:         log,
	}
}

func (c *retryingGenerationClient) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	var result *GenerationResult
	attempt := 0

	operation := func() error {
		attempt++
		res, err := c.next.Generate(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		result = res
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.delay), uint64(c.maxAttempts-1)),
		ctx,
	)

	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		c.log.Warn("Generation attempt failed, retrying",
			"error", err,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"persona", req.Author.Name,
			"retry_in", wait.String(),
		)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Error("Generation failed after all attempts", "error", err, "attempts", attempt, "persona", req.Author.Name)
		return nil, fmt.Errorf("%w after %d attempts: %v", apperrors.ErrGenerationExhausted, attempt, err)
	}

	return result, nil
}
