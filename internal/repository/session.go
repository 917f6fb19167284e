package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"live_engagement/internal/domain"
	apperrors "live_engagement/pkg/errors"
	"live_engagement/pkg/logger"
)

// SessionRepository проверяет код приглашения и отдает настройки трансляции
type SessionRepository interface {
	GetByCode(ctx context.Context, room domain.RoomKey) (*domain.Session, error)
	MarkEnded(ctx context.Context, room domain.RoomKey, at time.Time) error
}

type sessionRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewSessionRepository(db *pgxpool.Pool, log logger.Logger) SessionRepository {
	return &sessionRepository{db: db, log: log}
}

func (r *sessionRepository) GetByCode(ctx context.Context, room domain.RoomKey) (*domain.Session, error) {
	session := &domain.Session{}
	var category string
	err := r.db.QueryRow(ctx, `
		SELECT code, category, title, presenter_id, allow_ai_comment, allow_ai_question, ended_at, created_at
		FROM engagement_sessions
		WHERE code = $1 AND category = $2
	`, room.Code, string(room.Category)).Scan(
		&session.Code, &category, &session.Title, &session.PresenterID,
		&session.AllowAIComment, &session.AllowAIQuestion, &session.EndedAt, &session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrSessionNotFound
		}
		r.log.Error("Failed to get session", "error", err, "room", room)
		return nil, err
	}
	session.Category = domain.Category(category)
	return session, nil
}

func (r *sessionRepository) MarkEnded(ctx context.Context, room domain.RoomKey, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE engagement_sessions
		SET ended_at = COALESCE(ended_at, $3)
		WHERE code = $1 AND category = $2
	`, room.Code, string(room.Category), at)
	if err != nil {
		r.log.Error("Failed to mark session ended", "error", err, "room", room)
		return err
	}
	return nil
}
