package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"live_engagement/internal/domain"
	apperrors "live_engagement/pkg/errors"
	"live_engagement/pkg/logger"
)

// MessageRepository - долговременное хранилище сообщений и ответов
type MessageRepository interface {
	// Create сохраняет сообщение; для ответа ID дописывается в replies родителя в той же транзакции.
	// Завершенная сессия дает ErrSessionEnded, сообщение не создается
	Create(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	// Replies возвращает прямых потомков сообщения в порядке создания
	Replies(ctx context.Context, parentID uuid.UUID) ([]*domain.Message, error)
	// ListThreads возвращает сообщения верхнего уровня с вложенными ответами
	ListThreads(ctx context.Context, room domain.RoomKey, kind domain.EngagementKind) ([]*domain.MessageThread, error)
	// Like идемпотентен по участнику
	Like(ctx context.Context, id uuid.UUID, participantID string) (*domain.Message, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

const messageColumns = `
	id, room_code, category, kind, text, sender, sender_image, is_ai_authored,
	parent_id, replies::text[], like_count, liked_by, thread_id, created_at
`

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// FOR SHARE держит строку сессии до коммита: MarkEnded ждет нас или мы видим ended_at
	var endedAt *time.Time
	err = tx.QueryRow(ctx, `
		SELECT ended_at FROM engagement_sessions
		WHERE code = $1 AND category = $2
		FOR SHARE
	`, message.RoomCode, string(message.Category)).Scan(&endedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrSessionNotFound
	}
	if err != nil {
		r.log.Error("Failed to lock session", "error", err, "room", message.Room())
		return fmt.Errorf("failed to lock session: %w", err)
	}
	if endedAt != nil {
		return apperrors.ErrSessionEnded
	}

	if message.ParentID != nil {
		// Родитель должен существовать и принадлежать той же комнате
		tag, err := tx.Exec(ctx, `
			UPDATE engagement_messages
			SET replies = array_append(replies, $2::uuid)
			WHERE id = $1 AND room_code = $3 AND category = $4
		`, *message.ParentID, message.ID, message.RoomCode, string(message.Category))
		if err != nil {
			r.log.Error("Failed to link reply to parent", "error", err, "parent_id", *message.ParentID)
			return fmt.Errorf("failed to link reply: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("parent %s: %w", *message.ParentID, apperrors.ErrMessageNotFound)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO engagement_messages (
			id, room_code, category, kind, text, sender, sender_image, is_ai_authored,
			parent_id, replies, like_count, liked_by, thread_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '{}', 0, '{}', $10, $11)
	`,
		message.ID, message.RoomCode, string(message.Category), string(message.Kind), message.Text,
		message.Sender, message.SenderImage, message.IsAIAuthored, message.ParentID,
		message.ThreadID, message.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create message", "error", err)
		return fmt.Errorf("failed to create message: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *messageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	row := r.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM engagement_messages WHERE id = $1`, id)
	message, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		r.log.Error("Failed to get message", "error", err, "message_id", id)
		return nil, err
	}
	return message, nil
}

func (r *messageRepository) Replies(ctx context.Context, parentID uuid.UUID) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM engagement_messages
		WHERE parent_id = $1
		ORDER BY created_at ASC
	`, parentID)
	if err != nil {
		r.log.Error("Failed to get replies", "error", err, "parent_id", parentID)
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (r *messageRepository) ListThreads(ctx context.Context, room domain.RoomKey, kind domain.EngagementKind) ([]*domain.MessageThread, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM engagement_messages
		WHERE room_code = $1 AND category = $2 AND kind = $3
		ORDER BY created_at ASC
	`, room.Code, string(room.Category), string(kind))
	if err != nil {
		r.log.Error("Failed to list messages", "error", err, "room", room)
		return nil, err
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	return BuildThreads(messages), nil
}

func (r *messageRepository) Like(ctx context.Context, id uuid.UUID, participantID string) (*domain.Message, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE engagement_messages
		SET like_count = like_count + 1, liked_by = array_append(liked_by, $2::text)
		WHERE id = $1 AND NOT ($2::text = ANY(liked_by))
		RETURNING `+messageColumns, id, participantID)
	message, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Уже лайкнуто этим участником или сообщения нет
		return r.GetByID(ctx, id)
	}
	if err != nil {
		r.log.Error("Failed to like message", "error", err, "message_id", id)
		return nil, err
	}
	return message, nil
}

// BuildThreads собирает дерево ответов; порядок детей повторяет replies родителя
func BuildThreads(messages []*domain.Message) []*domain.MessageThread {
	nodes := make(map[uuid.UUID]*domain.MessageThread, len(messages))
	for _, m := range messages {
		nodes[m.ID] = &domain.MessageThread{Message: m, ReplyMessages: []*domain.MessageThread{}}
	}

	threads := make([]*domain.MessageThread, 0)
	for _, m := range messages {
		if m.ParentID == nil {
			threads = append(threads, nodes[m.ID])
		}
	}
	for _, node := range nodes {
		for _, childID := range node.Replies {
			if child, ok := nodes[childID]; ok {
				node.ReplyMessages = append(node.ReplyMessages, child)
			}
		}
	}
	return threads
}

func collectMessages(rows pgx.Rows) ([]*domain.Message, error) {
	messages := make([]*domain.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		message  domain.Message
		category string
		kind     string
		replies  []string
	)
	err := row.Scan(
		&message.ID, &message.RoomCode, &category, &kind, &message.Text, &message.Sender,
		&message.SenderImage, &message.IsAIAuthored, &message.ParentID, &replies,
		&message.LikeCount, &message.LikedBy, &message.ThreadID, &message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	message.Category = domain.Category(category)
	message.Kind = domain.EngagementKind(kind)
	message.Replies = make([]uuid.UUID, 0, len(replies))
	for _, raw := range replies {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt reply id %q: %w", raw, err)
		}
		message.Replies = append(message.Replies, id)
	}
	if message.LikedBy == nil {
		message.LikedBy = []string{}
	}
	return &message, nil
}
