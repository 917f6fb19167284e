package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"live_engagement/internal/domain"
	apperrors "live_engagement/pkg/errors"
	"live_engagement/pkg/logger"
)

type GuestRepository interface {
	GetByIP(ctx context.Context, ip string) (*domain.Guest, error)
	// GetOrCreate создает гостя только при первом обращении с данного IP
	GetOrCreate(ctx context.Context, guest *domain.Guest) (*domain.Guest, error)
}

type guestRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewGuestRepository(db *pgxpool.Pool, log logger.Logger) GuestRepository {
	return &guestRepository{db: db, log: log}
}

func (r *guestRepository) GetByIP(ctx context.Context, ip string) (*domain.Guest, error) {
	guest := &domain.Guest{}
	err := r.db.QueryRow(ctx, `
		SELECT ip_address, display_name, avatar, created_at
		FROM engagement_guests
		WHERE ip_address = $1
	`, ip).Scan(&guest.IPAddress, &guest.DisplayName, &guest.Avatar, &guest.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrGuestNotFound
		}
		r.log.Error("Failed to get guest", "error", err)
		return nil, err
	}
	return guest, nil
}

func (r *guestRepository) GetOrCreate(ctx context.Context, guest *domain.Guest) (*domain.Guest, error) {
	// ON CONFLICT гарантирует одного гостя на IP даже при гонке двух запросов
	_, err := r.db.Exec(ctx, `
		INSERT INTO engagement_guests (ip_address, display_name, avatar, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ip_address) DO NOTHING
	`, guest.IPAddress, guest.DisplayName, guest.Avatar, guest.CreatedAt)
	if err != nil {
		r.log.Error("Failed to create guest", "error", err)
		return nil, err
	}
	return r.GetByIP(ctx, guest.IPAddress)
}
