package handler

import (
	"live_engagement/internal/service"
	"live_engagement/pkg/logger"
)

type Handlers struct {
	Health     *HealthHandler
	Engagement *EngagementHandler
	Presenter  *PresenterHandler
	WebSocket  *WebSocketHandler
}

func NewHandlers(services *service.Services, checks map[string]PingFunc, log logger.Logger) *Handlers {
	return &Handlers{
		Health:     NewHealthHandler(checks),
		Engagement: NewEngagementHandler(services.Engagement, log),
		Presenter:  NewPresenterHandler(services.Engagement, log),
		WebSocket:  NewWebSocketHandler(services.Engagement, services.Hub, log),
	}
}
