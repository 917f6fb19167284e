package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"live_engagement/internal/domain"
	"live_engagement/internal/service"
	"live_engagement/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	engagementService service.EngagementService
	hub               service.Hub
	log               logger.Logger
}

func NewWebSocketHandler(engagementService service.EngagementService, hub service.Hub, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		engagementService: engagementService,
		hub:               hub,
		log:               log,
	}
}

// HandleRoom подписывает клиента на события комнаты. Сразу после подключения
// клиент получает текущие ленты комментариев и вопросов
func (h *WebSocketHandler) HandleRoom(c *gin.Context) {
	room, ok := roomFromPath(c)
	if !ok {
		return
	}

	if _, err := h.engagementService.JoinRoom(c.Request.Context(), room); err != nil {
		respondError(c, h.log, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err, "room", room)
		return
	}

	for _, kind := range []domain.EngagementKind{domain.KindComment, domain.KindQAndA} {
		threads, err := h.engagementService.Listing(c.Request.Context(), room, kind)
		if err != nil {
			h.log.Warn("Failed to load initial listing", "error", err, "room", room, "kind", kind)
			continue
		}
		event := domain.Event{
			Type:    domain.EventFetchMessages,
			Room:    room,
			Payload: domain.ListingPayload{Kind: kind, Messages: threads},
		}
		if err := conn.WriteJSON(event); err != nil {
			h.log.Warn("Failed to send initial listing", "error", err, "room", room)
			_ = conn.Close()
			return
		}
	}

	h.hub.Serve(c.Request.Context(), room, conn)
}
