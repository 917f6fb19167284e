package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"live_engagement/internal/domain"
	"live_engagement/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// Broadcaster рассылает событие всем подписчикам комнаты
type Broadcaster interface {
	Broadcast(room domain.RoomKey, eventType string, payload any)
}

// Hub держит websocket-подписчиков, сгруппированных по комнатам
type Hub interface {
	Broadcaster
	// Serve блокируется, пока соединение живо
	Serve(ctx context.Context, room domain.RoomKey, conn *websocket.Conn)
	Subscribers(room domain.RoomKey) int
	Close()
}

type subscriber struct {
	id   uuid.UUID
	room domain.RoomKey
	conn *websocket.Conn
	send chan []byte
}

type hub struct {
	mu      sync.RWMutex
	rooms   map[domain.RoomKey]map[uuid.UUID]*subscriber
	metrics *Metrics
	log     logger.Logger
}

func NewHub(metrics *Metrics, log logger.Logger) Hub {
	return &hub{
		rooms:   make(map[domain.RoomKey]map[uuid.UUID]*subscriber),
		metrics: metrics,
		log:     log,
	}
}

func (h *hub) Broadcast(room domain.RoomKey, eventType string, payload any) {
	data, err := json.Marshal(domain.Event{Type: eventType, Room: room, Payload: payload})
	if err != nil {
		h.log.Error("Failed to encode event", "error", err, "event", eventType, "room", room)
		return
	}

	var slow []*subscriber
	h.mu.RLock()
	for _, sub := range h.rooms[room] {
		select {
		case sub.send <- data:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	// Не успевающий читать клиент отключается, остальные не ждут его
	for _, sub := range slow {
		h.log.Warn("Dropping slow subscriber", "room", room, "subscriber", sub.id)
		h.remove(sub)
	}
}

func (h *hub) Serve(ctx context.Context, room domain.RoomKey, conn *websocket.Conn) {
	sub := &subscriber{
		id:   uuid.New(),
		room: room,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	h.add(sub)
	h.log.Info("Subscriber joined", "room", room, "subscriber", sub.id)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(sub)
	}()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		h.readPump(sub)
	}()

	select {
	case <-ctx.Done():
	case <-readDone:
	}

	h.remove(sub)
	<-done
	_ = conn.Close()
	h.log.Info("Subscriber left", "room", room, "subscriber", sub.id)
}

func (h *hub) Subscribers(room domain.RoomKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, subs := range h.rooms {
		for id, sub := range subs {
			close(sub.send)
			delete(subs, id)
			if h.metrics != nil {
				h.metrics.Subscribers.Dec()
			}
		}
		delete(h.rooms, room)
	}
}

func (h *hub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[sub.room]
	if !ok {
		subs = make(map[uuid.UUID]*subscriber)
		h.rooms[sub.room] = subs
	}
	subs[sub.id] = sub
	if h.metrics != nil {
		h.metrics.Subscribers.Inc()
	}
}

// remove закрывает канал отправки ровно один раз: только тот, кто убрал подписчика из карты
func (h *hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[sub.room]
	if !ok {
		return
	}
	if _, ok := subs[sub.id]; !ok {
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(h.rooms, sub.room)
	}
	close(sub.send)
	if h.metrics != nil {
		h.metrics.Subscribers.Dec()
	}
}

// readPump только обслуживает pong и замечает закрытие; входящие сообщения игнорируются
func (h *hub) readPump(sub *subscriber) {
	sub.conn.SetReadLimit(maxMessageSize)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Websocket closed unexpectedly", "error", err, "subscriber", sub.id)
			}
			return
		}
	}
}

func (h *hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Warn("Failed to write to subscriber", "error", err, "subscriber", sub.id)
				// Закрытие соединения будит readPump, и Serve снимает подписчика
				_ = sub.conn.Close()
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = sub.conn.Close()
				return
			}
		}
	}
}
