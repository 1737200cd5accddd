package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 256
)

type subscriber struct {
	id        uuid.UUID
	userID    string
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	closeOnce sync.Once
}

// Hub tracks websocket subscribers per user.
type Hub struct {
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[string]map[uuid.UUID]*subscriber
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		subscribers: make(map[string]map[uuid.UUID]*subscriber),
	}
}

// ServeWS upgrades the request and subscribes it to userID's events.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		id:     uuid.New(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    h,
	}
	h.add(sub)

	slog.Info("WebSocket subscriber connected", "userID", userID, "subscriberID", sub.id)

	go sub.writePump()
	go sub.readPump()
}

// Publish sends e to every subscriber of e.UserID. Slow subscribers miss
// the event rather than blocking the publisher.
func (h *Hub) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("Failed to marshal event", "error", err, "type", e.Type)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	subs, ok := h.subscribers[e.UserID]
	if !ok {
		slog.Debug("No subscribers for user", "userID", e.UserID, "type", e.Type)
		return
	}
	for id, sub := range subs {
		select {
		case sub.send <- data:
		default:
			slog.Warn("Failed to send to subscriber - channel full",
				"userID", e.UserID,
				"subscriberID", id)
		}
	}
}

// Disconnect closes every subscriber of userID. Used on sign-out.
func (h *Hub) Disconnect(userID string) {
	h.mu.Lock()
	subs := h.subscribers[userID]
	delete(h.subscribers, userID)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// Count returns the number of live subscribers for userID.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[userID])
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscribers[sub.userID]
	if !ok {
		subs = make(map[uuid.UUID]*subscriber)
		h.subscribers[sub.userID] = subs
	}
	subs[sub.id] = sub
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscribers[sub.userID]
	if !ok {
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(h.subscribers, sub.userID)
	}
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.send) })
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *subscriber) readPump() {
	defer func() {
		s.hub.remove(s)
		s.close()
		s.conn.Close()
		slog.Debug("WebSocket subscriber disconnected", "userID", s.userID, "subscriberID", s.id)
	}()

	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}
	}
}
