// Package stream pushes finished polling cycles to websocket clients.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/health"
	"milestone-bot/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Message types.
const (
	TypeHello = "hello"
	TypeCycle = "cycle"
)

// Message is the JSON frame sent to clients.
type Message struct {
	Type      string            `json:"type"`
	Timestamp int64             `json:"timestamp"` // unix ms
	Stats     *health.StatsView `json:"stats,omitempty"`
}

// Hub tracks connected clients and broadcasts cycle results.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub creates a hub. All origins are accepted.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = observability.Discard()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger.With("component", "stream"),
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and holds the connection until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Message{Type: TypeHello, Timestamp: time.Now().UnixMilli()}); err != nil {
		conn.Close()
		return
	}
	h.register(conn)

	done := make(chan struct{})
	defer func() {
		close(done)
		h.unregister(conn)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	// Incoming frames are ignored; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CycleCompleted broadcasts a finished cycle.
func (h *Hub) CycleCompleted(_ context.Context, stats domain.CycleStats) {
	view := health.NewStatsView(stats)
	h.Broadcast(Message{Type: TypeCycle, Timestamp: time.Now().UnixMilli(), Stats: &view})
}

// Broadcast sends msg to every client. Clients that fail to receive are dropped.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast failed", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("dropping client", "error", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client connected", "clients", n)
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client disconnected", "clients", n)
}
