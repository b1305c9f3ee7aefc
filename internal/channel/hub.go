// Package channel maintains live websocket connections to study-session
// clients, keyed by user. The check-in coordinator sends events through it.
package channel

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is the JSON payload pushed to a connected client.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrNotConnected is returned when a send targets a user without a live
// connection.
var ErrNotConnected = errors.New("channel: user not connected")

// connection serializes writes to one websocket; gorilla connections do not
// support concurrent writers.
type connection struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *connection) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.Close()
}

// Hub is the live channel registry: one connection per user, latest wins.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*connection
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:  make(map[string]*connection),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// IsConnected reports whether the user has a live connection.
func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[userID]
	return ok
}

// Send pushes an event to the user's connection. A dead or missing
// connection yields ErrNotConnected; the stale entry is dropped on write
// failure so the next IsConnected check reflects reality.
func (h *Hub) Send(userID string, event Event) error {
	h.mu.RLock()
	conn, ok := h.conns[userID]
	h.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}

	if err := conn.writeJSON(event); err != nil {
		h.detach(userID, conn)
		return err
	}
	return nil
}

// ServeHTTP upgrades the request to a websocket and registers it for the
// user named in the user_id query parameter. The read loop exists only to
// notice the peer closing.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := &connection{ws: ws}
	h.attach(userID, conn)
	h.logger.Info("live channel connected", "user_id", userID)

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.detach(userID, conn)
	h.logger.Info("live channel disconnected", "user_id", userID)
}

// CloseAll drops every connection. Used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conn := range h.conns {
		conn.close()
		delete(h.conns, userID)
	}
}

func (h *Hub) attach(userID string, conn *connection) {
	h.mu.Lock()
	previous := h.conns[userID]
	h.conns[userID] = conn
	h.mu.Unlock()

	if previous != nil {
		previous.close()
	}
}

// detach removes the entry only if it still points at the given connection,
// so a reconnect is not torn down by the old read loop exiting.
func (h *Hub) detach(userID string, conn *connection) {
	h.mu.Lock()
	if current, ok := h.conns[userID]; ok && current == conn {
		delete(h.conns, userID)
	}
	h.mu.Unlock()
	conn.close()
}
