// Package events broadcasts model lifecycle events to websocket
// subscribers and lets clients follow them.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event types.
const (
	TypeModelUploaded = "model:uploaded"
	TypeModelIndexed  = "model:indexed"
	TypeModelFailed   = "model:failed"
	TypeModelDeleted  = "model:deleted"
	TypeConnected     = "connected"
)

// Message is the envelope for everything sent over the socket.
type Message struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ModelEvent is the payload of model:* messages.
type ModelEvent struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Size  int64  `json:"size,omitempty"`
	JobID string `json:"jobId,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewMessage wraps payload in a timestamped message.
func NewMessage(typ, id string, payload any) Message {
	msg := Message{Type: typ, ID: id, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			msg.Payload = data
		}
	}
	return msg
}

// Conn serializes writes to one websocket connection.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Send writes msg as JSON.
func (c *Conn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(msg)
}

// WS returns the underlying connection for reading.
func (c *Conn) WS() *websocket.Conn {
	return c.ws
}

// Hub tracks connected subscribers.
type Hub struct {
	mu       sync.Mutex
	clients  map[*Conn]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates an empty hub accepting connections from any origin.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		logger: logger.With(zap.String("component", "events")),
	}
}

// Upgrade upgrades an HTTP request and registers the connection. The
// caller must Unregister it when done.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	c := &Conn{ws: ws}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("subscriber connected", zap.Int("subscribers", n))
	return c, nil
}

// Unregister drops c and closes it.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		c.ws.Close()
		h.logger.Debug("subscriber disconnected")
	}
}

// Count returns the number of subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends msg to every subscriber, dropping those that fail.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	clients := make([]*Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.Send(msg); err != nil {
			h.logger.Debug("websocket write error", zap.Error(err))
			h.Unregister(c)
		}
	}
}

// Publish broadcasts a model event.
func (h *Hub) Publish(typ string, ev ModelEvent) {
	h.Broadcast(NewMessage(typ, ev.Name, ev))
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Conn]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.mu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		c.ws.Close()
	}
}
