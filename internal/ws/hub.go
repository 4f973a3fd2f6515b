package ws

import (
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Event is the envelope pushed to connected clients.
type Event struct {
	Type   string                 `json:"type"`
	Title  string                 `json:"title,omitempty"`
	Body   string                 `json:"body,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
	SentAt time.Time              `json:"sent_at"`
}

// Client represents a single WebSocket connection with user context.
type Client struct {
	UserID uint
	Send   chan []byte
	hub    *Hub
	mu     sync.Mutex
	closed bool
}

func NewClient(userID uint) *Client {
	return &Client{UserID: userID, Send: make(chan []byte, 64)}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
	if c.hub != nil {
		c.hub.unregister(c)
	}
}

// Hub fans events out to every open connection of a user.
type Hub struct {
	mu     sync.RWMutex
	byUser map[uint]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{byUser: make(map[uint]map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.hub = h
	if h.byUser[c.UserID] == nil {
		h.byUser[c.UserID] = make(map[*Client]struct{})
	}
	h.byUser[c.UserID][c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.byUser[c.UserID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
}

// SendToUser delivers ev to the user's connections and returns how many took it.
// Slow connections with a full buffer are skipped.
func (h *Hub) SendToUser(userID uint, ev Event) int {
	if ev.SentAt.IsZero() {
		ev.SentAt = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).WithField("type", ev.Type).Error("ws: encode event")
		return 0
	}
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.byUser[userID]))
	for c := range h.byUser[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	delivered := 0
	for _, c := range clients {
		c.mu.Lock()
		if !c.closed {
			select {
			case c.Send <- data:
				delivered++
			default:
			}
		}
		c.mu.Unlock()
	}
	return delivered
}

// Online reports whether the user has at least one open connection.
func (h *Hub) Online(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, m := range h.byUser {
		n += len(m)
	}
	return n
}
