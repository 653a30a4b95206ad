// Package websocket pushes notifications and wallet changes to the sockets a
// user has open. Delivery is best effort: the notifications table is the
// source of truth and clients re-sync over REST on reconnect.
package websocket

import (
	"sync"

	"kixikila/internal/metrics"

	"github.com/goccy/go-json"
)

const (
	EventNotification = "notification"
	EventWallet       = "wallet"
)

// MaxSocketsPerUser bounds open sockets per user; the oldest is closed when
// a new one registers past the cap.
const MaxSocketsPerUser = 5

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type Hub struct {
	mu      sync.RWMutex
	sockets map[string][]*Client
}

func NewHub() *Hub {
	return &Hub{sockets: make(map[string][]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	open := append(h.sockets[client.userID], client)
	for len(open) > MaxSocketsPerUser {
		evicted := open[0]
		open = open[1:]
		close(evicted.send)
		metrics.WebsocketConnections.Dec()
	}
	h.sockets[client.userID] = open
	metrics.WebsocketConnections.Inc()
}

// Unregister is safe to call more than once and for evicted clients.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	open := h.sockets[client.userID]
	for i, c := range open {
		if c != client {
			continue
		}
		open = append(open[:i:i], open[i+1:]...)
		metrics.WebsocketConnections.Dec()
		break
	}
	if len(open) == 0 {
		delete(h.sockets, client.userID)
		return
	}
	h.sockets[client.userID] = open
}

func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sockets[userID])
}

// Push delivers event to every socket of userID. A client whose buffer is
// full loses the frame.
func (h *Hub) Push(userID string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.sockets[userID] {
		select {
		case client.send <- payload:
		default:
			metrics.WebsocketDropped.WithLabelValues(event.Type).Inc()
		}
	}
}
