// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	"glasstrace-service/internal/domain/auth"

	"go.uber.org/zap"
)

// Hub fans auth-state events out to the websocket connections of each
// subject. Delivery is best effort: a slow consumer is disconnected rather
// than allowed to block the rest.
type Hub struct {
	// Registered clients by identity ID
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	// Registration/unregistration
	Register   chan *Client
	unregister chan *Client

	// Event fan-out
	events chan *auth.AuthEvent

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		Register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan *auth.AuthEvent, 256),
		logger:     logger,
	}
}

// Publish queues an auth event for delivery to the subject's connections.
// Events without a subject are delivered to every connection.
func (h *Hub) Publish(event *auth.AuthEvent) {
	select {
	case h.events <- event:
	default:
		h.logger.Warn("auth event channel full, dropping event",
			zap.String("kind", string(event.Kind)),
			zap.Int64("subject_id", event.SubjectID))
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.events:
			h.deliver(event)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.identityID] == nil {
		h.clients[client.identityID] = make(map[*Client]bool)
	}
	h.clients[client.identityID][client] = true

	h.logger.Info("ws client connected",
		zap.Int64("identity_id", client.identityID),
		zap.Int("total", h.totalClients()))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.identityID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.Close()

			if len(clients) == 0 {
				delete(h.clients, client.identityID)
			}

			h.logger.Info("ws client disconnected",
				zap.Int64("identity_id", client.identityID),
				zap.Int("total", h.totalClients()))
		}
	}
}

func (h *Hub) deliver(event *auth.AuthEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if event.SubjectID == 0 {
		for _, clients := range h.clients {
			for client := range clients {
				client.SendEvent(event)
			}
		}
		return
	}

	for client := range h.clients[event.SubjectID] {
		client.SendEvent(event)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[int64]map[*Client]bool)
}

func (h *Hub) totalClients() int {
	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}
