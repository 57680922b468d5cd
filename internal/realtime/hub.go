// Package realtime pushes notifications to connected browser sessions over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/models"
)

// ErrSlowClient is returned when a recipient's send buffer is full. The client is dropped.
var ErrSlowClient = errors.New("realtime: client send buffer full")

// Hub tracks live connections by user and role.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *zap.Logger
}

// NewHub builds an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[*Client]struct{}), logger: logger}
}

// Attach registers a websocket connection for the session and starts its pumps.
func (h *Hub) Attach(conn *websocket.Conn, actor models.Actor) *Client {
	client := &Client{
		ID:    uuid.NewString(),
		Actor: actor,
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
	}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", zap.String("client_id", client.ID), zap.Int64("user_id", actor.UserID))

	go client.writePump()
	go client.readPump()
	return client
}

func (h *Hub) detach(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.logger.Debug("websocket client disconnected", zap.String("client_id", client.ID))
	}
}

// SendToUser pushes payload to every connection of the user. Users without a live connection
// read the notification later from their inbox, so that is not an error.
func (h *Hub) SendToUser(_ context.Context, userID int64, payload interface{}) error {
	return h.broadcast(payload, func(c *Client) bool { return c.Actor.UserID == userID })
}

// SendToRole pushes payload to every connection whose session holds role and may see requests of
// organizationID.
func (h *Hub) SendToRole(_ context.Context, role approval.Role, organizationID *int64, payload interface{}) error {
	return h.broadcast(payload, func(c *Client) bool {
		return c.Actor.Role == role && c.Actor.SeesOrganization(organizationID)
	})
}

func (h *Hub) broadcast(payload interface{}, match func(*Client) bool) error {
	message, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode realtime payload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	var dropped int
	for client := range h.clients {
		if !match(client) {
			continue
		}
		select {
		case client.send <- message:
		default:
			delete(h.clients, client)
			close(client.send)
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%w: %d connection(s) dropped", ErrSlowClient, dropped)
	}
	return nil
}

// ClientCount reports the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}
