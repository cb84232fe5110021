package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocket event types
const (
	EventPairStatus          = "pair_status"
	EventPartnerStatus       = "partner_status"
	EventPartnerConnected    = "partner_connected"
	EventPartnerDisconnected = "partner_disconnected"
	EventQuizSessionUpdated  = "quiz_session_updated"
	EventMessageReceived     = "message_received"
	EventPong                = "pong"
	EventError               = "error"
)

const writeTimeout = 10 * time.Second

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Online    *bool  `json:"online,omitempty"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections, one per user
type WSHub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	users   UserStore
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(users UserStore) *WSHub {
	return &WSHub{
		clients: make(map[string]*wsClient),
		users:   users,
	}
}

// Register registers a new WebSocket connection for a user, replacing any
// previous one
func (h *WSHub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	if existing, ok := h.clients[userID]; ok {
		existing.conn.Close()
	}
	h.clients[userID] = &wsClient{conn: conn}
	h.mu.Unlock()

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
}

// Unregister removes the user's connection if it is still the given one
func (h *WSHub) Unregister(userID string, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[userID]
	if !ok || client.conn != conn {
		return false
	}
	client.conn.Close()
	delete(h.clients, userID)
	log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
	return true
}

// SendToUser sends a message to a specific user. A connection that fails
// a write is dropped and the partner is told the user went offline.
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("user %s is not connected", userID)
	}

	if message.Timestamp == 0 {
		message.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := client.write(data); err != nil {
		if h.Unregister(userID, client.conn) {
			h.NotifyPartnerStatus(context.Background(), userID, false)
		}
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// OnlineCount returns the number of connected users
func (h *WSHub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PartnerOf resolves the connected partner of a user, or "" when none
func (h *WSHub) PartnerOf(ctx context.Context, userID string) string {
	if h.users == nil {
		return ""
	}
	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return ""
	}
	partnerID, _ := user.ConnectedPartnerID()
	return partnerID
}

// NotifyPartnerStatus tells the user's partner whether the user is online
func (h *WSHub) NotifyPartnerStatus(ctx context.Context, userID string, online bool) {
	partnerID := h.PartnerOf(ctx, userID)
	if partnerID == "" || !h.IsOnline(partnerID) {
		return
	}
	message := WSMessage{
		Type:   EventPartnerStatus,
		Online: &online,
		Data:   map[string]any{"partner_id": userID},
	}
	if err := h.SendToUser(partnerID, message); err != nil {
		log.Error().Err(err).Str("user_id", partnerID).Msg("Failed to notify partner status")
	}
}

// Close drops every connection
func (h *WSHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, client := range h.clients {
		client.conn.Close()
		delete(h.clients, userID)
	}
}
