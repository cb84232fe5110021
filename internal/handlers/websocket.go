package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"together-backend/internal/middleware"
	"together-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	clientPing    = "ping"
	maxFrameBytes = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub            *services.WSHub
	userService    *services.UserService
	partnerService *services.PartnerService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *services.WSHub,
	userService *services.UserService,
	partnerService *services.PartnerService,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		userService:    userService,
		partnerService: partnerService,
	}
}

// HandleWebSocket handles GET /ws?token=<jwt>
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.ValidateWebSocketToken(r.URL.Query().Get("token"), h.userService)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	// The request context ends with the handler, which outlives the socket.
	ctx := context.WithoutCancel(r.Context())

	h.hub.Register(userID, conn)
	defer func() {
		if h.hub.Unregister(userID, conn) {
			h.hub.NotifyPartnerStatus(ctx, userID, false)
		}
	}()

	h.sendPairStatus(ctx, userID)
	h.hub.NotifyPartnerStatus(ctx, userID, true)

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("user_id", userID).Msg("WebSocket closed unexpectedly")
			}
			return
		}

		var msg services.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.send(userID, services.WSMessage{Type: services.EventError, Message: "Invalid message format"})
			continue
		}

		switch msg.Type {
		case clientPing:
			h.send(userID, services.WSMessage{Type: services.EventPong})
		default:
			h.send(userID, services.WSMessage{Type: services.EventError, Message: "Unknown message type"})
		}
	}
}

// sendPairStatus tells a freshly connected client its partner state and
// whether the partner is online
func (h *WebSocketHandler) sendPairStatus(ctx context.Context, userID string) {
	overview, err := h.partnerService.Overview(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load partner status")
		return
	}

	data := map[string]any{
		"has_pair": overview.HasPartner,
		"status":   overview.Status,
	}
	if overview.HasPartner {
		data["partner"] = overview.Partner
		data["partner_online"] = h.hub.IsOnline(overview.Partner.ID)
	}
	h.send(userID, services.WSMessage{Type: services.EventPairStatus, Data: data})
}

func (h *WebSocketHandler) send(userID string, msg services.WSMessage) {
	if err := h.hub.SendToUser(userID, msg); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("type", msg.Type).Msg("Failed to send WebSocket message")
	}
}
