package handlers

import (
	"net/http"

	"together-backend/internal/middleware"
	"together-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// MessageHandler handles instant and scheduled messages
type MessageHandler struct {
	messageService *services.MessageService
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messageService *services.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// List handles GET /api/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	messages, err := h.messageService.List(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, userID, "list messages")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// Send handles POST /api/messages/send
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req services.SendRequest
	if !decodeBody(w, r, &req) {
		return
	}

	message, err := h.messageService.Send(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, err, userID, "send message")
		return
	}
	respondJSON(w, http.StatusCreated, message)
}

// Conversation handles GET /api/messages/conversation/{partnerID}
func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	messages, err := h.messageService.Conversation(r.Context(), userID, chi.URLParam(r, "partnerID"))
	if err != nil {
		respondServiceError(w, err, userID, "load conversation")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// UnreadCount handles GET /api/messages/unread-count
func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	count, err := h.messageService.UnreadCount(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, userID, "count unread messages")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}

// Schedule handles POST /api/messages/schedule
func (h *MessageHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req services.ScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	scheduled, err := h.messageService.Schedule(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, err, userID, "schedule message")
		return
	}
	respondJSON(w, http.StatusCreated, scheduled)
}

// ListScheduled handles GET /api/messages/scheduled
func (h *MessageHandler) ListScheduled(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	scheduled, err := h.messageService.ListScheduled(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, userID, "list scheduled messages")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"scheduled_messages": scheduled})
}

// UpdateScheduled handles PUT /api/messages/scheduled/{id}
func (h *MessageHandler) UpdateScheduled(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req services.UpdateScheduledRequest
	if !decodeBody(w, r, &req) {
		return
	}

	scheduled, err := h.messageService.UpdateScheduled(r.Context(), userID, chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, err, userID, "update scheduled message")
		return
	}
	respondJSON(w, http.StatusOK, scheduled)
}

// CancelScheduled handles POST /api/messages/scheduled/{id}/cancel
func (h *MessageHandler) CancelScheduled(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	scheduled, err := h.messageService.CancelScheduled(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, userID, "cancel scheduled message")
		return
	}
	respondJSON(w, http.StatusOK, scheduled)
}
