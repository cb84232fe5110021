package handlers

import (
	"net/http"

	"together-backend/internal/middleware"
	"together-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// CalendarHandler handles the shared calendar
type CalendarHandler struct {
	calendarService *services.CalendarService
}

// NewCalendarHandler creates a new calendar handler
func NewCalendarHandler(calendarService *services.CalendarService) *CalendarHandler {
	return &CalendarHandler{calendarService: calendarService}
}

// List handles GET /api/calendar/events?year=&month=
func (h *CalendarHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	year, err := queryInt(r, "year")
	if err != nil {
		respondError(w, "year must be a number", http.StatusBadRequest)
		return
	}
	month, err := queryInt(r, "month")
	if err != nil {
		respondError(w, "month must be a number", http.StatusBadRequest)
		return
	}

	events, err := h.calendarService.List(r.Context(), userID, year, month)
	if err != nil {
		respondServiceError(w, err, userID, "list events")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

// Create handles POST /api/calendar/events
func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req services.CreateEventRequest
	if !decodeBody(w, r, &req) {
		return
	}

	event, err := h.calendarService.Create(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, err, userID, "create event")
		return
	}
	respondJSON(w, http.StatusCreated, event)
}

// Delete handles DELETE /api/calendar/events/{id}
func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	eventID := chi.URLParam(r, "id")

	if err := h.calendarService.Delete(r.Context(), userID, eventID); err != nil {
		respondServiceError(w, err, userID, "delete event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
