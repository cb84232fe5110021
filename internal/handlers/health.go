package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const healthTimeout = 2 * time.Second

// Pinger checks a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// OnlineCounter reports the number of open WebSocket connections
type OnlineCounter interface {
	OnlineCount() int
}

// HealthHandler reports service health
type HealthHandler struct {
	db     Pinger
	online OnlineCounter
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, online OnlineCounter) *HealthHandler {
	return &HealthHandler{db: db, online: online}
}

// Health handles GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}

	body := map[string]any{"status": "healthy"}
	if h.online != nil {
		body["connections"] = h.online.OnlineCount()
	}
	respondJSON(w, http.StatusOK, body)
}
