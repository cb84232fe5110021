package handlers

import (
	"net/http"

	"together-backend/internal/services"
)

const defaultInternalFeedLimit = 100

// InternalHandler serves the service-to-service agent endpoints
type InternalHandler struct {
	activityService *services.ActivityService
	actionService   *services.ActionService
	batchSize       int
}

// NewInternalHandler creates a new internal handler. batchSize is used when
// a decision run does not name one.
func NewInternalHandler(activityService *services.ActivityService, actionService *services.ActionService, batchSize int) *InternalHandler {
	return &InternalHandler{
		activityService: activityService,
		actionService:   actionService,
		batchSize:       batchSize,
	}
}

// ActivityFeed handles GET /api/internal/activity-feed?scenario=&since=&include_processed=1&limit=
func (h *InternalHandler) ActivityFeed(w http.ResponseWriter, r *http.Request) {
	since, ok := querySince(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	if limit == 0 {
		limit = defaultInternalFeedLimit
	}

	events, err := h.activityService.Feed(r.Context(), services.FeedRequest{
		Scenario:         r.URL.Query().Get("scenario"),
		Since:            since,
		IncludeProcessed: queryFlag(r, "include_processed"),
		Limit:            limit,
	})
	if err != nil {
		respondServiceError(w, err, "", "load activity feed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

// AckRequest lists activity events an external consumer has handled
type AckRequest struct {
	IDs []string `json:"ids"`
}

// AcknowledgeFeed handles POST /api/internal/activity-feed/ack
func (h *InternalHandler) AcknowledgeFeed(w http.ResponseWriter, r *http.Request) {
	var req AckRequest
	if !decodeBody(w, r, &req) {
		return
	}

	acknowledged, err := h.activityService.Acknowledge(r.Context(), req.IDs)
	if err != nil {
		respondServiceError(w, err, "", "acknowledge activity")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"acknowledged": acknowledged})
}

// DecisionRunRequest sizes a decision run
type DecisionRunRequest struct {
	BatchSize int `json:"batch_size"`
}

// RunDecisions handles POST /api/internal/decisions/run
func (h *InternalHandler) RunDecisions(w http.ResponseWriter, r *http.Request) {
	var req DecisionRunRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.BatchSize == 0 {
		req.BatchSize = h.batchSize
	}

	stats, err := h.actionService.ProcessPending(r.Context(), "", req.BatchSize)
	if err != nil {
		respondServiceError(w, err, "", "run agent decisions")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
