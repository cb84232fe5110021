package handlers

import (
	"net/http"
	"time"

	"together-backend/internal/middleware"
	"together-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// AgentHandler exposes tone analysis, suggestions, the style profile and
// the user's activity feed and action queue
type AgentHandler struct {
	agentService    *services.AgentService
	actionService   *services.ActionService
	activityService *services.ActivityService
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(agentService *services.AgentService, actionService *services.ActionService, activityService *services.ActivityService) *AgentHandler {
	return &AgentHandler{
		agentService:    agentService,
		actionService:   actionService,
		activityService: activityService,
	}
}

// AnalyzeRequest carries a draft message to analyze
type AnalyzeRequest struct {
	Content string `json:"content"`
}

// Analyze handles POST /api/agent/analyze
func (h *AgentHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req AnalyzeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	analysis, err := h.agentService.AnalyzeTone(r.Context(), userID, req.Content)
	if err != nil {
		respondServiceError(w, err, userID, "analyze message")
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

// Suggestions handles GET /api/agent/suggestions?refresh=1
func (h *AgentHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	set, err := h.agentService.Suggestions(r.Context(), userID, queryFlag(r, "refresh"))
	if err != nil {
		respondServiceError(w, err, userID, "build suggestions")
		return
	}
	respondJSON(w, http.StatusOK, set)
}

// StyleProfile handles GET /api/agent/style-profile?refresh=1
func (h *AgentHandler) StyleProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	profile, err := h.agentService.StyleProfile(r.Context(), userID, queryFlag(r, "refresh"))
	if err != nil {
		respondServiceError(w, err, userID, "build style profile")
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// queryLimit reads ?limit=, reporting a malformed value to the client
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, "limit must be a number", http.StatusBadRequest)
		return 0, false
	}
	if limit == nil {
		return 0, true
	}
	return *limit, true
}

// querySince reads an optional RFC 3339 ?since= timestamp
func querySince(w http.ResponseWriter, r *http.Request) (*time.Time, bool) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return nil, true
	}
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		respondError(w, "since must be an RFC 3339 timestamp", http.StatusBadRequest)
		return nil, false
	}
	return &since, true
}

// Activity handles GET /api/agent/activity?since=&include_processed=1&limit=
func (h *AgentHandler) Activity(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	since, ok := querySince(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	events, err := h.activityService.Feed(r.Context(), services.FeedRequest{
		UserID:           userID,
		Since:            since,
		IncludeProcessed: queryFlag(r, "include_processed"),
		Limit:            limit,
	})
	if err != nil {
		respondServiceError(w, err, userID, "load activity")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

// Actions handles GET /api/agent/actions
func (h *AgentHandler) Actions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	overview, err := h.actionService.Overview(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, userID, "load agent actions")
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

// Queue handles GET /api/agent/queue?limit=&include_done=1
func (h *AgentHandler) Queue(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	queue, err := h.actionService.Queue(r.Context(), userID, limit, queryFlag(r, "include_done"))
	if err != nil {
		respondServiceError(w, err, userID, "load agent queue")
		return
	}
	respondJSON(w, http.StatusOK, queue)
}

// Execute handles POST /api/agent/actions/{id}/execute
func (h *AgentHandler) Execute(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req services.ExecuteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.actionService.Execute(r.Context(), userID, chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, err, userID, "execute agent action")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Feedback handles POST /api/agent/actions/{id}/feedback
func (h *AgentHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req services.FeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}

	action, err := h.actionService.Feedback(r.Context(), userID, chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, err, userID, "record feedback")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "recorded", "action": action})
}
