package handlers

import (
	"net/http"

	"together-backend/internal/middleware"
	"together-backend/internal/services"
)

// DailyQuestionHandler handles the daily conversation prompt
type DailyQuestionHandler struct {
	questionService *services.DailyQuestionService
}

// NewDailyQuestionHandler creates a new daily question handler
func NewDailyQuestionHandler(questionService *services.DailyQuestionService) *DailyQuestionHandler {
	return &DailyQuestionHandler{questionService: questionService}
}

// AnswerQuestionRequest represents the body of an answer submission
type AnswerQuestionRequest struct {
	Answer string `json:"answer"`
}

// Today handles GET /api/daily-question
func (h *DailyQuestionHandler) Today(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	question, err := h.questionService.Today(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, userID, "get daily question")
		return
	}
	respondJSON(w, http.StatusOK, question)
}

// Answer handles POST /api/daily-question/answer
func (h *DailyQuestionHandler) Answer(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req AnswerQuestionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	question, err := h.questionService.Answer(r.Context(), userID, req.Answer)
	if err != nil {
		respondServiceError(w, err, userID, "answer daily question")
		return
	}
	respondJSON(w, http.StatusOK, question)
}

// History handles GET /api/daily-question/answers
func (h *DailyQuestionHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	answers, err := h.questionService.History(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, userID, "list daily answers")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"answers": answers})
}
