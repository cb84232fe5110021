package handlers

import (
	"net/http"

	"together-backend/internal/middleware"
	"together-backend/internal/models"
	"together-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// QuizHandler handles the compatibility quiz endpoints
type QuizHandler struct {
	quizService *services.QuizService
}

// NewQuizHandler creates a new quiz handler
func NewQuizHandler(quizService *services.QuizService) *QuizHandler {
	return &QuizHandler{quizService: quizService}
}

// SessionResponse wraps a session view. Session is null when there is no
// active session.
type SessionResponse struct {
	Session *models.QuizSessionView `json:"session"`
	Created *bool                   `json:"created,omitempty"`
}

// Status handles GET /api/quiz/status
func (h *QuizHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	summary, err := h.quizService.Status(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, userID, "get quiz status")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// Questions handles GET /api/quiz/questions
func (h *QuizHandler) Questions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.quizService.QuestionBank())
}

// Start handles POST /api/quiz/session/start. It answers 201 for a new
// session and 200 when the pair's active session is resumed.
func (h *QuizHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req services.StartRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, created, err := h.quizService.StartOrResume(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, err, userID, "start quiz session")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, SessionResponse{Session: view, Created: &created})
}

// Current handles GET /api/quiz/session/current
func (h *QuizHandler) Current(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	view, err := h.quizService.GetActive(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, userID, "get quiz session")
		return
	}
	respondJSON(w, http.StatusOK, SessionResponse{Session: view})
}

// Get handles GET /api/quiz/session/{id}
func (h *QuizHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	view, err := h.quizService.GetByID(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		respondServiceError(w, err, userID, "get quiz session")
		return
	}
	respondJSON(w, http.StatusOK, SessionResponse{Session: view})
}

// Answer handles POST /api/quiz/session/{id}/answer
func (h *QuizHandler) Answer(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req services.AnswerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := h.quizService.SubmitAnswer(r.Context(), chi.URLParam(r, "id"), userID, req)
	if err != nil {
		respondServiceError(w, err, userID, "submit answer")
		return
	}
	respondJSON(w, http.StatusOK, SessionResponse{Session: view})
}
