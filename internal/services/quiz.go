package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"together-backend/internal/models"
	"together-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// QuizService runs the paired compatibility quiz
type QuizService struct {
	quizzes  QuizStore
	users    UserStore
	bank     *QuizBank
	realtime Realtime
	activity ActivityRecorder
	now      func() time.Time
}

// NewQuizService creates a new quiz service
func NewQuizService(quizzes QuizStore, users UserStore, bank *QuizBank, realtime Realtime) *QuizService {
	return &QuizService{
		quizzes:  quizzes,
		users:    users,
		bank:     bank,
		realtime: realtime,
		now:      time.Now,
	}
}

// SetClock overrides the time source
func (s *QuizService) SetClock(now func() time.Time) {
	s.now = now
}

// SetActivity records completed sessions as agent activity of both partners
func (s *QuizService) SetActivity(rec ActivityRecorder) {
	s.activity = rec
}

// StartRequest selects the questions of a new session. QuestionIDs wins
// over QuestionCount when both are set.
type StartRequest struct {
	QuestionCount *int  `json:"question_count"`
	QuestionIDs   []int `json:"question_ids"`
}

// AnswerRequest is one answer submission
type AnswerRequest struct {
	QuestionID int    `json:"question_id"`
	Answer     string `json:"answer"`
}

// QuestionBankView lists the whole bank
type QuestionBankView struct {
	Questions         []models.QuizQuestion `json:"questions"`
	Total             int                   `json:"total"`
	DefaultBatchSizes []int                 `json:"default_batch_sizes"`
}

// QuestionBank returns every question and the default batch sizes
func (s *QuizService) QuestionBank() *QuestionBankView {
	return &QuestionBankView{
		Questions:         s.bank.Questions(),
		Total:             s.bank.Size(),
		DefaultBatchSizes: DefaultBatchSizes,
	}
}

func (s *QuizService) pickQuestions(req StartRequest) ([]models.QuizQuestion, error) {
	if req.QuestionIDs != nil {
		return s.bank.Select(req.QuestionIDs)
	}
	count := defaultQuestionCount
	if req.QuestionCount != nil {
		count = *req.QuestionCount
	}
	if count < 1 {
		return nil, invalid("question_count must be at least 1")
	}
	if count > s.bank.Size() {
		return nil, invalid("question_count must be at most %d", s.bank.Size())
	}
	return s.bank.Sample(count), nil
}

// StartOrResume returns the pair's in-progress session, or creates one.
// created reports whether a new session was allocated.
func (s *QuizService) StartOrResume(ctx context.Context, userID string, req StartRequest) (*models.QuizSessionView, bool, error) {
	user, partner, err := connectedPair(ctx, s.users, userID)
	if err != nil {
		return nil, false, err
	}
	user1, user2 := models.SortedPair(user.ID, partner.ID)

	existing, err := s.quizzes.ActiveForPair(ctx, user1, user2)
	if err == nil {
		return existing.View(user.ID), false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	questions, err := s.pickQuestions(req)
	if err != nil {
		return nil, false, err
	}

	now := s.now().UTC()
	session := &models.QuizSession{
		ID:        uuid.New().String(),
		User1ID:   user1,
		User2ID:   user2,
		Questions: questions,
		Responses: make(map[string]map[int]string),
		Status:    models.QuizInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored, created, err := s.quizzes.CreateIfNoActive(ctx, session)
	if err != nil {
		return nil, false, fmt.Errorf("failed to start quiz session: %w", err)
	}

	if created {
		log.Info().
			Str("session_id", stored.ID).
			Str("user_id", user.ID).
			Int("questions", len(stored.Questions)).
			Msg("Quiz session started")
		push(s.realtime, partner.ID, WSMessage{Type: EventQuizSessionUpdated, Data: stored.View(partner.ID)})
	}
	return stored.View(user.ID), created, nil
}

// GetActive returns the caller's in-progress session or nil
func (s *QuizService) GetActive(ctx context.Context, userID string) (*models.QuizSessionView, error) {
	session, err := s.quizzes.ActiveForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return session.View(userID), nil
}

func (s *QuizService) load(ctx context.Context, sessionID, userID string) (*models.QuizSession, error) {
	session, err := s.quizzes.GetByID(ctx, sessionID)
	if err != nil {
		return nil, notFound(err, "quiz session")
	}
	if !session.HasParticipant(userID) {
		return nil, newError(ErrForbidden, "you are not a participant of this session")
	}
	return session, nil
}

// GetByID returns a session to one of its participants
func (s *QuizService) GetByID(ctx context.Context, sessionID, userID string) (*models.QuizSessionView, error) {
	session, err := s.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return session.View(userID), nil
}

// SubmitAnswer records or overwrites the caller's answer and completes the
// session once both partners have answered every question
func (s *QuizService) SubmitAnswer(ctx context.Context, sessionID, userID string, req AnswerRequest) (*models.QuizSessionView, error) {
	session, err := s.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.QuizInProgress {
		return nil, conflict("session already completed")
	}

	question, ok := session.Question(req.QuestionID)
	if !ok {
		return nil, invalid("question %d is not part of this session", req.QuestionID)
	}
	answer := strings.TrimSpace(req.Answer)
	if answer == "" {
		return nil, invalid("answer is required")
	}
	if !question.HasOption(answer) {
		return nil, invalid("answer must be one of: %s", strings.Join(question.Options, ", "))
	}

	updated, err := s.quizzes.RecordAnswer(ctx, session.ID, userID, question.ID, answer, s.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStateChanged):
			return nil, conflict("session already completed")
		case errors.Is(err, repository.ErrNotFound):
			return nil, newError(ErrNotFound, "quiz session not found")
		}
		return nil, fmt.Errorf("failed to record answer: %w", err)
	}

	partnerID := updated.PartnerOf(userID)
	push(s.realtime, partnerID, WSMessage{Type: EventQuizSessionUpdated, Data: updated.View(partnerID)})

	if updated.Status == models.QuizCompleted && updated.Compatibility != nil {
		log.Info().
			Str("session_id", updated.ID).
			Int("score", updated.Compatibility.Score).
			Msg("Quiz session completed")
		s.recordCompleted(ctx, updated)
	}
	return updated.View(userID), nil
}

func (s *QuizService) recordCompleted(ctx context.Context, session *models.QuizSession) {
	for _, participant := range []string{session.User1ID, session.User2ID} {
		recordActivity(ctx, s.activity, models.ActivityEvent{
			UserID:     participant,
			EventType:  models.ActivityQuizCompleted,
			Source:     "quiz",
			DedupeKey:  "quiz:" + session.ID + ":" + participant,
			OccurredAt: session.Compatibility.CompletedAt,
			Payload: map[string]any{
				"session_id": session.ID,
				"partner_id": session.PartnerOf(participant),
				"score":      session.Compatibility.Score,
				"matches":    session.Compatibility.Matches,
				"total":      session.Compatibility.Total,
			},
		})
	}
}

// Status summarizes the caller's quiz history
func (s *QuizService) Status(ctx context.Context, userID string) (*models.QuizStatusSummary, error) {
	sessions, err := s.quizzes.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quiz sessions: %w", err)
	}
	return models.SummarizeQuizHistory(sessions, s.bank.Size(), DefaultBatchSizes), nil
}
