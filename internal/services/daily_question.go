package services

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"time"

	"together-backend/internal/models"
	"together-backend/internal/repository"
)

const answerHistoryLimit = 30

var dailyQuestions = []string{
	"What made you smile today?",
	"What are you most grateful for right now?",
	"What's one thing you learned today?",
	"How did you show love today?",
	"What's something you're looking forward to?",
	"What made you feel proud today?",
	"How did you take care of yourself today?",
	"What's one way you helped someone today?",
	"What's the best part of your day so far?",
	"What's something new you tried recently?",
	"How did you and your partner connect today?",
	"What's one thing you appreciate about your relationship?",
	"What goal are you working towards together?",
	"How did you support each other today?",
	"What's a happy memory you made recently?",
}

// QuestionFor picks the prompt of a user for a day. The pick is stable for
// the same user and date.
func QuestionFor(userID, date string) string {
	h := fnv.New32a()
	h.Write([]byte(date + userID))
	return dailyQuestions[h.Sum32()%uint32(len(dailyQuestions))]
}

// DailyQuestionService hands out one reflection prompt per user and day
type DailyQuestionService struct {
	questions DailyQuestionStore
	users     UserStore
	now       func() time.Time
}

// NewDailyQuestionService creates a new daily question service
func NewDailyQuestionService(questions DailyQuestionStore, users UserStore) *DailyQuestionService {
	return &DailyQuestionService{questions: questions, users: users, now: time.Now}
}

// SetClock overrides the time source
func (s *DailyQuestionService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *DailyQuestionService) today() string {
	return s.now().UTC().Format(time.DateOnly)
}

// Today returns the user's prompt for the current UTC day, creating it on
// first read
func (s *DailyQuestionService) Today(ctx context.Context, userID string) (*models.DailyQuestion, error) {
	date := s.today()
	return s.questions.GetOrCreate(ctx, &models.DailyQuestion{
		UserID:    userID,
		Date:      date,
		Question:  QuestionFor(userID, date),
		CreatedAt: s.now().UTC(),
	})
}

// Peek returns today's prompt without creating it
func (s *DailyQuestionService) Peek(ctx context.Context, userID string) (*models.DailyQuestion, error) {
	q, err := s.questions.Get(ctx, userID, s.today())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return q, err
}

// Answer stores the user's answer to today's prompt
func (s *DailyQuestionService) Answer(ctx context.Context, userID, answer string) (*models.DailyQuestion, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, invalid("answer is required")
	}
	q, err := s.Today(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.questions.SaveAnswer(ctx, userID, q.Date, answer, now); err != nil {
		return nil, notFound(err, "daily question")
	}
	q.Answer = &answer
	q.Answered = true
	q.AnsweredAt = &now
	return q, nil
}

// History returns the user's answered prompts, with the partner's answer for
// days both of them answered
func (s *DailyQuestionService) History(ctx context.Context, userID string) ([]*models.DailyQuestion, error) {
	answers, err := s.questions.ListAnswered(ctx, userID, answerHistoryLimit)
	if err != nil {
		return nil, err
	}

	_, partner, err := connectedPair(ctx, s.users, userID)
	if err != nil {
		if errors.Is(err, ErrNoPartner) {
			return answers, nil
		}
		return nil, err
	}

	for _, q := range answers {
		theirs, err := s.questions.Get(ctx, partner.ID, q.Date)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if theirs.Answered {
			q.PartnerAnswer = theirs.Answer
		}
	}
	return answers, nil
}
