package services_test

import (
	"context"
	"testing"
	"time"

	"together-backend/internal/models"
	"together-backend/internal/services"
	"together-backend/internal/testfixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quizEnv struct {
	db    *testfixtures.DB
	clock *testfixtures.Clock
	rt    *testfixtures.Realtime
	svc   *services.QuizService
}

func newQuizEnv(t *testing.T) *quizEnv {
	t.Helper()
	bank, err := services.LoadQuizBank()
	require.NoError(t, err)

	db := testfixtures.NewDB()
	db.AddUser("alice", "Alice", "alice@example.com")
	db.AddUser("bob", "Bob", "bob@example.com")
	db.AddUser("carol", "Carol", "carol@example.com")
	db.Link("alice", "bob")

	clock := testfixtures.NewClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	rt := testfixtures.NewRealtime("alice", "bob")
	svc := services.NewQuizService(db.Quizzes(), db.Users(), bank, rt)
	svc.SetClock(clock.Now)
	return &quizEnv{db: db, clock: clock, rt: rt, svc: svc}
}

func (e *quizEnv) start(t *testing.T, ids ...int) *models.QuizSessionView {
	t.Helper()
	view, created, err := e.svc.StartOrResume(context.Background(), "alice", services.StartRequest{QuestionIDs: ids})
	require.NoError(t, err)
	require.True(t, created)
	return view
}

func (e *quizEnv) answer(t *testing.T, sessionID, userID string, questionID int, answer string) *models.QuizSessionView {
	t.Helper()
	view, err := e.svc.SubmitAnswer(context.Background(), sessionID, userID, services.AnswerRequest{QuestionID: questionID, Answer: answer})
	require.NoError(t, err)
	return view
}

func TestQuizStartRequiresPartner(t *testing.T) {
	env := newQuizEnv(t)

	_, _, err := env.svc.StartOrResume(context.Background(), "carol", services.StartRequest{})
	assert.ErrorIs(t, err, services.ErrNoPartner)
	assert.Empty(t, env.db.QuizSessions())
}

func TestQuizStartDefaultsToTenQuestions(t *testing.T) {
	env := newQuizEnv(t)

	view, created, err := env.svc.StartOrResume(context.Background(), "alice", services.StartRequest{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.QuizInProgress, view.Status)
	assert.Equal(t, "bob", view.PartnerID)
	assert.Len(t, view.Questions, 10)
	assert.Equal(t, 10, view.Progress.TotalQuestions)
	assert.Equal(t, []int{}, view.Progress.AwaitingPartnerFor)
	assert.Equal(t, []string{services.EventQuizSessionUpdated}, env.rt.Types("bob"))

	seen := map[int]bool{}
	for _, q := range view.Questions {
		assert.False(t, seen[q.ID], "question %d sampled twice", q.ID)
		seen[q.ID] = true
	}
}

func TestQuizStartResumesActiveSession(t *testing.T) {
	env := newQuizEnv(t)
	first := env.start(t, 1, 2, 3)

	view, created, err := env.svc.StartOrResume(context.Background(), "bob", services.StartRequest{QuestionIDs: []int{4, 5}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, view.ID)
	assert.Equal(t, "alice", view.PartnerID)
	assert.Len(t, view.Questions, 3)
	assert.Len(t, env.db.QuizSessions(), 1)
}

func TestQuizStartValidatesSelection(t *testing.T) {
	env := newQuizEnv(t)
	ctx := context.Background()
	zero, tooMany := 0, 10000

	cases := map[string]services.StartRequest{
		"zero count":   {QuestionCount: &zero},
		"count > bank": {QuestionCount: &tooMany},
		"empty ids":    {QuestionIDs: []int{}},
		"duplicate id": {QuestionIDs: []int{1, 1}},
		"unknown id":   {QuestionIDs: []int{1, 99999}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := env.svc.StartOrResume(ctx, "alice", req)
			var ve *services.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
	assert.Empty(t, env.db.QuizSessions())
}

func TestQuizPartialAnswersHidePartnerChoices(t *testing.T) {
	env := newQuizEnv(t)
	session := env.start(t, 1, 2, 3)

	env.answer(t, session.ID, "alice", 1, "Cat")
	env.answer(t, session.ID, "alice", 2, "Night owl")
	env.answer(t, session.ID, "alice", 3, "Avatar")
	view := env.answer(t, session.ID, "bob", 1, "Cat")

	assert.Equal(t, models.QuizInProgress, view.Status)
	assert.Equal(t, 1, view.Progress.YourAnswers)
	assert.Equal(t, 3, view.Progress.PartnerAnswers)
	assert.Equal(t, []int{2, 3}, view.Progress.AwaitingPartnerFor)
	assert.Nil(t, view.Compatibility)

	require.NotNil(t, view.Questions[0].PartnerAnswer)
	assert.Equal(t, "Cat", *view.Questions[0].PartnerAnswer)
	require.NotNil(t, view.Questions[0].IsMatch)
	assert.True(t, *view.Questions[0].IsMatch)
	assert.Nil(t, view.Questions[1].PartnerAnswer)
	assert.Nil(t, view.Questions[1].YourAnswer)
}

func TestQuizCompletionStampsScore(t *testing.T) {
	env := newQuizEnv(t)
	session := env.start(t, 1, 2, 3)

	env.answer(t, session.ID, "alice", 1, "Cat")
	env.answer(t, session.ID, "alice", 2, "Night owl")
	env.answer(t, session.ID, "alice", 3, "Avatar")
	env.answer(t, session.ID, "bob", 1, "Cat")
	env.answer(t, session.ID, "bob", 2, "Night owl")
	env.clock.Advance(time.Minute)
	view := env.answer(t, session.ID, "bob", 3, "Jurassic Park")

	assert.Equal(t, models.QuizCompleted, view.Status)
	require.NotNil(t, view.Compatibility)
	assert.Equal(t, 2, view.Compatibility.Matches)
	assert.Equal(t, 3, view.Compatibility.Total)
	assert.Equal(t, 67, view.Compatibility.Score)
	assert.Equal(t, env.clock.Now(), view.Compatibility.CompletedAt)

	active, err := env.svc.GetActive(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestQuizOverwriteBeforeCompletion(t *testing.T) {
	env := newQuizEnv(t)
	session := env.start(t, 1)

	env.answer(t, session.ID, "alice", 1, "Dog")
	env.answer(t, session.ID, "alice", 1, "Cat")
	view := env.answer(t, session.ID, "bob", 1, "Cat")

	assert.Equal(t, models.QuizCompleted, view.Status)
	assert.Equal(t, 100, view.Compatibility.Score)
}

func TestQuizAnswerAfterCompletionConflicts(t *testing.T) {
	env := newQuizEnv(t)
	session := env.start(t, 1)
	env.answer(t, session.ID, "alice", 1, "Dog")
	env.answer(t, session.ID, "bob", 1, "Cat")

	_, err := env.svc.SubmitAnswer(context.Background(), session.ID, "alice", services.AnswerRequest{QuestionID: 1, Answer: "Cat"})
	var ce *services.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "session already completed", ce.Reason)

	stored, err := env.svc.GetByID(context.Background(), session.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Compatibility.Score)
}

func TestQuizAnswerValidation(t *testing.T) {
	env := newQuizEnv(t)
	session := env.start(t, 1, 2)
	ctx := context.Background()

	cases := map[string]services.AnswerRequest{
		"question outside session": {QuestionID: 3, Answer: "Avatar"},
		"empty answer":             {QuestionID: 1, Answer: "  "},
		"not an option":            {QuestionID: 1, Answer: "Hamster"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.SubmitAnswer(ctx, session.ID, "alice", req)
			var ve *services.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestQuizNonParticipantIsForbidden(t *testing.T) {
	env := newQuizEnv(t)
	session := env.start(t, 1)
	ctx := context.Background()

	_, err := env.svc.GetByID(ctx, session.ID, "carol")
	assert.ErrorIs(t, err, services.ErrForbidden)

	_, err = env.svc.SubmitAnswer(ctx, session.ID, "carol", services.AnswerRequest{QuestionID: 1, Answer: "Cat"})
	assert.ErrorIs(t, err, services.ErrForbidden)

	_, err = env.svc.GetByID(ctx, "missing", "alice")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestQuizStatusSummary(t *testing.T) {
	env := newQuizEnv(t)
	ctx := context.Background()

	first := env.start(t, 1)
	env.answer(t, first.ID, "alice", 1, "Cat")
	env.answer(t, first.ID, "bob", 1, "Cat")

	env.clock.Advance(time.Hour)
	second := env.start(t, 1, 2)
	env.answer(t, second.ID, "alice", 1, "Cat")
	env.answer(t, second.ID, "alice", 2, "Night owl")
	env.answer(t, second.ID, "bob", 1, "Dog")
	env.answer(t, second.ID, "bob", 2, "Night owl")

	env.clock.Advance(time.Hour)
	third := env.start(t, 3)

	status, err := env.svc.Status(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, status.TotalSessions)
	assert.Equal(t, 2, status.CompletedSessions)
	require.NotNil(t, status.ActiveSessionID)
	assert.Equal(t, third.ID, *status.ActiveSessionID)
	require.NotNil(t, status.LastScore)
	assert.Equal(t, 50, *status.LastScore)
	require.NotNil(t, status.AverageScore)
	assert.Equal(t, 75.0, *status.AverageScore)
	assert.Equal(t, services.DefaultBatchSizes, status.DefaultBatchSizes)

	empty, err := env.svc.Status(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalSessions)
	assert.Nil(t, empty.LastScore)
	assert.Nil(t, empty.AverageScore)
}

func TestQuizPushesUpdatesToPartner(t *testing.T) {
	env := newQuizEnv(t)
	session := env.start(t, 1)
	env.answer(t, session.ID, "alice", 1, "Cat")

	sent := env.rt.Sent("bob")
	require.Len(t, sent, 2)
	view, ok := sent[1].Data.(*models.QuizSessionView)
	require.True(t, ok)
	assert.Equal(t, "alice", view.PartnerID)
	assert.Equal(t, 1, view.Progress.PartnerAnswers)
	assert.Nil(t, view.Questions[0].PartnerAnswer)
}

func TestQuizBankParsing(t *testing.T) {
	bank, err := services.LoadQuizBank()
	require.NoError(t, err)
	assert.Greater(t, bank.Size(), 20)

	q, ok := bank.Get(1)
	require.True(t, ok)
	assert.Equal(t, []string{"Cat", "Dog"}, q.Options)

	sample := bank.Sample(bank.Size() + 5)
	assert.Len(t, sample, bank.Size())

	_, err = services.ParseQuizBank([]byte("[]"))
	assert.Error(t, err)
	_, err = services.ParseQuizBank([]byte(`
- id: 1
  question: "A or B?"
  options: ["A", "B"]
- id: 1
  question: "C or D?"
  options: ["C", "D"]
`))
	assert.Error(t, err)
	_, err = services.ParseQuizBank([]byte(`
- id: 1
  question: "Only one?"
  options: ["A"]
`))
	assert.Error(t, err)
}

func TestQuizUnknownUser(t *testing.T) {
	env := newQuizEnv(t)
	_, _, err := env.svc.StartOrResume(context.Background(), "nobody", services.StartRequest{})
	assert.ErrorIs(t, err, services.ErrNotFound)
}
