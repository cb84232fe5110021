package repository_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"together-backend/internal/models"
	"together-backend/internal/repository"
	"together-backend/internal/services"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var (
	_ services.UserStore          = (*repository.UserRepository)(nil)
	_ services.PartnerStore       = (*repository.PartnerRepository)(nil)
	_ services.QuizStore          = (*repository.QuizRepository)(nil)
	_ services.MessageStore       = (*repository.MessageRepository)(nil)
	_ services.CalendarStore      = (*repository.CalendarRepository)(nil)
	_ services.DailyQuestionStore = (*repository.DailyQuestionRepository)(nil)
	_ services.AgentStore         = (*repository.AgentRepository)(nil)
	_ services.ActivityStore      = (*repository.ActivityRepository)(nil)
	_ services.ActionStore        = (*repository.ActivityRepository)(nil)
)

// openTestDB connects to TOGETHER_TEST_DATABASE_URL or skips the test
func openTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TOGETHER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TOGETHER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, repository.Migrate(ctx, db))
	return db
}

type pgEnv struct {
	db       *pgxpool.Pool
	users    *services.UserService
	partners *services.PartnerService
	quiz     *services.QuizService
	messages *services.MessageService
}

func newPGEnv(t *testing.T) *pgEnv {
	db := openTestDB(t)
	bank, err := services.LoadQuizBank()
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(db)
	partnerRepo := repository.NewPartnerRepository(db)
	partners := services.NewPartnerService(userRepo, partnerRepo, nil, nil)
	users := services.NewUserService(userRepo, partnerRepo, partners, "test-secret", time.Hour)
	users.SetBcryptCost(bcrypt.MinCost)

	return &pgEnv{
		db:       db,
		users:    users,
		partners: partners,
		quiz:     services.NewQuizService(repository.NewQuizRepository(db), userRepo, bank, nil),
		messages: services.NewMessageService(repository.NewMessageRepository(db), userRepo, repository.NewAgentRepository(db), nil, nil),
	}
}

// couple registers two users and links them
func (e *pgEnv) couple(t *testing.T) (string, string) {
	t.Helper()
	ctx := context.Background()
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")

	register := func(name string) *services.AuthResult {
		res, err := e.users.Register(ctx, services.RegisterRequest{
			Name:     name,
			Email:    strings.ToLower(name) + "-" + suffix + "@example.com",
			Password: "secret1",
		})
		require.NoError(t, err)
		return res
	}
	a := register("Alice")
	b := register("Bob")
	t.Cleanup(func() {
		_, _ = e.db.Exec(context.Background(), `DELETE FROM users WHERE id = ANY($1)`, []string{a.User.ID, b.User.ID})
	})

	invite, err := e.partners.Invite(ctx, a.User.ID, services.InviteRequest{PartnerEmail: b.User.Email})
	require.NoError(t, err)
	overview, err := e.partners.Accept(ctx, b.User.ID, invite.InvitationID)
	require.NoError(t, err)
	require.True(t, overview.HasPartner)
	return a.User.ID, b.User.ID
}

func TestConcurrentQuizStartCreatesOneSession(t *testing.T) {
	env := newPGEnv(t)
	alice, bob := env.couple(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     []string
		created int
	)
	for _, user := range []string{alice, bob, alice, bob} {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			view, isNew, err := env.quiz.StartOrResume(ctx, userID, services.StartRequest{QuestionIDs: []int{1, 2, 3}})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids = append(ids, view.ID)
			if isNew {
				created++
			}
		}(user)
	}
	wg.Wait()

	require.Len(t, ids, 4)
	assert.Equal(t, 1, created)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestConcurrentAnswersCompleteOnce(t *testing.T) {
	env := newPGEnv(t)
	alice, bob := env.couple(t)
	ctx := context.Background()

	view, _, err := env.quiz.StartOrResume(ctx, alice, services.StartRequest{QuestionIDs: []int{1, 2, 3}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, q := range view.Questions {
		for _, user := range []string{alice, bob} {
			wg.Add(1)
			go func(userID string, q models.QuizQuestionView) {
				defer wg.Done()
				_, err := env.quiz.SubmitAnswer(ctx, view.ID, userID, services.AnswerRequest{QuestionID: q.ID, Answer: q.Options[0]})
				assert.NoError(t, err)
			}(user, q)
		}
	}
	wg.Wait()

	final, err := env.quiz.GetByID(ctx, view.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, models.QuizCompleted, final.Status)
	require.NotNil(t, final.Compatibility)
	assert.Equal(t, 3, final.Compatibility.Matches)
	assert.Equal(t, 100, final.Compatibility.Score)

	_, err = env.quiz.SubmitAnswer(ctx, view.ID, alice, services.AnswerRequest{QuestionID: view.Questions[0].ID, Answer: view.Questions[0].Options[1]})
	var ce *services.ConflictError
	assert.ErrorAs(t, err, &ce)

	status, err := env.quiz.Status(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, status.CompletedSessions)
}

func TestScheduledDeliveryRoundTrip(t *testing.T) {
	env := newPGEnv(t)
	alice, bob := env.couple(t)
	ctx := context.Background()

	now := time.Now().UTC()
	env.messages.SetClock(func() time.Time { return now })
	sm, err := env.messages.Schedule(ctx, alice, services.ScheduleRequest{
		Content:      "see you soon",
		ScheduledFor: now.Add(time.Minute).Format(time.RFC3339),
	})
	require.NoError(t, err)

	env.messages.SetClock(func() time.Time { return now.Add(2 * time.Minute) })
	report, err := env.messages.DeliverDue(ctx, 100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.Sent, 1)

	conversation, err := env.messages.Conversation(ctx, bob, alice)
	require.NoError(t, err)
	require.Len(t, conversation, 1)
	assert.Equal(t, "see you soon", conversation[0].Content)
	assert.True(t, conversation[0].IsScheduled)

	_, err = env.messages.CancelScheduled(ctx, alice, sm.ID)
	var ce *services.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "scheduled message already sent", ce.Reason)
}

func TestActivityRepositoryDedupesAndGuardsActions(t *testing.T) {
	env := newPGEnv(t)
	_, bob := env.couple(t)
	ctx := context.Background()
	repo := repository.NewActivityRepository(env.db)
	now := time.Now().UTC().Truncate(time.Millisecond)

	event := &models.ActivityEvent{
		UserID:     bob,
		EventType:  models.ActivityQuizCompleted,
		Source:     "quiz",
		Scenario:   models.ScenarioQuizFollowUp,
		Payload:    map[string]any{"score": 80},
		DedupeKey:  "quiz:" + uuid.New().String(),
		OccurredAt: now,
		RecordedAt: now,
	}
	stored, created, err := repo.RecordActivity(ctx, event)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, float64(80), stored.Payload["score"])

	again, created, err := repo.RecordActivity(ctx, &models.ActivityEvent{
		UserID: bob, EventType: models.ActivityQuizCompleted, Source: "quiz", Scenario: models.ScenarioQuizFollowUp,
		DedupeKey: event.DedupeKey, OccurredAt: now, RecordedAt: now,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, stored.ID, again.ID)

	claimed, err := repo.MarkProcessed(ctx, []string{stored.ID}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{stored.ID}, claimed)
	claimed, err = repo.MarkProcessed(ctx, []string{stored.ID}, now)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	feed, err := repo.ListActivity(ctx, models.ActivityFilter{UserID: bob, IncludeProcessed: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.True(t, feed[0].Processed)

	action := &models.AgentAction{
		UserID:         bob,
		Workflow:       models.ScenarioQuizFollowUp,
		TriggerEventID: &stored.ID,
		ActionType:     "send_quiz_followup",
		Confidence:     0.7,
		Payload:        map[string]any{"suggested_message": "yay"},
		Status:         models.ActionPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, repo.EnqueueActions(ctx, []*models.AgentAction{action}))

	require.NoError(t, repo.ClaimAction(ctx, action.ID, now))
	assert.ErrorIs(t, repo.ClaimAction(ctx, action.ID, now), repository.ErrStateChanged)

	action.Status = models.ActionExecuted
	action.Result = map[string]any{"message_id": "m1"}
	action.CompletedAt = &now
	require.NoError(t, repo.FinishAction(ctx, action, models.ActionExecuting))
	assert.ErrorIs(t, repo.FinishAction(ctx, action, models.ActionExecuting), repository.ErrStateChanged)

	loaded, err := repo.GetAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionExecuted, loaded.Status)
	assert.Equal(t, "m1", loaded.Result["message_id"])
	require.NotNil(t, loaded.TriggerEventID)
	assert.Equal(t, stored.ID, *loaded.TriggerEventID)

	pending, err := repo.ListActions(ctx, bob, false, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	rating := 5
	require.NoError(t, repo.RecordFeedback(ctx, &models.ActionFeedback{
		ActionID: action.ID, UserID: bob, Rating: &rating, Status: models.ActionAcknowledged, CreatedAt: now,
	}))
}
