package services_test

import (
	"context"
	"testing"
	"time"

	"together-backend/internal/agent"
	"together-backend/internal/models"
	"together-backend/internal/services"
	"together-backend/internal/testfixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type actionEnv struct {
	db       *testfixtures.DB
	clock    *testfixtures.Clock
	messages *services.MessageService
	calendar *services.CalendarService
	svc      *services.ActionService
}

func newActionEnv(t *testing.T) *actionEnv {
	t.Helper()
	db := testfixtures.NewDB()
	db.AddUser("alice", "Alice", "alice@example.com")
	db.AddUser("bob", "Bob", "bob@example.com")
	db.AddUser("carol", "Carol", "carol@example.com")
	db.Link("alice", "bob")

	clock := testfixtures.NewClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	activity := services.NewActivityService(db.Activity())
	activity.SetClock(clock.Now)

	messages := services.NewMessageService(db.Messages(), db.Users(), db.Agent(), nil, nil)
	messages.SetClock(clock.Now)
	messages.SetActivity(activity)

	calendar := services.NewCalendarService(db.Calendar(), db.Users())
	calendar.SetClock(clock.Now)
	calendar.SetActivity(activity)

	advisor := services.NewAgentService(
		agent.NewAnalyzer(nil),
		db.Agent(),
		db.Users(),
		db.Messages(),
		db.Calendar(),
		db.DailyQuestions(),
		&memCache{data: map[string][]byte{}},
		services.AgentTTLs{Tone: time.Hour, Suggestion: 10 * time.Minute, Style: 24 * time.Hour},
	)
	advisor.SetClock(clock.Now)

	svc := services.NewActionService(db.Activity(), db.Activity(), advisor, messages, calendar)
	svc.SetClock(clock.Now)
	return &actionEnv{db: db, clock: clock, messages: messages, calendar: calendar, svc: svc}
}

func (e *actionEnv) send(t *testing.T, from, content string) *models.Message {
	t.Helper()
	m, err := e.messages.Send(context.Background(), from, services.SendRequest{Content: content})
	require.NoError(t, err)
	return m
}

func (e *actionEnv) enqueue(t *testing.T, userID, actionType string, payload map[string]any) *models.AgentAction {
	t.Helper()
	a := &models.AgentAction{
		UserID:     userID,
		Workflow:   models.ScenarioDailyCheckIn,
		ActionType: actionType,
		Payload:    payload,
		Status:     models.ActionPending,
		CreatedAt:  e.clock.Now(),
		UpdatedAt:  e.clock.Now(),
	}
	require.NoError(t, e.db.Activity().EnqueueActions(context.Background(), []*models.AgentAction{a}))
	return a
}

func (e *actionEnv) pending(t *testing.T, userID string) []*models.AgentAction {
	t.Helper()
	q, err := e.svc.Queue(context.Background(), userID, 0, false)
	require.NoError(t, err)
	return q.Pending
}

func (e *actionEnv) action(t *testing.T, id string) *models.AgentAction {
	t.Helper()
	a, err := e.db.Activity().GetAction(context.Background(), id)
	require.NoError(t, err)
	return a
}

func TestDecisionPassPlansOncePerPendingType(t *testing.T) {
	env := newActionEnv(t)
	ctx := context.Background()
	env.send(t, "alice", "Dinner at 8?")
	env.clock.Advance(time.Minute)
	env.send(t, "alice", "Or 9?")

	stats, err := env.svc.ProcessPending(ctx, "", 25)
	require.NoError(t, err)
	assert.Equal(t, services.DecisionStats{EventsProcessed: 2, PlansGenerated: 1}, stats)

	pending := env.pending(t, "bob")
	require.Len(t, pending, 1)
	a := pending[0]
	assert.Equal(t, agent.ActionDraftPartnerReply, a.ActionType)
	assert.Equal(t, models.ScenarioDailyCheckIn, a.Workflow)
	assert.Equal(t, "Dinner at 8?", a.Payload["last_message"])
	assert.True(t, a.RequiresApproval)
	require.NotNil(t, a.TriggerEventID)

	for _, e := range env.db.ActivityEvents() {
		assert.True(t, e.Processed)
		require.NotNil(t, e.ProcessedAt)
	}

	stats, err = env.svc.ProcessPending(ctx, "", 25)
	require.NoError(t, err)
	assert.Zero(t, stats)

	env.send(t, "alice", "Still there?")
	stats, err = env.svc.ProcessPending(ctx, "", 25)
	require.NoError(t, err)
	assert.Equal(t, services.DecisionStats{EventsProcessed: 1}, stats, "a reply draft is already pending")
}

func TestDecisionPassRespectsBatchAndUser(t *testing.T) {
	env := newActionEnv(t)
	ctx := context.Background()
	env.send(t, "alice", "one")
	env.send(t, "bob", "two")

	_, err := env.svc.ProcessPending(ctx, "", 0)
	var ve *services.ValidationError
	require.ErrorAs(t, err, &ve)

	stats, err := env.svc.ProcessPending(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EventsProcessed)
	assert.Len(t, env.pending(t, "alice"), 1)
	assert.Empty(t, env.pending(t, "bob"))
}

func TestDecisionPassSuggestsPlansWhenWeekIsEmpty(t *testing.T) {
	env := newActionEnv(t)
	ctx := context.Background()
	_, err := env.calendar.Create(ctx, "alice", services.CreateEventRequest{Title: "Concert", Date: "2025-04-01", Time: "20:00"})
	require.NoError(t, err)

	stats, err := env.svc.ProcessPending(ctx, "", 25)
	require.NoError(t, err)
	assert.Equal(t, services.DecisionStats{EventsProcessed: 2, PlansGenerated: 2}, stats)

	pending := env.pending(t, "bob")
	require.Len(t, pending, 1)
	assert.Equal(t, agent.ActionSuggestCalendarEvent, pending[0].ActionType)
	assert.Equal(t, models.ScenarioPlanning, pending[0].Workflow)

	result, err := env.svc.Execute(ctx, "bob", pending[0].ID, services.ExecuteRequest{})
	require.NoError(t, err)
	require.NotNil(t, result.Event)
	assert.Equal(t, "Shared time together", result.Event.Title)
	assert.Equal(t, "2025-03-08", result.Event.Date)
	assert.Equal(t, "19:00", result.Event.Time)
	assert.Equal(t, "bob", result.Event.CreatorID)
	assert.Equal(t, models.ActionExecuted, env.action(t, pending[0].ID).Status)
}

func TestExecuteDraftReplySendsEditedMessage(t *testing.T) {
	env := newActionEnv(t)
	ctx := context.Background()
	env.send(t, "alice", "Dinner at 8?")
	_, err := env.svc.ProcessPending(ctx, "", 25)
	require.NoError(t, err)
	draft := env.pending(t, "bob")[0]

	_, err = env.svc.Execute(ctx, "alice", draft.ID, services.ExecuteRequest{})
	assert.ErrorIs(t, err, services.ErrNotFound, "only the owner can run an action")

	_, err = env.svc.Execute(ctx, "bob", draft.ID, services.ExecuteRequest{})
	var ve *services.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "message is required", ve.Message)
	assert.Equal(t, models.ActionPending, env.action(t, draft.ID).Status, "validation happens before claiming")

	env.clock.Advance(time.Minute)
	result, err := env.svc.Execute(ctx, "bob", draft.ID, services.ExecuteRequest{Input: map[string]string{"message": "See you at 8"}})
	require.NoError(t, err)
	require.NotNil(t, result.Message)
	assert.Equal(t, "See you at 8", result.Message.Content)
	assert.Equal(t, "alice", result.Message.ReceiverID)
	assert.Equal(t, models.ActionExecuted, result.Action.Status)

	stored := env.action(t, draft.ID)
	assert.Equal(t, models.ActionExecuted, stored.Status)
	assert.Equal(t, result.Message.ID, stored.Result["message_id"])
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, env.clock.Now(), *stored.CompletedAt)

	_, err = env.svc.Execute(ctx, "bob", draft.ID, services.ExecuteRequest{Input: map[string]string{"message": "again"}})
	var ce *services.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "action already processed", ce.Reason)
}

func TestExecuteCalendarSuggestionNeedsDateAndTime(t *testing.T) {
	env := newActionEnv(t)
	ctx := context.Background()
	a := env.enqueue(t, "alice", agent.ActionSuggestCalendarEvent, map[string]any{"title": "Picnic"})

	_, err := env.svc.Execute(ctx, "alice", a.ID, services.ExecuteRequest{Input: map[string]string{"date": "2025-03-09"}})
	var ve *services.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "date and time are required", ve.Message)
	assert.Equal(t, models.ActionPending, env.action(t, a.ID).Status)

	result, err := env.svc.Execute(ctx, "alice", a.ID, services.ExecuteRequest{Input: map[string]string{"date": "2025-03-09", "time": "12:00"}})
	require.NoError(t, err)
	assert.Equal(t, "Picnic", result.Event.Title)
	assert.Equal(t, result.Event.ID, env.action(t, a.ID).Result["event_id"])
}

func TestExecuteFailureMarksActionFailed(t *testing.T) {
	env := newActionEnv(t)
	ctx := context.Background()
	a := env.enqueue(t, "carol", agent.ActionPromptFirstMessage, map[string]any{"suggested_message": "Hi!"})

	_, err := env.svc.Execute(ctx, "carol", a.ID, services.ExecuteRequest{})
	var ve *services.ValidationError
	require.ErrorAs(t, err, &ve)

	stored := env.action(t, a.ID)
	assert.Equal(t, models.ActionFailed, stored.Status)
	assert.Equal(t, "receiver_id is required when no partner is connected", stored.Error)
	require.NotNil(t, stored.CompletedAt)
}

func TestExecuteReminderAndUnknownTypes(t *testing.T) {
	env := newActionEnv(t)
	ctx := context.Background()
	reminder := env.enqueue(t, "bob", agent.ActionDailyQuestionNudge, map[string]any{"question": "q"})
	odd := env.enqueue(t, "bob", "launch_rocket", nil)

	result, err := env.svc.Execute(ctx, "bob", reminder.ID, services.ExecuteRequest{})
	require.NoError(t, err)
	assert.Nil(t, result.Message)
	assert.Nil(t, result.Event)
	assert.Equal(t, models.ActionAcknowledged, env.action(t, reminder.ID).Status)

	_, err = env.svc.Execute(ctx, "bob", odd.ID, services.ExecuteRequest{})
	var ve *services.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "unsupported action type: launch_rocket", ve.Message)

	_, err = env.svc.Execute(ctx, "bob", "missing", services.ExecuteRequest{})
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestFeedbackClosesPendingAction(t *testing.T) {
	env := newActionEnv(t)
	ctx := context.Background()
	a := env.enqueue(t, "bob", agent.ActionDraftPartnerReply, map[string]any{"last_message": "hi"})

	six := 6
	_, err := env.svc.Feedback(ctx, "bob", a.ID, services.FeedbackRequest{Rating: &six})
	var ve *services.ValidationError
	require.ErrorAs(t, err, &ve)
	_, err = env.svc.Feedback(ctx, "bob", a.ID, services.FeedbackRequest{Status: models.ActionExecuted})
	require.ErrorAs(t, err, &ve)
	_, err = env.svc.Feedback(ctx, "alice", a.ID, services.FeedbackRequest{})
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.Empty(t, env.db.Feedback())

	four := 4
	closed, err := env.svc.Feedback(ctx, "bob", a.ID, services.FeedbackRequest{Rating: &four, Comment: " nice "})
	require.NoError(t, err)
	assert.Equal(t, models.ActionAcknowledged, closed.Status)
	assert.Equal(t, models.ActionAcknowledged, env.action(t, a.ID).Status)

	again, err := env.svc.Feedback(ctx, "bob", a.ID, services.FeedbackRequest{Status: models.ActionDismissed})
	require.NoError(t, err)
	assert.Equal(t, models.ActionAcknowledged, again.Status, "finished actions keep their status")

	feedback := env.db.Feedback()
	require.Len(t, feedback, 2)
	assert.Equal(t, "nice", feedback[0].Comment)
	require.NotNil(t, feedback[0].Rating)
	assert.Equal(t, 4, *feedback[0].Rating)
	assert.Equal(t, models.ActionDismissed, feedback[1].Status)
}

func TestFeedbackDismissesAction(t *testing.T) {
	env := newActionEnv(t)
	a := env.enqueue(t, "bob", agent.ActionQuizFollowUp, map[string]any{"suggested_message": "yay"})

	closed, err := env.svc.Feedback(context.Background(), "bob", a.ID, services.FeedbackRequest{Status: models.ActionDismissed})
	require.NoError(t, err)
	assert.Equal(t, models.ActionDismissed, closed.Status)
	assert.Empty(t, env.pending(t, "bob"))

	_, err = env.svc.Execute(context.Background(), "bob", a.ID, services.ExecuteRequest{})
	var ce *services.ConflictError
	require.ErrorAs(t, err, &ce)
}

func TestOverviewRunsDecisionPass(t *testing.T) {
	env := newActionEnv(t)
	env.send(t, "alice", "Dinner at 8?")

	overview, err := env.svc.Overview(context.Background(), "bob")
	require.NoError(t, err)
	require.NotNil(t, overview.Suggestions)
	assert.NotEmpty(t, overview.Suggestions.Suggestions)
	require.Len(t, overview.AutomationQueue, 1)
	assert.Equal(t, agent.ActionDraftPartnerReply, overview.AutomationQueue[0].ActionType)
}

func TestQueueIncludesRecentOnRequest(t *testing.T) {
	env := newActionEnv(t)
	ctx := context.Background()
	done := env.enqueue(t, "bob", agent.ActionCollectStyleSamples, nil)
	env.clock.Advance(time.Minute)
	env.enqueue(t, "bob", agent.ActionQuizFollowUp, map[string]any{"suggested_message": "yay"})
	_, err := env.svc.Execute(ctx, "bob", done.ID, services.ExecuteRequest{})
	require.NoError(t, err)

	q, err := env.svc.Queue(ctx, "bob", 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, q.PendingCount)
	assert.Nil(t, q.Recent)

	q, err = env.svc.Queue(ctx, "bob", 500, true)
	require.NoError(t, err)
	require.Len(t, q.Recent, 1)
	assert.Equal(t, done.ID, q.Recent[0].ID)
	assert.Equal(t, models.ActionAcknowledged, q.Recent[0].Status)
}
