package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"together-backend/internal/models"
	"together-backend/internal/services"
	"together-backend/internal/testfixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type messageEnv struct {
	db       *testfixtures.DB
	clock    *testfixtures.Clock
	notifier *testfixtures.Notifier
	rt       *testfixtures.Realtime
	svc      *services.MessageService
}

func newMessageEnv(t *testing.T) *messageEnv {
	t.Helper()
	db := testfixtures.NewDB()
	db.AddUser("alice", "Alice", "alice@example.com")
	db.AddUser("bob", "Bob", "bob@example.com")
	db.AddUser("carol", "Carol", "carol@example.com")
	db.Link("alice", "bob")

	clock := testfixtures.NewClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	notifier := &testfixtures.Notifier{}
	rt := testfixtures.NewRealtime("bob")
	svc := services.NewMessageService(db.Messages(), db.Users(), db.Agent(), notifier, rt)
	svc.SetClock(clock.Now)
	return &messageEnv{db: db, clock: clock, notifier: notifier, rt: rt, svc: svc}
}

func TestParseScheduledFor(t *testing.T) {
	want := time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)
	for _, value := range []string{
		"2025-03-01T15:00:00Z",
		"2025-03-01T17:00:00+02:00",
		"2025-03-01T15:00:00",
		"2025-03-01T15:00",
		"2025-03-01 15:00:00",
		"2025-03-01 15:00",
	} {
		got, err := services.ParseScheduledFor(value)
		require.NoError(t, err, value)
		assert.True(t, want.Equal(got), value)
		assert.Equal(t, time.UTC, got.Location(), value)
	}

	for _, value := range []string{"", "tomorrow", "2025-13-01T10:00"} {
		_, err := services.ParseScheduledFor(value)
		var ve *services.ValidationError
		assert.ErrorAs(t, err, &ve, value)
	}
}

func TestSendDefaultsToPartner(t *testing.T) {
	env := newMessageEnv(t)
	ctx := context.Background()

	m, err := env.svc.Send(ctx, "alice", services.SendRequest{Content: "  good morning  "})
	require.NoError(t, err)
	assert.Equal(t, "bob", m.ReceiverID)
	assert.Equal(t, "good morning", m.Content)
	assert.False(t, m.IsScheduled)

	calls := env.notifier.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "message_received", calls[0].Kind)
	assert.Equal(t, "bob", calls[0].Recipient)
	assert.Equal(t, []string{services.EventMessageReceived}, env.rt.Types("bob"))

	writing, err := env.db.Agent().RecentWriting(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"good morning"}, writing)
}

func TestSendValidation(t *testing.T) {
	env := newMessageEnv(t)
	ctx := context.Background()

	_, err := env.svc.Send(ctx, "carol", services.SendRequest{Content: "hi"})
	var ve *services.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = env.svc.Send(ctx, "alice", services.SendRequest{Content: "hi", ReceiverID: "alice"})
	assert.ErrorAs(t, err, &ve)

	_, err = env.svc.Send(ctx, "alice", services.SendRequest{Content: "   "})
	assert.ErrorAs(t, err, &ve)

	_, err = env.svc.Send(ctx, "alice", services.SendRequest{Content: strings.Repeat("x", 5001)})
	assert.ErrorAs(t, err, &ve)

	_, err = env.svc.Send(ctx, "alice", services.SendRequest{Content: "hi", ReceiverID: "ghost"})
	assert.ErrorIs(t, err, services.ErrNotFound)

	m, err := env.svc.Send(ctx, "carol", services.SendRequest{Content: "hi", ReceiverID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", m.ReceiverID)
}

func TestConversationMarksRead(t *testing.T) {
	env := newMessageEnv(t)
	ctx := context.Background()

	_, err := env.svc.Send(ctx, "alice", services.SendRequest{Content: "first"})
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	_, err = env.svc.Send(ctx, "alice", services.SendRequest{Content: "second"})
	require.NoError(t, err)

	unread, err := env.svc.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	conversation, err := env.svc.Conversation(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, conversation, 2)
	assert.Equal(t, "first", conversation[0].Content)
	assert.True(t, conversation[1].IsRead)

	unread, err = env.svc.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	recent, err := env.svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].Content)
}

func TestScheduleLifecycle(t *testing.T) {
	env := newMessageEnv(t)
	ctx := context.Background()

	_, err := env.svc.Schedule(ctx, "alice", services.ScheduleRequest{Content: "late", ScheduledFor: "2025-03-01T11:00:00Z"})
	var ve *services.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "scheduled_for must be in the future", ve.Message)

	sm, err := env.svc.Schedule(ctx, "alice", services.ScheduleRequest{Content: "later", ScheduledFor: "2025-03-01T18:00"})
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledPending, sm.Status)
	assert.Equal(t, "bob", sm.ReceiverID)

	content := "even later"
	at := "2025-03-01T20:00:00Z"
	updated, err := env.svc.UpdateScheduled(ctx, "alice", sm.ID, services.UpdateScheduledRequest{Content: &content, ScheduledFor: &at})
	require.NoError(t, err)
	assert.Equal(t, "even later", updated.Content)
	assert.Equal(t, 20, updated.ScheduledFor.Hour())

	_, err = env.svc.UpdateScheduled(ctx, "bob", sm.ID, services.UpdateScheduledRequest{Content: &content})
	assert.ErrorIs(t, err, services.ErrForbidden)

	_, err = env.svc.UpdateScheduled(ctx, "alice", sm.ID, services.UpdateScheduledRequest{})
	assert.ErrorAs(t, err, &ve)

	list, err := env.svc.ListScheduled(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)

	cancelled, err := env.svc.CancelScheduled(ctx, "alice", sm.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = env.svc.UpdateScheduled(ctx, "alice", sm.ID, services.UpdateScheduledRequest{Content: &content})
	var ce *services.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "scheduled message already cancelled", ce.Reason)

	list, err = env.svc.ListScheduled(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = env.svc.CancelScheduled(ctx, "alice", "missing")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDeliverDue(t *testing.T) {
	env := newMessageEnv(t)
	ctx := context.Background()

	early, err := env.svc.Schedule(ctx, "alice", services.ScheduleRequest{Content: "early", ScheduledFor: "2025-03-01T13:00:00Z"})
	require.NoError(t, err)
	_, err = env.svc.Schedule(ctx, "alice", services.ScheduleRequest{Content: "late", ScheduledFor: "2025-03-02T13:00:00Z"})
	require.NoError(t, err)

	report, err := env.svc.DeliverDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, services.DeliveryReport{}, report)

	env.clock.Set(time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC))
	report, err = env.svc.DeliverDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)

	delivered := env.db.AllMessages()
	require.Len(t, delivered, 1)
	assert.True(t, delivered[0].IsScheduled)
	require.NotNil(t, delivered[0].ScheduledFrom)
	assert.Equal(t, early.ID, *delivered[0].ScheduledFrom)
	assert.Equal(t, "bob", delivered[0].ReceiverID)
	assert.Equal(t, []string{services.EventMessageReceived}, env.rt.Types("bob"))

	stored, err := env.db.Messages().GetScheduled(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledSent, stored.Status)
	require.NotNil(t, stored.SentAt)

	_, err = env.svc.CancelScheduled(ctx, "alice", early.ID)
	var ce *services.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "scheduled message already sent", ce.Reason)

	report, err = env.svc.DeliverDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sent)
}

func TestDeliverDueMarksFailures(t *testing.T) {
	env := newMessageEnv(t)
	ctx := context.Background()

	sm, err := env.svc.Schedule(ctx, "alice", services.ScheduleRequest{Content: "hello", ScheduledFor: "2025-03-01T12:30:00Z"})
	require.NoError(t, err)

	env.db.FailDeliver = errors.New("disk full")
	env.clock.Advance(time.Hour)
	report, err := env.svc.DeliverDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	stored, err := env.db.Messages().GetScheduled(ctx, sm.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Contains(t, *stored.Error, "disk full")
	assert.Empty(t, env.db.AllMessages())
}
