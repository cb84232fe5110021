package services

import (
	"context"
	"time"

	"together-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// UserStore persists user accounts
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByInviteCode(ctx context.Context, code string) (*models.User, error)
	InviteCodeExists(ctx context.Context, code string) (bool, error)
	UpdateName(ctx context.Context, userID, name string, now time.Time) error
	UpdatePassword(ctx context.Context, userID, hash string, now time.Time) error
	UpdateEmailNotifications(ctx context.Context, userID string, enabled bool, now time.Time) error
	UpdatePushToken(ctx context.Context, userID string, pushToken *string, now time.Time) error
	UpdateAvatarURL(ctx context.Context, userID, url string, now time.Time) error
	RefreshPartnerStatus(ctx context.Context, userIDs ...string) error
}

// PartnerStore persists invitations and the partner link
type PartnerStore interface {
	CreateInvitation(ctx context.Context, inv *models.PartnerInvitation) error
	GetInvitation(ctx context.Context, id string) (*models.PartnerInvitation, error)
	FindPendingInvitation(ctx context.Context, senderID, receiverEmail string) (*models.PartnerInvitation, error)
	ListReceivedInvitations(ctx context.Context, userID, email string) ([]*models.PartnerInvitation, error)
	ListSentInvitations(ctx context.Context, userID string) ([]*models.PartnerInvitation, error)
	AttachInvitations(ctx context.Context, email, userID string) (int64, error)
	RespondInvitation(ctx context.Context, id string, status models.InvitationStatus, now time.Time) error
	AcceptInvitation(ctx context.Context, id string, now time.Time) error
	Unlink(ctx context.Context, userID string, now time.Time) (string, error)
}

// QuizStore persists quiz sessions. RecordAnswer must upsert the answer and
// finalize the session atomically.
type QuizStore interface {
	GetByID(ctx context.Context, id string) (*models.QuizSession, error)
	ActiveForPair(ctx context.Context, user1ID, user2ID string) (*models.QuizSession, error)
	ActiveForUser(ctx context.Context, userID string) (*models.QuizSession, error)
	CreateIfNoActive(ctx context.Context, s *models.QuizSession) (*models.QuizSession, bool, error)
	ListForUser(ctx context.Context, userID string) ([]*models.QuizSession, error)
	RecordAnswer(ctx context.Context, sessionID, userID string, questionID int, answer string, now time.Time) (*models.QuizSession, error)
}

// MessageStore persists instant and scheduled messages
type MessageStore interface {
	Create(ctx context.Context, m *models.Message) error
	ListRecent(ctx context.Context, userID string, limit int) ([]*models.Message, error)
	Conversation(ctx context.Context, userID, partnerID string) ([]*models.Message, error)
	MarkRead(ctx context.Context, receiverID, senderID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	CreateScheduled(ctx context.Context, sm *models.ScheduledMessage) error
	GetScheduled(ctx context.Context, id string) (*models.ScheduledMessage, error)
	ListScheduled(ctx context.Context, senderID string) ([]*models.ScheduledMessage, error)
	DueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledMessage, error)
	UpdateScheduled(ctx context.Context, sm *models.ScheduledMessage) error
	CancelScheduled(ctx context.Context, id string, now time.Time) error
	MarkScheduledFailed(ctx context.Context, id, reason string, now time.Time) error
	DeliverScheduled(ctx context.Context, sm *models.ScheduledMessage, m *models.Message, now time.Time) error
}

// CalendarStore persists calendar events
type CalendarStore interface {
	Create(ctx context.Context, e *models.CalendarEvent) error
	GetByID(ctx context.Context, id string) (*models.CalendarEvent, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, creatorIDs []string, from, to *time.Time) ([]*models.CalendarEvent, error)
}

// DailyQuestionStore persists daily prompts and answers
type DailyQuestionStore interface {
	GetOrCreate(ctx context.Context, q *models.DailyQuestion) (*models.DailyQuestion, error)
	Get(ctx context.Context, userID, date string) (*models.DailyQuestion, error)
	SaveAnswer(ctx context.Context, userID, date, answer string, now time.Time) error
	ListAnswered(ctx context.Context, userID string, limit int) ([]*models.DailyQuestion, error)
}

// AgentStore persists derived agent documents
type AgentStore interface {
	AddStyleSample(ctx context.Context, userID, content string, now time.Time) error
	RecentWriting(ctx context.Context, userID string, limit int) ([]string, error)
	GetStyleProfile(ctx context.Context, userID string) (*models.StyleProfile, error)
	SaveStyleProfile(ctx context.Context, profile *models.StyleProfile) error
	GetSuggestions(ctx context.Context, userID string) (*models.SuggestionSet, error)
	SaveSuggestions(ctx context.Context, set *models.SuggestionSet) error
}

// ActivityStore persists the agent activity feed. RecordActivity is
// idempotent on DedupeKey and MarkProcessed returns only the ids it claimed.
type ActivityStore interface {
	RecordActivity(ctx context.Context, e *models.ActivityEvent) (*models.ActivityEvent, bool, error)
	ListActivity(ctx context.Context, filter models.ActivityFilter) ([]*models.ActivityEvent, error)
	MarkProcessed(ctx context.Context, ids []string, now time.Time) ([]string, error)
	PruneActivity(ctx context.Context, before time.Time) (int64, error)
}

// ActionStore persists the agent action queue and feedback. ClaimAction and
// FinishAction return repository.ErrStateChanged when the action left the
// expected status.
type ActionStore interface {
	EnqueueActions(ctx context.Context, actions []*models.AgentAction) error
	GetAction(ctx context.Context, id string) (*models.AgentAction, error)
	ListActions(ctx context.Context, userID string, includeDone bool, limit int) ([]*models.AgentAction, error)
	ClaimAction(ctx context.Context, id string, now time.Time) error
	FinishAction(ctx context.Context, a *models.AgentAction, from models.ActionStatus) error
	RecordFeedback(ctx context.Context, f *models.ActionFeedback) error
}

// ActivityRecorder receives activity from the domain services
type ActivityRecorder interface {
	Record(ctx context.Context, e models.ActivityEvent)
}

// recordActivity forwards to an optional recorder
func recordActivity(ctx context.Context, rec ActivityRecorder, e models.ActivityEvent) {
	if rec != nil {
		rec.Record(ctx, e)
	}
}

// Notifier delivers out-of-band notifications. Implementations log and
// swallow delivery failures.
type Notifier interface {
	MessageReceived(ctx context.Context, sender, receiver *models.User, m *models.Message)
	InvitationSent(ctx context.Context, sender *models.User, receiver *models.User, receiverEmail string)
	InvitationAccepted(ctx context.Context, accepter, sender *models.User)
}

// Realtime pushes events to connected WebSocket clients
type Realtime interface {
	SendToUser(userID string, message WSMessage) error
	IsOnline(userID string) bool
}

type nopNotifier struct{}

func (nopNotifier) MessageReceived(context.Context, *models.User, *models.User, *models.Message) {}
func (nopNotifier) InvitationSent(context.Context, *models.User, *models.User, string)           {}
func (nopNotifier) InvitationAccepted(context.Context, *models.User, *models.User)               {}

// push sends to an online user and ignores offline ones
func push(rt Realtime, userID string, message WSMessage) {
	if rt == nil || userID == "" || !rt.IsOnline(userID) {
		return
	}
	if err := rt.SendToUser(userID, message); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("type", message.Type).Msg("Failed to push realtime event")
	}
}
