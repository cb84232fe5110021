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

const (
	maxMessageLength   = 5000
	recentMessageLimit = 100
)

// naive layouts are interpreted as UTC
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseScheduledFor parses an RFC 3339 instant or a naive local timestamp,
// which is taken as UTC. The result is always in UTC.
func ParseScheduledFor(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, invalid("scheduled_for is required")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalid("scheduled_for must be an ISO 8601 timestamp")
}

// MessageService handles instant and scheduled messages
type MessageService struct {
	messages MessageStore
	users    UserStore
	samples  AgentStore
	notifier Notifier
	realtime Realtime
	activity ActivityRecorder
	now      func() time.Time
}

// NewMessageService creates a new message service. samples may be nil.
func NewMessageService(messages MessageStore, users UserStore, samples AgentStore, notifier Notifier, realtime Realtime) *MessageService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &MessageService{
		messages: messages,
		users:    users,
		samples:  samples,
		notifier: notifier,
		realtime: realtime,
		now:      time.Now,
	}
}

// SetClock overrides the time source
func (s *MessageService) SetClock(now func() time.Time) {
	s.now = now
}

// SetActivity records delivered messages as agent activity of the receiver
func (s *MessageService) SetActivity(rec ActivityRecorder) {
	s.activity = rec
}

// SendRequest is an instant message
type SendRequest struct {
	Content    string `json:"content"`
	ReceiverID string `json:"receiver_id"`
}

// ScheduleRequest is a message to deliver later
type ScheduleRequest struct {
	Content      string `json:"content"`
	ScheduledFor string `json:"scheduled_for"`
	ReceiverID   string `json:"receiver_id"`
}

// UpdateScheduledRequest edits a pending scheduled message
type UpdateScheduledRequest struct {
	Content      *string `json:"content"`
	ScheduledFor *string `json:"scheduled_for"`
}

func validContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", invalid("content is required")
	}
	if len([]rune(content)) > maxMessageLength {
		return "", invalid("content must be at most %d characters", maxMessageLength)
	}
	return content, nil
}

// resolveReceiver defaults to the connected partner when no receiver is given
func (s *MessageService) resolveReceiver(ctx context.Context, userID, receiverID string) (*models.User, *models.User, error) {
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" {
		sender, partner, err := connectedPair(ctx, s.users, userID)
		if errors.Is(err, ErrNoPartner) {
			return nil, nil, invalid("receiver_id is required when no partner is connected")
		}
		return sender, partner, err
	}

	sender, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, notFound(err, "user")
	}
	if receiverID == sender.ID {
		return nil, nil, invalid("you cannot message yourself")
	}
	receiver, err := s.users.GetByID(ctx, receiverID)
	if err != nil {
		return nil, nil, notFound(err, "receiver")
	}
	return sender, receiver, nil
}

// List returns the latest messages involving the user
func (s *MessageService) List(ctx context.Context, userID string) ([]*models.Message, error) {
	return s.messages.ListRecent(ctx, userID, recentMessageLimit)
}

// Send delivers an instant message
func (s *MessageService) Send(ctx context.Context, userID string, req SendRequest) (*models.Message, error) {
	content, err := validContent(req.Content)
	if err != nil {
		return nil, err
	}
	sender, receiver, err := s.resolveReceiver(ctx, userID, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	m := &models.Message{
		ID:           uuid.New().String(),
		SenderID:     sender.ID,
		SenderName:   sender.Name,
		ReceiverID:   receiver.ID,
		ReceiverName: receiver.Name,
		Content:      content,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	s.delivered(ctx, sender, receiver, m)
	return m, nil
}

// delivered runs the best-effort side effects of a stored message
func (s *MessageService) delivered(ctx context.Context, sender, receiver *models.User, m *models.Message) {
	if s.samples != nil {
		if err := s.samples.AddStyleSample(ctx, sender.ID, m.Content, m.CreatedAt); err != nil {
			log.Warn().Err(err).Str("user_id", sender.ID).Msg("Failed to record style sample")
		}
	}
	s.notifier.MessageReceived(ctx, sender, receiver, m)
	push(s.realtime, receiver.ID, WSMessage{Type: EventMessageReceived, Data: m})
	recordActivity(ctx, s.activity, models.ActivityEvent{
		UserID:     receiver.ID,
		EventType:  models.ActivityMessageReceived,
		Source:     "messages",
		DedupeKey:  "message:" + m.ID,
		OccurredAt: m.CreatedAt,
		Payload: map[string]any{
			"message_id": m.ID,
			"sender_id":  sender.ID,
			"content":    m.Content,
			"scheduled":  m.IsScheduled,
		},
	})
}

// Conversation returns the messages between the user and another user and
// marks the other user's messages as read
func (s *MessageService) Conversation(ctx context.Context, userID, otherID string) ([]*models.Message, error) {
	if strings.TrimSpace(otherID) == "" {
		return nil, invalid("partner id is required")
	}
	if _, err := s.messages.MarkRead(ctx, userID, otherID); err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return s.messages.Conversation(ctx, userID, otherID)
}

// UnreadCount returns the number of unread messages addressed to the user
func (s *MessageService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.messages.UnreadCount(ctx, userID)
}

// Schedule stores a message for later delivery
func (s *MessageService) Schedule(ctx context.Context, userID string, req ScheduleRequest) (*models.ScheduledMessage, error) {
	content, err := validContent(req.Content)
	if err != nil {
		return nil, err
	}
	at, err := ParseScheduledFor(req.ScheduledFor)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if !at.After(now) {
		return nil, invalid("scheduled_for must be in the future")
	}
	sender, receiver, err := s.resolveReceiver(ctx, userID, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	sm := &models.ScheduledMessage{
		ID:           uuid.New().String(),
		SenderID:     sender.ID,
		ReceiverID:   receiver.ID,
		Content:      content,
		ScheduledFor: at,
		Status:       models.ScheduledPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.messages.CreateScheduled(ctx, sm); err != nil {
		return nil, fmt.Errorf("failed to schedule message: %w", err)
	}

	log.Info().
		Str("user_id", sender.ID).
		Str("scheduled_id", sm.ID).
		Time("scheduled_for", sm.ScheduledFor).
		Msg("Message scheduled")
	return sm, nil
}

// ListScheduled returns the user's pending scheduled messages
func (s *MessageService) ListScheduled(ctx context.Context, userID string) ([]*models.ScheduledMessage, error) {
	return s.messages.ListScheduled(ctx, userID)
}

func scheduledConflict(status models.ScheduledStatus) error {
	switch status {
	case models.ScheduledSent:
		return conflict("scheduled message already sent")
	case models.ScheduledCancelled:
		return conflict("scheduled message already cancelled")
	case models.ScheduledFailed:
		return conflict("scheduled message delivery failed")
	}
	return conflict(fmt.Sprintf("scheduled message is %s", status))
}

func (s *MessageService) ownScheduled(ctx context.Context, userID, id string) (*models.ScheduledMessage, error) {
	sm, err := s.messages.GetScheduled(ctx, id)
	if err != nil {
		return nil, notFound(err, "scheduled message")
	}
	if sm.SenderID != userID {
		return nil, newError(ErrForbidden, "you can only modify your own scheduled messages")
	}
	if sm.Status != models.ScheduledPending {
		return nil, scheduledConflict(sm.Status)
	}
	return sm, nil
}

// raced reloads a scheduled message whose pending guard failed and reports
// the state it moved to
func (s *MessageService) raced(ctx context.Context, id string, err error) error {
	if !errors.Is(err, repository.ErrStateChanged) {
		return err
	}
	current, getErr := s.messages.GetScheduled(ctx, id)
	if getErr != nil {
		return notFound(getErr, "scheduled message")
	}
	return scheduledConflict(current.Status)
}

// UpdateScheduled edits content and/or delivery time while pending
func (s *MessageService) UpdateScheduled(ctx context.Context, userID, id string, req UpdateScheduledRequest) (*models.ScheduledMessage, error) {
	if req.Content == nil && req.ScheduledFor == nil {
		return nil, invalid("content or scheduled_for is required")
	}
	sm, err := s.ownScheduled(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if req.Content != nil {
		if sm.Content, err = validContent(*req.Content); err != nil {
			return nil, err
		}
	}
	if req.ScheduledFor != nil {
		at, err := ParseScheduledFor(*req.ScheduledFor)
		if err != nil {
			return nil, err
		}
		if !at.After(now) {
			return nil, invalid("scheduled_for must be in the future")
		}
		sm.ScheduledFor = at
	}
	sm.UpdatedAt = now

	if err := s.messages.UpdateScheduled(ctx, sm); err != nil {
		return nil, s.raced(ctx, sm.ID, err)
	}
	return sm, nil
}

// CancelScheduled cancels a pending scheduled message
func (s *MessageService) CancelScheduled(ctx context.Context, userID, id string) (*models.ScheduledMessage, error) {
	sm, err := s.ownScheduled(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.messages.CancelScheduled(ctx, sm.ID, now); err != nil {
		return nil, s.raced(ctx, sm.ID, err)
	}
	sm.Status = models.ScheduledCancelled
	sm.CancelledAt = &now
	sm.UpdatedAt = now
	return sm, nil
}

// DeliveryReport counts the outcome of one delivery pass
type DeliveryReport struct {
	Sent    int
	Failed  int
	Skipped int
}

// DeliverDue converts due scheduled messages into messages. Rows changed by
// a concurrent edit or cancel are skipped; other failures mark the row failed.
func (s *MessageService) DeliverDue(ctx context.Context, limit int) (DeliveryReport, error) {
	var report DeliveryReport
	now := s.now().UTC()
	due, err := s.messages.DueScheduled(ctx, now, limit)
	if err != nil {
		return report, fmt.Errorf("failed to load due messages: %w", err)
	}

	for _, sm := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		switch err := s.deliverOne(ctx, sm, now); {
		case err == nil:
			report.Sent++
		case errors.Is(err, repository.ErrStateChanged):
			report.Skipped++
		default:
			report.Failed++
			log.Error().Err(err).Str("scheduled_id", sm.ID).Msg("Scheduled message delivery failed")
			if markErr := s.messages.MarkScheduledFailed(ctx, sm.ID, err.Error(), now); markErr != nil {
				log.Warn().Err(markErr).Str("scheduled_id", sm.ID).Msg("Failed to mark scheduled message failed")
			}
		}
	}
	return report, nil
}

func (s *MessageService) deliverOne(ctx context.Context, sm *models.ScheduledMessage, now time.Time) error {
	sender, err := s.users.GetByID(ctx, sm.SenderID)
	if err != nil {
		return fmt.Errorf("load sender: %w", err)
	}
	receiver, err := s.users.GetByID(ctx, sm.ReceiverID)
	if err != nil {
		return fmt.Errorf("load receiver: %w", err)
	}

	scheduledFrom := sm.ID
	m := &models.Message{
		ID:            uuid.New().String(),
		SenderID:      sender.ID,
		SenderName:    sender.Name,
		ReceiverID:    receiver.ID,
		ReceiverName:  receiver.Name,
		Content:       sm.Content,
		CreatedAt:     now,
		ScheduledFrom: &scheduledFrom,
		IsScheduled:   true,
	}
	if err := s.messages.DeliverScheduled(ctx, sm, m, now); err != nil {
		return err
	}

	s.delivered(ctx, sender, receiver, m)
	log.Info().Str("scheduled_id", sm.ID).Str("message_id", m.ID).Msg("Scheduled message delivered")
	return nil
}
