package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"together-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CalendarService handles the shared calendar
type CalendarService struct {
	events   CalendarStore
	users    UserStore
	activity ActivityRecorder
	now      func() time.Time
}

// NewCalendarService creates a new calendar service
func NewCalendarService(events CalendarStore, users UserStore) *CalendarService {
	return &CalendarService{events: events, users: users, now: time.Now}
}

// SetClock overrides the time source
func (s *CalendarService) SetClock(now func() time.Time) {
	s.now = now
}

// SetActivity records new events as agent activity of the creator and
// their partner
func (s *CalendarService) SetActivity(rec ActivityRecorder) {
	s.activity = rec
}

// CreateEventRequest is a new calendar entry
type CreateEventRequest struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Description string `json:"description"`
}

// MonthRange returns [first of month, first of next month) in UTC
func MonthRange(year, month int) (time.Time, time.Time, error) {
	if year < 1 || year > 9999 {
		return time.Time{}, time.Time{}, invalid("year must be between 1 and 9999")
	}
	if month < 1 || month > 12 {
		return time.Time{}, time.Time{}, invalid("month must be between 1 and 12")
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0), nil
}

// visibleCreators returns the user and, when connected, their partner
func (s *CalendarService) visibleCreators(ctx context.Context, userID string) ([]string, error) {
	user, partner, err := connectedPair(ctx, s.users, userID)
	switch {
	case err == nil:
		return []string{user.ID, partner.ID}, nil
	case errors.Is(err, ErrNoPartner):
		return []string{user.ID}, nil
	}
	return nil, err
}

// List returns the events of the user and their connected partner. The
// month filter applies only when both year and month are given.
func (s *CalendarService) List(ctx context.Context, userID string, year, month *int) ([]*models.CalendarEvent, error) {
	var from, to *time.Time
	if year != nil && month != nil {
		start, end, err := MonthRange(*year, *month)
		if err != nil {
			return nil, err
		}
		from, to = &start, &end
	}

	creators, err := s.visibleCreators(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.events.List(ctx, creators, from, to)
}

// upcomingEvents returns the events of the creators starting in
// [now, now+window). Legacy events without a start time are kept.
func upcomingEvents(ctx context.Context, events CalendarStore, creators []string, now time.Time, window time.Duration) ([]*models.CalendarEvent, error) {
	to := now.Add(window)
	list, err := events.List(ctx, creators, &now, &to)
	if err != nil {
		return nil, err
	}
	upcoming := make([]*models.CalendarEvent, 0, len(list))
	for _, e := range list {
		if e.StartTime == nil || !e.StartTime.Before(now) {
			upcoming = append(upcoming, e)
		}
	}
	return upcoming, nil
}

// Create stores a new event with a start time derived from date and time
func (s *CalendarService) Create(ctx context.Context, userID string, req CreateEventRequest) (*models.CalendarEvent, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, invalid("title is required")
	}
	date := strings.TrimSpace(req.Date)
	clock := strings.TrimSpace(req.Time)
	if date == "" || clock == "" {
		return nil, invalid("date and time are required")
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, time.UTC)
	if err != nil {
		return nil, invalid("invalid date or time format")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user")
	}

	event := &models.CalendarEvent{
		ID:          uuid.New().String(),
		CreatorID:   user.ID,
		CreatorName: user.Name,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Date:        date,
		Time:        clock,
		StartTime:   &start,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	log.Info().Str("user_id", user.ID).Str("event_id", event.ID).Msg("Calendar event created")
	s.recordCreated(ctx, user, event)
	return event, nil
}

func (s *CalendarService) recordCreated(ctx context.Context, creator *models.User, event *models.CalendarEvent) {
	payload := map[string]any{
		"event_id":   event.ID,
		"title":      event.Title,
		"date":       event.Date,
		"time":       event.Time,
		"creator_id": creator.ID,
	}
	recordActivity(ctx, s.activity, models.ActivityEvent{
		UserID:     creator.ID,
		EventType:  models.ActivityCalendarEventCreated,
		Source:     "calendar",
		DedupeKey:  "calendar:" + event.ID + ":" + creator.ID,
		OccurredAt: event.CreatedAt,
		Payload:    payload,
	})
	if partnerID, ok := creator.ConnectedPartnerID(); ok {
		recordActivity(ctx, s.activity, models.ActivityEvent{
			UserID:     partnerID,
			EventType:  models.ActivityPartnerCalendarEventCreated,
			Source:     "calendar",
			DedupeKey:  "calendar:" + event.ID + ":" + partnerID,
			OccurredAt: event.CreatedAt,
			Payload:    payload,
		})
	}
}

// Delete removes an event; only its creator may do so
func (s *CalendarService) Delete(ctx context.Context, userID, eventID string) error {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return notFound(err, "event")
	}
	if event.CreatorID != userID {
		return newError(ErrForbidden, "only the creator can delete this event")
	}
	return notFound(s.events.Delete(ctx, eventID), "event")
}
