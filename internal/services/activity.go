package services

import (
	"context"
	"fmt"
	"time"

	"together-backend/internal/agent"
	"together-backend/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 200
)

// ActivityService records what happens to users so the agent can react
// to it later
type ActivityService struct {
	store ActivityStore
	now   func() time.Time
}

// NewActivityService creates a new activity service
func NewActivityService(store ActivityStore) *ActivityService {
	return &ActivityService{store: store, now: time.Now}
}

// SetClock overrides the time source
func (s *ActivityService) SetClock(now func() time.Time) {
	s.now = now
}

// Record stores an event. Failures are logged and never reach the caller.
func (s *ActivityService) Record(ctx context.Context, e models.ActivityEvent) {
	now := s.now().UTC()
	e.RecordedAt = now
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}
	e.OccurredAt = e.OccurredAt.UTC()
	if e.Scenario == "" {
		e.Scenario = agent.ScenarioFor(&e)
	}

	stored, created, err := s.store.RecordActivity(ctx, &e)
	if err != nil {
		log.Warn().Err(err).
			Str("user_id", e.UserID).
			Str("event_type", e.EventType).
			Msg("Failed to record agent activity")
		return
	}
	if created {
		log.Debug().
			Str("user_id", stored.UserID).
			Str("event_id", stored.ID).
			Str("event_type", stored.EventType).
			Msg("Agent activity recorded")
	}
}

// FeedRequest selects a page of the activity feed
type FeedRequest struct {
	UserID           string
	Scenario         string
	Since            *time.Time
	IncludeProcessed bool
	Limit            int
}

// Feed lists activity newest first. Limit defaults to 50 and is capped
// at 200.
func (s *ActivityService) Feed(ctx context.Context, req FeedRequest) ([]*models.ActivityEvent, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	events, err := s.store.ListActivity(ctx, models.ActivityFilter{
		UserID:           req.UserID,
		Scenario:         req.Scenario,
		Since:            req.Since,
		IncludeProcessed: req.IncludeProcessed,
		Limit:            limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return events, nil
}

// Acknowledge marks events processed on behalf of an external consumer and
// returns how many were newly marked
func (s *ActivityService) Acknowledge(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, invalid("ids are required")
	}
	claimed, err := s.store.MarkProcessed(ctx, ids, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to acknowledge activity: %w", err)
	}
	return len(claimed), nil
}

// Prune deletes processed events older than retention
func (s *ActivityService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	removed, err := s.store.PruneActivity(ctx, s.now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to prune activity: %w", err)
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Msg("Pruned processed agent activity")
	}
	return removed, nil
}
