package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"together-backend/internal/agent"
	"together-backend/internal/models"
	"together-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

const (
	overviewBatchSize = 10
	overviewQueueSize = 20
	defaultQueueLimit = 10
	maxQueueLimit     = 50
	pendingScanLimit  = 100
)

// ContextAdvisor builds the agent context and coaching cards of a user
type ContextAdvisor interface {
	BuildContext(ctx context.Context, userID string) (*agent.Context, error)
	Suggestions(ctx context.Context, userID string, refresh bool) (*models.SuggestionSet, error)
}

// MessageSender sends an instant message on behalf of a user
type MessageSender interface {
	Send(ctx context.Context, userID string, req SendRequest) (*models.Message, error)
}

// EventCreator adds a calendar event on behalf of a user
type EventCreator interface {
	Create(ctx context.Context, userID string, req CreateEventRequest) (*models.CalendarEvent, error)
}

// ActionService turns recorded activity into queued agent actions and runs
// them when the user approves
type ActionService struct {
	activity ActivityStore
	actions  ActionStore
	advisor  ContextAdvisor
	messages MessageSender
	events   EventCreator
	now      func() time.Time
}

// NewActionService creates a new action service
func NewActionService(activity ActivityStore, actions ActionStore, advisor ContextAdvisor, messages MessageSender, events EventCreator) *ActionService {
	return &ActionService{
		activity: activity,
		actions:  actions,
		advisor:  advisor,
		messages: messages,
		events:   events,
		now:      time.Now,
	}
}

// SetClock overrides the time source
func (s *ActionService) SetClock(now func() time.Time) {
	s.now = now
}

// DecisionStats summarizes one decision pass
type DecisionStats struct {
	EventsProcessed int `json:"events_processed"`
	PlansGenerated  int `json:"plans_generated"`
}

// ProcessPending plans actions for up to batch unprocessed events, oldest
// first. An empty userID covers every user. Events are claimed before
// planning so concurrent passes never plan the same event twice, and an
// action type already pending for a user is not queued again.
func (s *ActionService) ProcessPending(ctx context.Context, userID string, batch int) (DecisionStats, error) {
	var stats DecisionStats
	if batch <= 0 {
		return stats, invalid("batch_size must be positive")
	}
	events, err := s.activity.ListActivity(ctx, models.ActivityFilter{
		UserID:      userID,
		OldestFirst: true,
		Limit:       batch,
	})
	if err != nil {
		return stats, fmt.Errorf("failed to load activity: %w", err)
	}
	if len(events) == 0 {
		return stats, nil
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	now := s.now().UTC()
	claimed, err := s.activity.MarkProcessed(ctx, ids, now)
	if err != nil {
		return stats, fmt.Errorf("failed to claim activity: %w", err)
	}
	mine := make(map[string]bool, len(claimed))
	for _, id := range claimed {
		mine[id] = true
	}

	contexts := map[string]*agent.Context{}
	pending := map[string]map[string]bool{}
	var planned []*models.AgentAction
	for _, e := range events {
		if !mine[e.ID] {
			continue
		}
		stats.EventsProcessed++

		c, ok := contexts[e.UserID]
		if !ok {
			c, err = s.advisor.BuildContext(ctx, e.UserID)
			if err != nil {
				log.Warn().Err(err).Str("user_id", e.UserID).Str("event_id", e.ID).Msg("Skipping activity without agent context")
				continue
			}
			contexts[e.UserID] = c
			pending[e.UserID] = s.pendingTypes(ctx, e.UserID)
		}

		for _, action := range agent.PlanActions(e, c, now) {
			if pending[e.UserID][action.ActionType] {
				continue
			}
			pending[e.UserID][action.ActionType] = true
			planned = append(planned, action)
		}
	}

	if err := s.actions.EnqueueActions(ctx, planned); err != nil {
		return stats, fmt.Errorf("failed to enqueue actions: %w", err)
	}
	stats.PlansGenerated = len(planned)
	if stats.EventsProcessed > 0 {
		log.Info().
			Int("events_processed", stats.EventsProcessed).
			Int("plans_generated", stats.PlansGenerated).
			Msg("Agent decision pass finished")
	}
	return stats, nil
}

func (s *ActionService) pendingTypes(ctx context.Context, userID string) map[string]bool {
	types := map[string]bool{}
	actions, err := s.actions.ListActions(ctx, userID, false, pendingScanLimit)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load pending agent actions")
		return types
	}
	for _, a := range actions {
		types[a.ActionType] = true
	}
	return types
}

// Overview is the agent dashboard of a user
type Overview struct {
	Suggestions     *models.SuggestionSet `json:"suggestions"`
	AutomationQueue []*models.AgentAction `json:"automation_queue"`
}

// Overview runs a small decision pass for the user, then returns their
// coaching cards and pending actions
func (s *ActionService) Overview(ctx context.Context, userID string) (*Overview, error) {
	if _, err := s.ProcessPending(ctx, userID, overviewBatchSize); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Agent decision pass failed")
	}
	suggestions, err := s.advisor.Suggestions(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	queue, err := s.actions.ListActions(ctx, userID, false, overviewQueueSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	return &Overview{Suggestions: suggestions, AutomationQueue: queue}, nil
}

// Queue is the pending work of a user, optionally with recent finished
// actions
type Queue struct {
	Pending      []*models.AgentAction `json:"pending"`
	Recent       []*models.AgentAction `json:"recent"`
	PendingCount int                   `json:"pending_count"`
}

// Queue lists pending actions. Limit defaults to 10 and is capped at 50.
func (s *ActionService) Queue(ctx context.Context, userID string, limit int, includeDone bool) (*Queue, error) {
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	if limit > maxQueueLimit {
		limit = maxQueueLimit
	}
	pending, err := s.actions.ListActions(ctx, userID, false, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	q := &Queue{Pending: pending, PendingCount: len(pending)}
	if includeDone {
		all, err := s.actions.ListActions(ctx, userID, true, limit+len(pending))
		if err != nil {
			return nil, fmt.Errorf("failed to list actions: %w", err)
		}
		q.Recent = []*models.AgentAction{}
		for _, a := range all {
			if a.Status != models.ActionPending && len(q.Recent) < limit {
				q.Recent = append(q.Recent, a)
			}
		}
	}
	return q, nil
}

// ExecuteRequest carries user overrides for an action payload, such as an
// edited message or a different date
type ExecuteRequest struct {
	Input map[string]string `json:"input"`
}

// ExecutionResult is the outcome of running an action
type ExecutionResult struct {
	Action  *models.AgentAction   `json:"action"`
	Message *models.Message       `json:"message,omitempty"`
	Event   *models.CalendarEvent `json:"event,omitempty"`
}

// execution is a validated action ready to run
type execution struct {
	message string
	event   *CreateEventRequest
}

func (s *ActionService) ownedAction(ctx context.Context, userID, actionID string) (*models.AgentAction, error) {
	action, err := s.actions.GetAction(ctx, actionID)
	if err != nil {
		return nil, notFound(err, "action")
	}
	if action.UserID != userID {
		return nil, newError(ErrNotFound, "action not found")
	}
	return action, nil
}

// pick returns the user input for key, falling back to the planned payload
func pick(input map[string]string, payload map[string]any, key string) string {
	if v := strings.TrimSpace(input[key]); v != "" {
		return v
	}
	v, _ := payload[key].(string)
	return strings.TrimSpace(v)
}

func plan(action *models.AgentAction, input map[string]string) (*execution, error) {
	switch action.ActionType {
	case agent.ActionDraftPartnerReply, agent.ActionPromptFirstMessage, agent.ActionQuizFollowUp:
		message := pick(input, action.Payload, "message")
		if message == "" {
			message = pick(input, action.Payload, "suggested_message")
		}
		if message == "" {
			return nil, invalid("message is required")
		}
		return &execution{message: message}, nil
	case agent.ActionSuggestCalendarEvent:
		req := &CreateEventRequest{
			Title:       pick(input, action.Payload, "title"),
			Date:        pick(input, action.Payload, "date"),
			Time:        pick(input, action.Payload, "time"),
			Description: pick(input, action.Payload, "description"),
		}
		if req.Date == "" || req.Time == "" {
			return nil, invalid("date and time are required")
		}
		return &execution{event: req}, nil
	case agent.ActionCollectStyleSamples, agent.ActionDailyQuestionNudge:
		return &execution{}, nil
	}
	return nil, invalid("unsupported action type: %s", action.ActionType)
}

// Execute runs a pending action for its owner. Message actions send to the
// partner, calendar actions create the event and reminder actions are
// acknowledged. A failed run leaves the action failed with the error.
func (s *ActionService) Execute(ctx context.Context, userID, actionID string, req ExecuteRequest) (*ExecutionResult, error) {
	action, err := s.ownedAction(ctx, userID, actionID)
	if err != nil {
		return nil, err
	}
	if action.Status != models.ActionPending {
		return nil, conflict("action already processed")
	}
	run, err := plan(action, req.Input)
	if err != nil {
		return nil, err
	}

	if err := s.actions.ClaimAction(ctx, action.ID, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrStateChanged) {
			return nil, conflict("action already processed")
		}
		return nil, fmt.Errorf("failed to claim action: %w", err)
	}
	action.Status = models.ActionExecuting

	result := &ExecutionResult{Action: action}
	var runErr error
	switch {
	case run.message != "":
		result.Message, runErr = s.messages.Send(ctx, userID, SendRequest{Content: run.message})
		if runErr == nil {
			action.Result = map[string]any{"message_id": result.Message.ID}
		}
	case run.event != nil:
		result.Event, runErr = s.events.Create(ctx, userID, *run.event)
		if runErr == nil {
			action.Result = map[string]any{"event_id": result.Event.ID}
		}
	}

	now := s.now().UTC()
	action.UpdatedAt = now
	action.CompletedAt = &now
	switch {
	case runErr != nil:
		action.Status = models.ActionFailed
		action.Error = runErr.Error()
	case action.Result == nil:
		action.Status = models.ActionAcknowledged
		action.Result = map[string]any{"acknowledged": true}
	default:
		action.Status = models.ActionExecuted
	}

	if err := s.actions.FinishAction(ctx, action, models.ActionExecuting); err != nil {
		return nil, fmt.Errorf("failed to finish action: %w", err)
	}
	log.Info().
		Str("user_id", userID).
		Str("action_id", action.ID).
		Str("action_type", action.ActionType).
		Str("status", string(action.Status)).
		Msg("Agent action finished")

	if runErr != nil {
		return nil, runErr
	}
	return result, nil
}

// FeedbackRequest rates an action and optionally closes it
type FeedbackRequest struct {
	Rating  *int                `json:"rating"`
	Comment string              `json:"comment"`
	Status  models.ActionStatus `json:"status"`
}

// Feedback stores the user's reaction to an action. A pending action moves
// to the given status, acknowledged unless dismissed is asked for.
func (s *ActionService) Feedback(ctx context.Context, userID, actionID string, req FeedbackRequest) (*models.AgentAction, error) {
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		return nil, invalid("rating must be between 1 and 5")
	}
	status := req.Status
	if status == "" {
		status = models.ActionAcknowledged
	}
	if status != models.ActionAcknowledged && status != models.ActionDismissed {
		return nil, invalid("status must be acknowledged or dismissed")
	}

	action, err := s.ownedAction(ctx, userID, actionID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	feedback := &models.ActionFeedback{
		ActionID:  action.ID,
		UserID:    userID,
		Rating:    req.Rating,
		Comment:   strings.TrimSpace(req.Comment),
		Status:    status,
		CreatedAt: now,
	}
	if err := s.actions.RecordFeedback(ctx, feedback); err != nil {
		return nil, fmt.Errorf("failed to record feedback: %w", err)
	}

	if action.Status == models.ActionPending {
		closed := *action
		closed.Status = status
		closed.UpdatedAt = now
		closed.CompletedAt = &now
		err := s.actions.FinishAction(ctx, &closed, models.ActionPending)
		switch {
		case err == nil:
			action = &closed
		case !errors.Is(err, repository.ErrStateChanged):
			return nil, fmt.Errorf("failed to close action: %w", err)
		}
	}
	return action, nil
}
