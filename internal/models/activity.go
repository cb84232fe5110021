package models

import "time"

// Activity event types recorded by the services
const (
	ActivityMessageReceived             = "message_received"
	ActivityQuizCompleted               = "quiz_completed"
	ActivityCalendarEventCreated        = "calendar_event_created"
	ActivityPartnerCalendarEventCreated = "partner_calendar_event_created"
	ActivityPartnerConnected            = "partner_connected"
)

// Workflows the agent runs over activity
const (
	ScenarioOnboarding   = "onboarding"
	ScenarioDailyCheckIn = "daily_check_in"
	ScenarioQuizFollowUp = "quiz_follow_up"
	ScenarioPlanning     = "anniversary_planning"
)

// ActivityEvent is something that happened to a user which the agent may
// act on. DedupeKey makes recording idempotent.
type ActivityEvent struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	EventType   string         `json:"event_type"`
	Source      string         `json:"source"`
	Scenario    string         `json:"scenario"`
	Payload     map[string]any `json:"payload"`
	DedupeKey   string         `json:"-"`
	OccurredAt  time.Time      `json:"occurred_at"`
	RecordedAt  time.Time      `json:"recorded_at"`
	Processed   bool           `json:"processed"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
}

// ActivityFilter selects activity events. An empty UserID matches every
// user and a zero Limit means no limit.
type ActivityFilter struct {
	UserID           string
	Scenario         string
	Since            *time.Time
	IncludeProcessed bool
	OldestFirst      bool
	Limit            int
}

// ActionStatus is the lifecycle state of a queued agent action
type ActionStatus string

const (
	ActionPending      ActionStatus = "pending"
	ActionExecuting    ActionStatus = "executing"
	ActionExecuted     ActionStatus = "executed"
	ActionAcknowledged ActionStatus = "acknowledged"
	ActionDismissed    ActionStatus = "dismissed"
	ActionFailed       ActionStatus = "failed"
)

// AgentAction is a planned step the agent proposes to a user. It starts
// pending and ends executed, acknowledged, dismissed or failed.
type AgentAction struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	Workflow         string         `json:"workflow"`
	TriggerEventID   *string        `json:"trigger_event_id"`
	ActionType       string         `json:"action_type"`
	Confidence       float64        `json:"confidence"`
	RequiresApproval bool           `json:"requires_approval"`
	Payload          map[string]any `json:"payload"`
	ContextSnapshot  map[string]any `json:"context_snapshot"`
	Rationale        string         `json:"rationale,omitempty"`
	Status           ActionStatus   `json:"status"`
	Result           map[string]any `json:"result,omitempty"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// ActionFeedback is a user's rating or comment on an agent action
type ActionFeedback struct {
	ID        string       `json:"id"`
	ActionID  string       `json:"action_id"`
	UserID    string       `json:"user_id"`
	Rating    *int         `json:"rating,omitempty"`
	Comment   string       `json:"comment,omitempty"`
	Status    ActionStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}
