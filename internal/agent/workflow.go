package agent

import (
	"fmt"
	"time"

	"together-backend/internal/models"
)

// Action types the planner can queue
const (
	ActionCollectStyleSamples  = "collect_style_samples"
	ActionPromptFirstMessage   = "prompt_first_message"
	ActionDailyQuestionNudge   = "send_daily_question_reminder"
	ActionDraftPartnerReply    = "draft_partner_reply"
	ActionQuizFollowUp         = "send_quiz_followup"
	ActionSuggestCalendarEvent = "suggest_calendar_event"
)

const suggestedEventTime = "19:00"

// ScenarioFor returns the workflow an activity event belongs to. An explicit
// scenario wins over the one implied by the event type.
func ScenarioFor(e *models.ActivityEvent) string {
	if e.Scenario != "" {
		return e.Scenario
	}
	switch e.EventType {
	case models.ActivityPartnerConnected:
		return models.ScenarioOnboarding
	case models.ActivityQuizCompleted:
		return models.ScenarioQuizFollowUp
	case models.ActivityCalendarEventCreated, models.ActivityPartnerCalendarEventCreated:
		return models.ScenarioPlanning
	default:
		return models.ScenarioDailyCheckIn
	}
}

// PlanActions turns one activity event into pending actions for its user.
// The returned actions carry no ID yet.
func PlanActions(e *models.ActivityEvent, c *Context, now time.Time) []*models.AgentAction {
	workflow := ScenarioFor(e)
	snapshot := contextSnapshot(c)
	var actions []*models.AgentAction
	add := func(actionType string, conf float64, approval bool, rationale string, payload map[string]any) {
		trigger := e.ID
		actions = append(actions, &models.AgentAction{
			UserID:           e.UserID,
			Workflow:         workflow,
			TriggerEventID:   &trigger,
			ActionType:       actionType,
			Confidence:       conf,
			RequiresApproval: approval,
			Payload:          payload,
			ContextSnapshot:  snapshot,
			Rationale:        rationale,
			Status:           models.ActionPending,
			CreatedAt:        now.UTC(),
			UpdatedAt:        now.UTC(),
		})
	}

	switch workflow {
	case models.ScenarioOnboarding:
		if c.StyleSummary == "" {
			add(ActionCollectStyleSamples, 0.6, false,
				"No writing style on file yet.",
				map[string]any{"prompt": "Share a few recent messages so replies can sound like you."})
		}
		if len(c.RecentMessages) == 0 {
			add(ActionPromptFirstMessage, 0.5, true,
				"The couple has not exchanged messages yet.",
				map[string]any{"suggested_message": "Hi love, I just connected us on Together!"})
		}

	case models.ScenarioDailyCheckIn:
		if e.EventType == models.ActivityMessageReceived {
			last, _ := e.Payload["content"].(string)
			add(ActionDraftPartnerReply, 0.65, true,
				"Your partner sent a new message.",
				map[string]any{"last_message": truncate(last, lastExchangeLimit), "tone_hint": toneHint(c)})
		}
		if card := findCard(HeuristicSuggestions(c, now), SuggestionDailyQuestion); card != nil {
			add(ActionDailyQuestionNudge, 0.75, false,
				"Today's question is still unanswered.",
				map[string]any{"question": card.Payload["question"]})
		}

	case models.ScenarioQuizFollowUp:
		score := payloadInt(e.Payload, "score")
		add(ActionQuizFollowUp, 0.7, true,
			"A quiz session was just completed.",
			map[string]any{
				"session_id":        e.Payload["session_id"],
				"score":             score,
				"suggested_message": fmt.Sprintf("Celebrate your %d%% compatibility score together!", score),
			})

	case models.ScenarioPlanning:
		if findCard(HeuristicSuggestions(c, now), SuggestionCalendar) != nil {
			add(ActionSuggestCalendarEvent, 0.6, true,
				"No shared plans in the coming week.",
				map[string]any{
					"title": "Shared time together",
					"date":  nextSaturday(now).Format(time.DateOnly),
					"time":  suggestedEventTime,
				})
		}
	}
	return actions
}

func findCard(cards []models.Suggestion, cardType string) *models.Suggestion {
	for i := range cards {
		if cards[i].Type == cardType {
			return &cards[i]
		}
	}
	return nil
}

func toneHint(c *Context) string {
	if c.StyleSummary != "" {
		return c.StyleSummary
	}
	return "Keep it warm and genuine."
}

// nextSaturday returns the first Saturday strictly after now
func nextSaturday(now time.Time) time.Time {
	now = now.UTC()
	days := (int(time.Saturday) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return now.AddDate(0, 0, days)
}

// payloadInt reads a number that may have come back from JSON as float64
func payloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func contextSnapshot(c *Context) map[string]any {
	snapshot := map[string]any{
		"has_partner":     c.HasPartner,
		"partner_status":  string(c.PartnerStatus),
		"recent_messages": len(c.RecentMessages),
		"upcoming_events": len(c.UpcomingEvents),
	}
	if c.StyleSummary != "" {
		snapshot["style_summary"] = c.StyleSummary
	}
	if c.DailyQuestion != nil {
		snapshot["daily_question_answered"] = c.DailyQuestion.Answered
	}
	return snapshot
}
