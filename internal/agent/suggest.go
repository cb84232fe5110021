package agent

import (
	"fmt"
	"strings"
	"time"

	"together-backend/internal/models"

	"github.com/google/uuid"
)

// Suggestion types produced by the fallback rules
const (
	SuggestionMessageDraft  = "message_draft"
	SuggestionDailyQuestion = "daily_question"
	SuggestionCalendar      = "calendar"
	SuggestionCustom        = "custom"
)

const connectionPingAfter = 18 * time.Hour

func confidence(v float64) *float64 {
	return &v
}

// HeuristicSuggestions derives coaching cards from the context alone
func HeuristicSuggestions(c *Context, now time.Time) []models.Suggestion {
	now = now.UTC()
	cards := []models.Suggestion{}

	if c.LastMessage == nil || now.Sub(c.LastMessage.CreatedAt) > connectionPingAfter {
		toneHint := c.StyleSummary
		if toneHint == "" {
			toneHint = "Keep it warm and genuine."
		}
		secondary := "No recent messages detected."
		if c.LastMessage != nil && c.LastMessage.Content != "" {
			snippet := []rune(c.LastMessage.Content)
			if len(snippet) > lastExchangeLimit {
				snippet = snippet[:lastExchangeLimit]
			}
			secondary = fmt.Sprintf(`Last exchange: "%s"`, string(snippet))
		}
		cards = append(cards, models.Suggestion{
			ID:          uuid.New().String(),
			Type:        SuggestionMessageDraft,
			Title:       "Send a quick note",
			Summary:     "Start a conversation to keep the connection strong.",
			Confidence:  confidence(0.7),
			GeneratedAt: now,
			Payload:     map[string]string{"tone_hint": toneHint, "secondary_text": secondary},
			Source:      models.SourceHeuristic,
		})
	}

	if q := c.DailyQuestion; q != nil && !q.Answered {
		cards = append(cards, models.Suggestion{
			ID:          uuid.New().String(),
			Type:        SuggestionDailyQuestion,
			Title:       "Answer today's reflection",
			Summary:     q.Question,
			Confidence:  confidence(0.6),
			GeneratedAt: now,
			Payload:     map[string]string{"question": q.Question},
			Source:      models.SourceHeuristic,
		})
	}

	if len(c.UpcomingEvents) == 0 {
		cards = append(cards, models.Suggestion{
			ID:          uuid.New().String(),
			Type:        SuggestionCalendar,
			Title:       "Plan something together",
			Summary:     "No shared plans in the next week. Consider scheduling a small event.",
			Confidence:  confidence(0.4),
			GeneratedAt: now,
			Payload:     map[string]string{"suggested_window": "next_7_days"},
			Source:      models.SourceHeuristic,
		})
	}
	return cards
}

// MergeSuggestions keeps every primary card and adds fallback cards whose
// type is not already present
func MergeSuggestions(primary, fallback []models.Suggestion) []models.Suggestion {
	seen := make(map[string]bool, len(primary))
	merged := make([]models.Suggestion, 0, len(primary)+len(fallback))
	for _, card := range primary {
		seen[card.Type] = true
		merged = append(merged, card)
	}
	for _, card := range fallback {
		if !seen[card.Type] {
			merged = append(merged, card)
		}
	}
	return merged
}

type suggestionCard struct {
	Type             string   `json:"type"`
	Title            string   `json:"title"`
	Summary          string   `json:"summary"`
	Confidence       *float64 `json:"confidence"`
	CallToAction     string   `json:"call_to_action"`
	SuggestedMessage string   `json:"suggested_message"`
}

// suggestionPayload is the structured answer requested from the model
type suggestionPayload struct {
	Suggestions []suggestionCard `json:"suggestions"`
}

func (p suggestionPayload) toSuggestions(now time.Time) []models.Suggestion {
	cards := []models.Suggestion{}
	for _, card := range p.Suggestions {
		summary := strings.TrimSpace(card.Summary)
		if summary == "" {
			continue
		}
		s := models.Suggestion{
			ID:          uuid.New().String(),
			Type:        strings.TrimSpace(card.Type),
			Title:       strings.TrimSpace(card.Title),
			Summary:     summary,
			GeneratedAt: now.UTC(),
			Payload:     map[string]string{},
			Source:      models.SourceModel,
		}
		if s.Type == "" {
			s.Type = SuggestionCustom
		}
		if s.Title == "" {
			s.Title = "Agent insight"
		}
		if card.Confidence != nil {
			s.Confidence = confidence(clamp01(*card.Confidence))
		}
		if v := strings.TrimSpace(card.CallToAction); v != "" {
			s.Payload["call_to_action"] = v
		}
		if v := strings.TrimSpace(card.SuggestedMessage); v != "" {
			s.Payload["suggested_message"] = v
		}
		cards = append(cards, s)
		if len(cards) == 5 {
			break
		}
	}
	return cards
}
