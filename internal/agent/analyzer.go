package agent

import (
	"context"
	"errors"
	"time"

	"together-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// Analyzer produces agent results from the model when it is usable and from
// the deterministic rules otherwise. Every result is tagged with its source.
type Analyzer struct {
	model Model
	now   func() time.Time
}

// NewAnalyzer creates an analyzer; a nil model means heuristics only
func NewAnalyzer(model Model) *Analyzer {
	return &Analyzer{model: model, now: time.Now}
}

// SetClock overrides the time source
func (a *Analyzer) SetClock(now func() time.Time) {
	a.now = now
}

// ModelAvailable reports whether a model call would be attempted
func (a *Analyzer) ModelAvailable() bool {
	if a.model == nil {
		return false
	}
	if c, ok := a.model.(*Cooldown); ok {
		return c.Available()
	}
	return true
}

func (a *Analyzer) generate(ctx context.Context, what string, prompt Prompt, dest any) bool {
	if !a.ModelAvailable() {
		return false
	}
	raw, err := a.model.Generate(ctx, prompt)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			log.Warn().Err(err).Str("task", what).Msg("Falling back to heuristic agent result")
		}
		return false
	}
	if err := decodeJSON(raw, dest); err != nil {
		log.Warn().Err(err).Str("task", what).Msg("Falling back to heuristic agent result")
		return false
	}
	return true
}

// AnalyzeTone analyzes a draft message
func (a *Analyzer) AnalyzeTone(ctx context.Context, text string, c *Context) *models.ToneAnalysis {
	now := a.now()
	var payload tonePayload
	if a.generate(ctx, "tone", tonePrompt(text, c), &payload) {
		if result, ok := payload.toAnalysis(text, now); ok {
			return result
		}
		log.Warn().Str("task", "tone").Msg("Model tone result was empty, using heuristic")
	}
	return HeuristicTone(text, now)
}

// Suggest returns model cards merged with the rule-based cards
func (a *Analyzer) Suggest(ctx context.Context, c *Context) []models.Suggestion {
	now := a.now()
	var primary []models.Suggestion
	var payload suggestionPayload
	if a.generate(ctx, "suggestions", suggestionPrompt(c), &payload) {
		primary = payload.toSuggestions(now)
	}
	return MergeSuggestions(primary, HeuristicSuggestions(c, now))
}

// StyleProfile builds the heuristic profile and lets the model rewrite its
// summary when available
func (a *Analyzer) StyleProfile(ctx context.Context, userID string, texts []string) *models.StyleProfile {
	profile := BuildStyleProfile(userID, texts, a.now())
	if profile.MessageCount == 0 {
		return profile
	}
	var payload stylePayload
	if a.generate(ctx, "style", stylePrompt(texts), &payload) {
		payload.apply(profile)
	}
	return profile
}
