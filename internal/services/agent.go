package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"together-backend/internal/agent"
	"together-backend/internal/cache"
	"together-backend/internal/models"
	"together-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

const (
	contextMessageLimit = 10
	upcomingWindow      = 7 * 24 * time.Hour
)

// Cache stores JSON documents with a TTL. Misses and outages are not fatal.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// AgentTTLs controls how long derived agent results stay fresh
type AgentTTLs struct {
	Tone       time.Duration
	Suggestion time.Duration
	Style      time.Duration
}

// AgentService assembles user context, calls the analyzer and caches results
type AgentService struct {
	analyzer  *agent.Analyzer
	store     AgentStore
	users     UserStore
	messages  MessageStore
	events    CalendarStore
	questions DailyQuestionStore
	cache     Cache
	ttls      AgentTTLs
	now       func() time.Time
}

// NewAgentService creates a new agent service. cache may be nil.
func NewAgentService(
	analyzer *agent.Analyzer,
	store AgentStore,
	users UserStore,
	messages MessageStore,
	events CalendarStore,
	questions DailyQuestionStore,
	resultCache Cache,
	ttls AgentTTLs,
) *AgentService {
	return &AgentService{
		analyzer:  analyzer,
		store:     store,
		users:     users,
		messages:  messages,
		events:    events,
		questions: questions,
		cache:     resultCache,
		ttls:      ttls,
		now:       time.Now,
	}
}

// SetClock overrides the time source
func (s *AgentService) SetClock(now func() time.Time) {
	s.now = now
	s.analyzer.SetClock(now)
}

// AnalyzeTone returns coaching feedback on a draft message
func (s *AgentService) AnalyzeTone(ctx context.Context, userID, content string) (*models.ToneAnalysis, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return nil, invalid("content is required")
	}

	if err := s.store.AddStyleSample(ctx, userID, text, s.now().UTC()); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to record style sample")
	}
	profile, err := s.StyleProfile(ctx, userID, false)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load style profile")
		profile = nil
	}

	key := "tone:" + cache.Key(userID, text)
	if s.cache != nil {
		var cached models.ToneAnalysis
		found, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			log.Warn().Err(err).Msg("Tone cache read failed")
		}
		if found {
			cached.Cached = true
			cached.StyleProfile = profile
			return &cached, nil
		}
	}

	bundle, err := s.BuildContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := s.analyzer.AnalyzeTone(ctx, text, bundle)

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, result, s.ttls.Tone); err != nil {
			log.Warn().Err(err).Msg("Tone cache write failed")
		}
	}
	result.StyleProfile = profile
	return result, nil
}

// Suggestions returns coaching cards, reusing the stored set while fresh
func (s *AgentService) Suggestions(ctx context.Context, userID string, refresh bool) (*models.SuggestionSet, error) {
	now := s.now().UTC()
	if !refresh {
		set, err := s.store.GetSuggestions(ctx, userID)
		switch {
		case err == nil && now.Sub(set.CreatedAt) < s.ttls.Suggestion:
			set.Cached = true
			return set, nil
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to read cached suggestions")
		}
	}

	bundle, err := s.BuildContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := &models.SuggestionSet{
		UserID:      userID,
		Suggestions: s.analyzer.Suggest(ctx, bundle),
		CreatedAt:   now,
	}
	if err := s.store.SaveSuggestions(ctx, set); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to cache suggestions")
	}
	return set, nil
}

// StyleProfile returns the user's writing fingerprint, rebuilding it when
// stale or on request
func (s *AgentService) StyleProfile(ctx context.Context, userID string, refresh bool) (*models.StyleProfile, error) {
	now := s.now().UTC()
	if !refresh {
		profile, err := s.store.GetStyleProfile(ctx, userID)
		switch {
		case err == nil && now.Sub(profile.UpdatedAt) < s.ttls.Style:
			profile.Cached = true
			return profile, nil
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
	}

	texts, err := s.store.RecentWriting(ctx, userID, agent.StyleSampleLimit)
	if err != nil {
		return nil, err
	}
	profile := s.analyzer.StyleProfile(ctx, userID, texts)
	if profile.MessageCount > 0 {
		if err := s.store.SaveStyleProfile(ctx, profile); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to save style profile")
		}
	}
	return profile, nil
}

// BuildContext gathers partner state, style, today's question, recent
// messages and upcoming events for the user
func (s *AgentService) BuildContext(ctx context.Context, userID string) (*agent.Context, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user")
	}
	now := s.now().UTC()
	bundle := &agent.Context{UserName: user.Name, PartnerStatus: user.PartnerStatus}

	creators := []string{user.ID}
	if _, partner, err := connectedPair(ctx, s.users, userID); err == nil {
		bundle.HasPartner = true
		creators = append(creators, partner.ID)
	}

	if profile, err := s.store.GetStyleProfile(ctx, userID); err == nil {
		bundle.StyleSummary = profile.StyleSummary
	}
	if q, err := s.questions.Get(ctx, userID, now.Format(time.DateOnly)); err == nil {
		bundle.DailyQuestion = q
	}

	recent, err := s.messages.ListRecent(ctx, userID, contextMessageLimit)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load recent messages for agent context")
	}
	bundle.AddMessages(userID, recent)
	if len(recent) > 0 {
		bundle.LastMessage = recent[0]
	}

	upcoming, err := upcomingEvents(ctx, s.events, creators, now, upcomingWindow)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load events for agent context")
	}
	bundle.AddEvents(upcoming)
	return bundle, nil
}
