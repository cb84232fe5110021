package repository

import (
	"context"
	"time"

	"together-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxStyleSamples caps the stored drafts per user
const maxStyleSamples = 300

// AgentRepository stores derived agent documents: style profiles, writing
// samples and cached suggestions
type AgentRepository struct {
	db *pgxpool.Pool
}

// NewAgentRepository creates a new agent repository
func NewAgentRepository(db *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{db: db}
}

// AddStyleSample stores a writing sample and trims the oldest beyond the cap
func (r *AgentRepository) AddStyleSample(ctx context.Context, userID, content string, now time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO style_samples (id, user_id, content, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), userID, content, now)
	if err != nil {
		return wrap(err, "add style sample")
	}

	_, err = r.db.Exec(ctx, `
		DELETE FROM style_samples WHERE id IN (
			SELECT id FROM style_samples WHERE user_id = $1
			ORDER BY created_at DESC OFFSET $2
		)`, userID, maxStyleSamples)
	return wrap(err, "trim style samples")
}

// RecentWriting returns the newest texts written by the user, mixing sent
// messages and stored samples
func (r *AgentRepository) RecentWriting(ctx context.Context, userID string, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT content FROM (
			(SELECT content, created_at FROM messages WHERE sender_id = $1 ORDER BY created_at DESC LIMIT $2)
			UNION ALL
			(SELECT content, created_at FROM style_samples WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2)
		) w
		WHERE content <> ''
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, wrap(err, "load writing samples")
	}
	defer rows.Close()

	texts := []string{}
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, wrap(err, "load writing samples")
		}
		texts = append(texts, content)
	}
	return texts, wrap(rows.Err(), "load writing samples")
}

// GetStyleProfile returns the stored profile of a user
func (r *AgentRepository) GetStyleProfile(ctx context.Context, userID string) (*models.StyleProfile, error) {
	var profile models.StyleProfile
	var updatedAt time.Time
	err := r.db.QueryRow(ctx,
		`SELECT data, updated_at FROM style_profiles WHERE user_id = $1`, userID).Scan(&profile, &updatedAt)
	if err != nil {
		return nil, wrap(err, "get style profile")
	}
	profile.UserID = userID
	profile.UpdatedAt = updatedAt.UTC()
	return &profile, nil
}

// SaveStyleProfile upserts a profile
func (r *AgentRepository) SaveStyleProfile(ctx context.Context, profile *models.StyleProfile) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO style_profiles (user_id, data, message_count, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET data = EXCLUDED.data, message_count = EXCLUDED.message_count, updated_at = EXCLUDED.updated_at`,
		profile.UserID, profile, profile.MessageCount, profile.UpdatedAt)
	return wrap(err, "save style profile")
}

// GetSuggestions returns the cached suggestion set of a user
func (r *AgentRepository) GetSuggestions(ctx context.Context, userID string) (*models.SuggestionSet, error) {
	set := models.SuggestionSet{UserID: userID}
	err := r.db.QueryRow(ctx,
		`SELECT suggestions, created_at FROM suggestion_cache WHERE user_id = $1`, userID,
	).Scan(&set.Suggestions, &set.CreatedAt)
	if err != nil {
		return nil, wrap(err, "get suggestions")
	}
	return &set, nil
}

// SaveSuggestions replaces the cached suggestion set of a user
func (r *AgentRepository) SaveSuggestions(ctx context.Context, set *models.SuggestionSet) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO suggestion_cache (user_id, suggestions, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET suggestions = EXCLUDED.suggestions, created_at = EXCLUDED.created_at`,
		set.UserID, set.Suggestions, set.CreatedAt)
	return wrap(err, "save suggestions")
}
