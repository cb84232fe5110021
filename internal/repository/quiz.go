package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"together-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const quizColumns = `id, user1_id, user2_id, questions, status, matches, total, score,
	created_at, updated_at, completed_at`

// querier is satisfied by both the pool and a transaction
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuizRepository handles database operations for quiz sessions and answers
type QuizRepository struct {
	db *pgxpool.Pool
}

// NewQuizRepository creates a new quiz repository
func NewQuizRepository(db *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{db: db}
}

func scanQuizSession(row pgx.Row) (*models.QuizSession, error) {
	var s models.QuizSession
	var matches, total, score *int
	var completedAt *time.Time
	err := row.Scan(
		&s.ID, &s.User1ID, &s.User2ID, &s.Questions, &s.Status,
		&matches, &total, &score, &s.CreatedAt, &s.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if s.Status == models.QuizCompleted && matches != nil && total != nil && score != nil && completedAt != nil {
		s.Compatibility = &models.QuizCompatibility{
			Matches:     *matches,
			Total:       *total,
			Score:       *score,
			CompletedAt: completedAt.UTC(),
		}
	}
	s.Responses = make(map[string]map[int]string)
	return &s, nil
}

func loadAnswers(ctx context.Context, q querier, s *models.QuizSession) error {
	rows, err := q.Query(ctx,
		`SELECT user_id, question_id, answer FROM quiz_answers WHERE session_id = $1`, s.ID)
	if err != nil {
		return wrap(err, "load answers")
	}
	defer rows.Close()

	for rows.Next() {
		var userID, answer string
		var questionID int
		if err := rows.Scan(&userID, &questionID, &answer); err != nil {
			return wrap(err, "load answers")
		}
		s.SetAnswer(userID, questionID, answer)
	}
	return wrap(rows.Err(), "load answers")
}

func (r *QuizRepository) getOne(ctx context.Context, what, where string, args ...any) (*models.QuizSession, error) {
	s, err := scanQuizSession(r.db.QueryRow(ctx, `SELECT `+quizColumns+` FROM quiz_sessions `+where, args...))
	if err != nil {
		return nil, wrap(err, what)
	}
	if err := loadAnswers(ctx, r.db, s); err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a session with all answers
func (r *QuizRepository) GetByID(ctx context.Context, id string) (*models.QuizSession, error) {
	return r.getOne(ctx, "get quiz session", `WHERE id = $1`, id)
}

// ActiveForPair returns the in-progress session of a sorted user pair
func (r *QuizRepository) ActiveForPair(ctx context.Context, user1ID, user2ID string) (*models.QuizSession, error) {
	return r.getOne(ctx, "get active quiz session",
		`WHERE user1_id = $1 AND user2_id = $2 AND status = 'in_progress'`, user1ID, user2ID)
}

// ActiveForUser returns the newest in-progress session the user takes part in
func (r *QuizRepository) ActiveForUser(ctx context.Context, userID string) (*models.QuizSession, error) {
	return r.getOne(ctx, "get active quiz session",
		`WHERE (user1_id = $1 OR user2_id = $1) AND status = 'in_progress'
		 ORDER BY created_at DESC LIMIT 1`, userID)
}

// CreateIfNoActive inserts the session unless the pair already has one in
// progress, in which case the existing session is returned with created=false
func (r *QuizRepository) CreateIfNoActive(ctx context.Context, s *models.QuizSession) (*models.QuizSession, bool, error) {
	query := `
		INSERT INTO quiz_sessions (id, user1_id, user2_id, questions, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user1_id, user2_id) WHERE status = 'in_progress' DO NOTHING
		RETURNING id
	`
	var id string
	err := r.db.QueryRow(ctx, query,
		s.ID, s.User1ID, s.User2ID, s.Questions, s.Status, s.CreatedAt, s.UpdatedAt,
	).Scan(&id)
	if err == nil {
		if s.Responses == nil {
			s.Responses = make(map[string]map[int]string)
		}
		return s, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, wrap(err, "create quiz session")
	}

	existing, err := r.ActiveForPair(ctx, s.User1ID, s.User2ID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// ListForUser returns every session of the user, newest first, without answers
func (r *QuizRepository) ListForUser(ctx context.Context, userID string) ([]*models.QuizSession, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+quizColumns+` FROM quiz_sessions
		 WHERE user1_id = $1 OR user2_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, wrap(err, "list quiz sessions")
	}
	defer rows.Close()

	sessions := []*models.QuizSession{}
	for rows.Next() {
		s, err := scanQuizSession(rows)
		if err != nil {
			return nil, wrap(err, "list quiz sessions")
		}
		sessions = append(sessions, s)
	}
	return sessions, wrap(rows.Err(), "list quiz sessions")
}

// RecordAnswer upserts one answer while holding the session row lock. When
// the answer completes the session the compatibility summary is stamped in
// the same transaction.
func (r *QuizRepository) RecordAnswer(ctx context.Context, sessionID, userID string, questionID int, answer string, now time.Time) (*models.QuizSession, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, wrap(err, "begin answer")
	}
	defer tx.Rollback(ctx)

	s, err := scanQuizSession(tx.QueryRow(ctx,
		`SELECT `+quizColumns+` FROM quiz_sessions WHERE id = $1 FOR UPDATE`, sessionID))
	if err != nil {
		return nil, wrap(err, "lock quiz session")
	}
	if s.Status != models.QuizInProgress {
		return nil, fmt.Errorf("record answer: %w", ErrStateChanged)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO quiz_answers (session_id, user_id, question_id, answer, answered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, user_id, question_id)
		DO UPDATE SET answer = EXCLUDED.answer, answered_at = EXCLUDED.answered_at`,
		sessionID, userID, questionID, answer, now)
	if err != nil {
		return nil, wrap(err, "save answer")
	}

	if err := loadAnswers(ctx, tx, s); err != nil {
		return nil, err
	}

	if s.Finalize(now) {
		c := s.Compatibility
		_, err = tx.Exec(ctx, `
			UPDATE quiz_sessions
			SET status = $1, matches = $2, total = $3, score = $4, completed_at = $5, updated_at = $5
			WHERE id = $6`,
			s.Status, c.Matches, c.Total, c.Score, c.CompletedAt, s.ID)
	} else {
		s.UpdatedAt = now
		_, err = tx.Exec(ctx, `UPDATE quiz_sessions SET updated_at = $1 WHERE id = $2`, now, s.ID)
	}
	if err != nil {
		return nil, wrap(err, "update quiz session")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrap(err, "commit answer")
	}
	return s, nil
}
