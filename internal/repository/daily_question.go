package repository

import (
	"context"
	"fmt"
	"time"

	"together-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dailyColumns = `user_id, date, question, answer, answered, created_at, answered_at`

// DailyQuestionRepository handles database operations for daily prompts
type DailyQuestionRepository struct {
	db *pgxpool.Pool
}

// NewDailyQuestionRepository creates a new daily question repository
func NewDailyQuestionRepository(db *pgxpool.Pool) *DailyQuestionRepository {
	return &DailyQuestionRepository{db: db}
}

func scanDaily(row pgx.Row) (*models.DailyQuestion, error) {
	var q models.DailyQuestion
	err := row.Scan(&q.UserID, &q.Date, &q.Question, &q.Answer, &q.Answered, &q.CreatedAt, &q.AnsweredAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// GetOrCreate returns the stored prompt for the user and day, inserting q
// when none exists yet
func (r *DailyQuestionRepository) GetOrCreate(ctx context.Context, q *models.DailyQuestion) (*models.DailyQuestion, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO daily_questions (user_id, date, question, answered, created_at)
		VALUES ($1, $2, $3, FALSE, $4)
		ON CONFLICT (user_id, date) DO NOTHING`,
		q.UserID, q.Date, q.Question, q.CreatedAt)
	if err != nil {
		return nil, wrap(err, "create daily question")
	}
	return r.Get(ctx, q.UserID, q.Date)
}

// Get retrieves the prompt of a user for a day
func (r *DailyQuestionRepository) Get(ctx context.Context, userID, date string) (*models.DailyQuestion, error) {
	q, err := scanDaily(r.db.QueryRow(ctx,
		`SELECT `+dailyColumns+` FROM daily_questions WHERE user_id = $1 AND date = $2`, userID, date))
	if err != nil {
		return nil, wrap(err, "get daily question")
	}
	return q, nil
}

// SaveAnswer records the user's answer for a day
func (r *DailyQuestionRepository) SaveAnswer(ctx context.Context, userID, date, answer string, now time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE daily_questions SET answer = $1, answered = TRUE, answered_at = $2
		WHERE user_id = $3 AND date = $4`, answer, now, userID, date)
	if err != nil {
		return wrap(err, "save daily answer")
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("save daily answer: %w", ErrNotFound)
	}
	return nil
}

// ListAnswered returns the user's answered prompts, newest first
func (r *DailyQuestionRepository) ListAnswered(ctx context.Context, userID string, limit int) ([]*models.DailyQuestion, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+dailyColumns+` FROM daily_questions
		 WHERE user_id = $1 AND answered ORDER BY date DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, wrap(err, "list daily answers")
	}
	defer rows.Close()

	list := []*models.DailyQuestion{}
	for rows.Next() {
		q, err := scanDaily(rows)
		if err != nil {
			return nil, wrap(err, "list daily answers")
		}
		list = append(list, q)
	}
	return list, wrap(rows.Err(), "list daily answers")
}
