package repository

import (
	"context"
	"fmt"
	"time"

	"together-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventSelect = `
	SELECT e.id, e.creator_id, u.name, e.title, e.description, e.date, e.time, e.start_time, e.created_at
	FROM events e
	JOIN users u ON u.id = e.creator_id
`

const eventOrder = ` ORDER BY e.start_time ASC NULLS LAST, e.date ASC, e.time ASC`

// CalendarRepository handles database operations for shared calendar events
type CalendarRepository struct {
	db *pgxpool.Pool
}

// NewCalendarRepository creates a new calendar repository
func NewCalendarRepository(db *pgxpool.Pool) *CalendarRepository {
	return &CalendarRepository{db: db}
}

func scanEvent(row pgx.Row) (*models.CalendarEvent, error) {
	var e models.CalendarEvent
	err := row.Scan(&e.ID, &e.CreatorID, &e.CreatorName, &e.Title, &e.Description,
		&e.Date, &e.Time, &e.StartTime, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if e.StartTime != nil {
		utc := e.StartTime.UTC()
		e.StartTime = &utc
	}
	return &e, nil
}

// Create stores a new event
func (r *CalendarRepository) Create(ctx context.Context, e *models.CalendarEvent) error {
	query := `
		INSERT INTO events (id, creator_id, title, description, date, time, start_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query, e.ID, e.CreatorID, e.Title, e.Description, e.Date, e.Time, e.StartTime, e.CreatedAt)
	return wrap(err, "create event")
}

// GetByID retrieves an event by ID
func (r *CalendarRepository) GetByID(ctx context.Context, id string) (*models.CalendarEvent, error) {
	e, err := scanEvent(r.db.QueryRow(ctx, eventSelect+` WHERE e.id = $1`, id))
	if err != nil {
		return nil, wrap(err, "get event")
	}
	return e, nil
}

// Delete removes an event
func (r *CalendarRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return wrap(err, "delete event")
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("delete event: %w", ErrNotFound)
	}
	return nil
}

// List returns events created by any of the users. When from and to are set
// only events inside [from, to) are returned, matched either on start_time or
// on the legacy date string.
func (r *CalendarRepository) List(ctx context.Context, creatorIDs []string, from, to *time.Time) ([]*models.CalendarEvent, error) {
	query := eventSelect + ` WHERE e.creator_id = ANY($1)`
	args := []any{creatorIDs}
	if from != nil && to != nil {
		query += ` AND ((e.start_time >= $2 AND e.start_time < $3) OR (e.date >= $4 AND e.date < $5))`
		args = append(args, *from, *to, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	rows, err := r.db.Query(ctx, query+eventOrder, args...)
	if err != nil {
		return nil, wrap(err, "list events")
	}
	defer rows.Close()

	events := []*models.CalendarEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, wrap(err, "list events")
		}
		events = append(events, e)
	}
	return events, wrap(rows.Err(), "list events")
}
