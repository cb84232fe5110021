package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"together-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const activityColumns = `id, user_id, event_type, source, scenario, payload, COALESCE(dedupe_key, ''),
	occurred_at, recorded_at, processed, processed_at`

const actionColumns = `id, user_id, workflow, trigger_event_id, action_type, confidence, requires_approval,
	payload, context_snapshot, rationale, status, result, error, created_at, updated_at, completed_at`

// ActivityRepository stores the agent's activity feed and its action queue
type ActivityRepository struct {
	db *pgxpool.Pool
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func scanActivity(row pgx.Row) (*models.ActivityEvent, error) {
	var e models.ActivityEvent
	err := row.Scan(
		&e.ID, &e.UserID, &e.EventType, &e.Source, &e.Scenario, &e.Payload, &e.DedupeKey,
		&e.OccurredAt, &e.RecordedAt, &e.Processed, &e.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanAction(row pgx.Row) (*models.AgentAction, error) {
	var a models.AgentAction
	err := row.Scan(
		&a.ID, &a.UserID, &a.Workflow, &a.TriggerEventID, &a.ActionType, &a.Confidence, &a.RequiresApproval,
		&a.Payload, &a.ContextSnapshot, &a.Rationale, &a.Status, &a.Result, &a.Error,
		&a.CreatedAt, &a.UpdatedAt, &a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// RecordActivity inserts an event. When the dedupe key was seen before the
// stored event is returned with created false.
func (r *ActivityRepository) RecordActivity(ctx context.Context, e *models.ActivityEvent) (*models.ActivityEvent, bool, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.Payload = orEmpty(e.Payload)

	stored, err := scanActivity(r.db.QueryRow(ctx, `
		INSERT INTO agent_activity (id, user_id, event_type, source, scenario, payload, dedupe_key, occurred_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (dedupe_key) DO NOTHING
		RETURNING `+activityColumns,
		e.ID, e.UserID, e.EventType, e.Source, e.Scenario, e.Payload, nullable(e.DedupeKey), e.OccurredAt, e.RecordedAt))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, wrap(err, "record activity")
	}

	existing, err := scanActivity(r.db.QueryRow(ctx,
		`SELECT `+activityColumns+` FROM agent_activity WHERE dedupe_key = $1`, e.DedupeKey))
	if err != nil {
		return nil, false, wrap(err, "load deduplicated activity")
	}
	return existing, false, nil
}

// ListActivity returns events matching the filter, newest first unless
// OldestFirst is set
func (r *ActivityRepository) ListActivity(ctx context.Context, f models.ActivityFilter) ([]*models.ActivityEvent, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.UserID != "" {
		where = append(where, "user_id = "+arg(f.UserID))
	}
	if f.Scenario != "" {
		where = append(where, "scenario = "+arg(f.Scenario))
	}
	if f.Since != nil {
		where = append(where, "occurred_at >= "+arg(*f.Since))
	}
	if !f.IncludeProcessed {
		where = append(where, "NOT processed")
	}

	query := `SELECT ` + activityColumns + ` FROM agent_activity`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.OldestFirst {
		query += " ORDER BY occurred_at ASC, recorded_at ASC"
	} else {
		query += " ORDER BY occurred_at DESC, recorded_at DESC"
	}
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap(err, "list activity")
	}
	defer rows.Close()

	events := []*models.ActivityEvent{}
	for rows.Next() {
		e, err := scanActivity(rows)
		if err != nil {
			return nil, wrap(err, "list activity")
		}
		events = append(events, e)
	}
	return events, wrap(rows.Err(), "list activity")
}

// MarkProcessed flags events as processed and returns the ids this call
// claimed. Ids already processed are left out.
func (r *ActivityRepository) MarkProcessed(ctx context.Context, ids []string, now time.Time) ([]string, error) {
	claimed := []string{}
	if len(ids) == 0 {
		return claimed, nil
	}
	rows, err := r.db.Query(ctx, `
		UPDATE agent_activity SET processed = TRUE, processed_at = $1
		WHERE id = ANY($2) AND NOT processed
		RETURNING id`, now, ids)
	if err != nil {
		return nil, wrap(err, "mark activity processed")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrap(err, "mark activity processed")
		}
		claimed = append(claimed, id)
	}
	return claimed, wrap(rows.Err(), "mark activity processed")
}

// PruneActivity deletes processed events recorded before the cutoff
func (r *ActivityRepository) PruneActivity(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Exec(ctx,
		`DELETE FROM agent_activity WHERE processed AND recorded_at < $1`, before)
	if err != nil {
		return 0, wrap(err, "prune activity")
	}
	return result.RowsAffected(), nil
}

// EnqueueActions stores planned actions in one transaction
func (r *ActivityRepository) EnqueueActions(ctx context.Context, actions []*models.AgentAction) error {
	if len(actions) == 0 {
		return nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return wrap(err, "begin enqueue")
	}
	defer tx.Rollback(ctx)

	for _, a := range actions {
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO agent_actions (id, user_id, workflow, trigger_event_id, action_type, confidence,
				requires_approval, payload, context_snapshot, rationale, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			a.ID, a.UserID, a.Workflow, a.TriggerEventID, a.ActionType, a.Confidence,
			a.RequiresApproval, orEmpty(a.Payload), orEmpty(a.ContextSnapshot), a.Rationale, a.Status,
			a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return wrap(err, "enqueue action")
		}
	}
	return wrap(tx.Commit(ctx), "commit enqueue")
}

// GetAction returns an action by ID
func (r *ActivityRepository) GetAction(ctx context.Context, id string) (*models.AgentAction, error) {
	a, err := scanAction(r.db.QueryRow(ctx,
		`SELECT `+actionColumns+` FROM agent_actions WHERE id = $1`, id))
	if err != nil {
		return nil, wrap(err, "get action")
	}
	return a, nil
}

// ListActions returns the user's pending actions, or every action when
// includeDone is set, newest first
func (r *ActivityRepository) ListActions(ctx context.Context, userID string, includeDone bool, limit int) ([]*models.AgentAction, error) {
	query := `SELECT ` + actionColumns + ` FROM agent_actions WHERE user_id = $1`
	if !includeDone {
		query += ` AND status = 'pending'`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, wrap(err, "list actions")
	}
	defer rows.Close()

	actions := []*models.AgentAction{}
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, wrap(err, "list actions")
		}
		actions = append(actions, a)
	}
	return actions, wrap(rows.Err(), "list actions")
}

// ClaimAction moves a pending action to executing
func (r *ActivityRepository) ClaimAction(ctx context.Context, id string, now time.Time) error {
	result, err := r.db.Exec(ctx,
		`UPDATE agent_actions SET status = 'executing', updated_at = $1
		 WHERE id = $2 AND status = 'pending'`, now, id)
	if err != nil {
		return wrap(err, "claim action")
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("claim action: %w", ErrStateChanged)
	}
	return nil
}

// FinishAction writes the final state of an action that is still in the
// from status
func (r *ActivityRepository) FinishAction(ctx context.Context, a *models.AgentAction, from models.ActionStatus) error {
	result, err := r.db.Exec(ctx, `
		UPDATE agent_actions SET status = $1, result = $2, error = $3, updated_at = $4, completed_at = $5
		WHERE id = $6 AND status = $7`,
		a.Status, orEmpty(a.Result), a.Error, a.UpdatedAt, a.CompletedAt, a.ID, from)
	if err != nil {
		return wrap(err, "finish action")
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("finish action: %w", ErrStateChanged)
	}
	return nil
}

// RecordFeedback stores a rating or comment on an action
func (r *ActivityRepository) RecordFeedback(ctx context.Context, f *models.ActionFeedback) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO agent_feedback (id, action_id, user_id, rating, comment, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.ActionID, f.UserID, f.Rating, f.Comment, f.Status, f.CreatedAt)
	return wrap(err, "record feedback")
}
