package repository

import (
	"context"
	"fmt"
	"time"

	"together-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const messageSelect = `
	SELECT m.id, m.sender_id, s.name, m.receiver_id, r.name, m.content, m.created_at,
		m.is_read, m.scheduled_from
	FROM messages m
	JOIN users s ON s.id = m.sender_id
	JOIN users r ON r.id = m.receiver_id
`

const scheduledColumns = `id, sender_id, receiver_id, content, scheduled_for, status,
	created_at, updated_at, sent_at, cancelled_at, error`

// MessageRepository handles database operations for instant and scheduled messages
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	err := row.Scan(
		&m.ID, &m.SenderID, &m.SenderName, &m.ReceiverID, &m.ReceiverName,
		&m.Content, &m.CreatedAt, &m.IsRead, &m.ScheduledFrom,
	)
	if err != nil {
		return nil, err
	}
	m.IsScheduled = m.ScheduledFrom != nil
	return &m, nil
}

func scanScheduled(row pgx.Row) (*models.ScheduledMessage, error) {
	var sm models.ScheduledMessage
	err := row.Scan(
		&sm.ID, &sm.SenderID, &sm.ReceiverID, &sm.Content, &sm.ScheduledFor, &sm.Status,
		&sm.CreatedAt, &sm.UpdatedAt, &sm.SentAt, &sm.CancelledAt, &sm.Error,
	)
	if err != nil {
		return nil, err
	}
	sm.ScheduledFor = sm.ScheduledFor.UTC()
	return &sm, nil
}

func (r *MessageRepository) listMessages(ctx context.Context, what, tail string, args ...any) ([]*models.Message, error) {
	rows, err := r.db.Query(ctx, messageSelect+tail, args...)
	if err != nil {
		return nil, wrap(err, what)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, wrap(err, what)
		}
		messages = append(messages, m)
	}
	return messages, wrap(rows.Err(), what)
}

// Create stores a delivered message
func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	query := `
		INSERT INTO messages (id, sender_id, receiver_id, content, created_at, is_read, scheduled_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, m.ID, m.SenderID, m.ReceiverID, m.Content, m.CreatedAt, m.IsRead, m.ScheduledFrom)
	return wrap(err, "create message")
}

// ListRecent returns the latest messages the user sent or received, newest first
func (r *MessageRepository) ListRecent(ctx context.Context, userID string, limit int) ([]*models.Message, error) {
	return r.listMessages(ctx, "list messages",
		` WHERE m.sender_id = $1 OR m.receiver_id = $1 ORDER BY m.created_at DESC LIMIT $2`, userID, limit)
}

// Conversation returns the exchange between two users in chronological order
func (r *MessageRepository) Conversation(ctx context.Context, userID, partnerID string) ([]*models.Message, error) {
	return r.listMessages(ctx, "list conversation",
		` WHERE (m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1)
		  ORDER BY m.created_at ASC`, userID, partnerID)
}

// MarkRead flags every unread message from sender to receiver as read
func (r *MessageRepository) MarkRead(ctx context.Context, receiverID, senderID string) (int64, error) {
	result, err := r.db.Exec(ctx,
		`UPDATE messages SET is_read = TRUE WHERE receiver_id = $1 AND sender_id = $2 AND NOT is_read`,
		receiverID, senderID)
	if err != nil {
		return 0, wrap(err, "mark messages read")
	}
	return result.RowsAffected(), nil
}

// UnreadCount counts unread messages addressed to the user
func (r *MessageRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND NOT is_read`, userID).Scan(&count)
	if err != nil {
		return 0, wrap(err, "count unread messages")
	}
	return count, nil
}

// CreateScheduled stores a pending scheduled message
func (r *MessageRepository) CreateScheduled(ctx context.Context, sm *models.ScheduledMessage) error {
	query := `
		INSERT INTO scheduled_messages (id, sender_id, receiver_id, content, scheduled_for, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		sm.ID, sm.SenderID, sm.ReceiverID, sm.Content, sm.ScheduledFor, sm.Status, sm.CreatedAt, sm.UpdatedAt)
	return wrap(err, "create scheduled message")
}

// GetScheduled retrieves a scheduled message by ID
func (r *MessageRepository) GetScheduled(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	sm, err := scanScheduled(r.db.QueryRow(ctx,
		`SELECT `+scheduledColumns+` FROM scheduled_messages WHERE id = $1`, id))
	if err != nil {
		return nil, wrap(err, "get scheduled message")
	}
	return sm, nil
}

// ListScheduled returns the sender's pending scheduled messages by delivery time
func (r *MessageRepository) ListScheduled(ctx context.Context, senderID string) ([]*models.ScheduledMessage, error) {
	return r.listScheduled(ctx, "list scheduled messages",
		`WHERE sender_id = $1 AND status = 'pending' ORDER BY scheduled_for ASC`, senderID)
}

// DueScheduled returns pending messages whose delivery time has passed
func (r *MessageRepository) DueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledMessage, error) {
	return r.listScheduled(ctx, "list due messages",
		`WHERE status = 'pending' AND scheduled_for <= $1 ORDER BY scheduled_for ASC LIMIT $2`, now, limit)
}

func (r *MessageRepository) listScheduled(ctx context.Context, what, where string, args ...any) ([]*models.ScheduledMessage, error) {
	rows, err := r.db.Query(ctx, `SELECT `+scheduledColumns+` FROM scheduled_messages `+where, args...)
	if err != nil {
		return nil, wrap(err, what)
	}
	defer rows.Close()

	list := []*models.ScheduledMessage{}
	for rows.Next() {
		sm, err := scanScheduled(rows)
		if err != nil {
			return nil, wrap(err, what)
		}
		list = append(list, sm)
	}
	return list, wrap(rows.Err(), what)
}

// UpdateScheduled edits a message that is still pending
func (r *MessageRepository) UpdateScheduled(ctx context.Context, sm *models.ScheduledMessage) error {
	return r.whilePending(ctx, "update scheduled message",
		`UPDATE scheduled_messages SET content = $1, scheduled_for = $2, updated_at = $3
		 WHERE id = $4 AND status = 'pending'`,
		sm.Content, sm.ScheduledFor, sm.UpdatedAt, sm.ID)
}

// CancelScheduled cancels a message that is still pending
func (r *MessageRepository) CancelScheduled(ctx context.Context, id string, now time.Time) error {
	return r.whilePending(ctx, "cancel scheduled message",
		`UPDATE scheduled_messages SET status = 'cancelled', cancelled_at = $1, updated_at = $1
		 WHERE id = $2 AND status = 'pending'`, now, id)
}

// MarkScheduledFailed records a delivery failure
func (r *MessageRepository) MarkScheduledFailed(ctx context.Context, id, reason string, now time.Time) error {
	return r.whilePending(ctx, "mark scheduled message failed",
		`UPDATE scheduled_messages SET status = 'failed', error = $1, updated_at = $2
		 WHERE id = $3 AND status = 'pending'`, reason, now, id)
}

// DeliverScheduled inserts the resulting message and marks the scheduled
// message sent in one transaction
func (r *MessageRepository) DeliverScheduled(ctx context.Context, sm *models.ScheduledMessage, m *models.Message, now time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return wrap(err, "begin delivery")
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx,
		`UPDATE scheduled_messages SET status = 'sent', sent_at = $1, updated_at = $1
		 WHERE id = $2 AND status = 'pending'`, now, sm.ID)
	if err != nil {
		return wrap(err, "mark scheduled message sent")
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("deliver scheduled message: %w", ErrStateChanged)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, content, created_at, is_read, scheduled_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.SenderID, m.ReceiverID, m.Content, m.CreatedAt, m.IsRead, m.ScheduledFrom)
	if err != nil {
		return wrap(err, "insert delivered message")
	}

	return wrap(tx.Commit(ctx), "commit delivery")
}

func (r *MessageRepository) whilePending(ctx context.Context, what, query string, args ...any) error {
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return wrap(err, what)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", what, ErrStateChanged)
	}
	return nil
}
