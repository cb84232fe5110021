package repository

import (
	"context"
	"fmt"
	"time"

	"together-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const invitationSelect = `
	SELECT i.id, i.sender_id, s.name, s.email, i.receiver_id, i.receiver_email,
		i.status, i.created_at, i.responded_at
	FROM partner_invitations i
	JOIN users s ON s.id = i.sender_id
`

// PartnerRepository handles invitations and the partner link between users
type PartnerRepository struct {
	db *pgxpool.Pool
}

// NewPartnerRepository creates a new partner repository
func NewPartnerRepository(db *pgxpool.Pool) *PartnerRepository {
	return &PartnerRepository{db: db}
}

func scanInvitation(row pgx.Row) (*models.PartnerInvitation, error) {
	var inv models.PartnerInvitation
	err := row.Scan(
		&inv.ID, &inv.SenderID, &inv.SenderName, &inv.SenderEmail, &inv.ReceiverID,
		&inv.ReceiverEmail, &inv.Status, &inv.CreatedAt, &inv.RespondedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *PartnerRepository) listInvitations(ctx context.Context, what, where string, args ...any) ([]*models.PartnerInvitation, error) {
	rows, err := r.db.Query(ctx, invitationSelect+where+` ORDER BY i.created_at DESC`, args...)
	if err != nil {
		return nil, wrap(err, what)
	}
	defer rows.Close()

	invitations := []*models.PartnerInvitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, wrap(err, what)
		}
		invitations = append(invitations, inv)
	}
	return invitations, wrap(rows.Err(), what)
}

// CreateInvitation stores a new pending invitation
func (r *PartnerRepository) CreateInvitation(ctx context.Context, inv *models.PartnerInvitation) error {
	query := `
		INSERT INTO partner_invitations (id, sender_id, receiver_id, receiver_email, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, inv.ID, inv.SenderID, inv.ReceiverID, inv.ReceiverEmail, inv.Status, inv.CreatedAt)
	return wrap(err, "create invitation")
}

// GetInvitation retrieves an invitation by ID
func (r *PartnerRepository) GetInvitation(ctx context.Context, id string) (*models.PartnerInvitation, error) {
	inv, err := scanInvitation(r.db.QueryRow(ctx, invitationSelect+` WHERE i.id = $1`, id))
	if err != nil {
		return nil, wrap(err, "get invitation")
	}
	return inv, nil
}

// FindPendingInvitation returns an open invitation from sender to the receiver email
func (r *PartnerRepository) FindPendingInvitation(ctx context.Context, senderID, receiverEmail string) (*models.PartnerInvitation, error) {
	query := invitationSelect + `
		WHERE i.sender_id = $1 AND i.receiver_email = $2 AND i.status = 'pending'
		ORDER BY i.created_at DESC LIMIT 1`
	inv, err := scanInvitation(r.db.QueryRow(ctx, query, senderID, receiverEmail))
	if err != nil {
		return nil, wrap(err, "find pending invitation")
	}
	return inv, nil
}

// ListReceivedInvitations returns pending invitations addressed to the user
func (r *PartnerRepository) ListReceivedInvitations(ctx context.Context, userID, email string) ([]*models.PartnerInvitation, error) {
	return r.listInvitations(ctx, "list received invitations",
		` WHERE i.status = 'pending' AND (i.receiver_id = $1 OR i.receiver_email = $2)`, userID, email)
}

// ListSentInvitations returns pending invitations sent by the user
func (r *PartnerRepository) ListSentInvitations(ctx context.Context, userID string) ([]*models.PartnerInvitation, error) {
	return r.listInvitations(ctx, "list sent invitations",
		` WHERE i.status = 'pending' AND i.sender_id = $1`, userID)
}

// AttachInvitations binds email-only invitations to a newly registered user
func (r *PartnerRepository) AttachInvitations(ctx context.Context, email, userID string) (int64, error) {
	result, err := r.db.Exec(ctx,
		`UPDATE partner_invitations SET receiver_id = $1 WHERE receiver_email = $2 AND receiver_id IS NULL`,
		userID, email)
	if err != nil {
		return 0, wrap(err, "attach invitations")
	}
	return result.RowsAffected(), nil
}

// RespondInvitation closes a pending invitation with the given status
func (r *PartnerRepository) RespondInvitation(ctx context.Context, id string, status models.InvitationStatus, now time.Time) error {
	result, err := r.db.Exec(ctx,
		`UPDATE partner_invitations SET status = $1, responded_at = $2 WHERE id = $3 AND status = 'pending'`,
		status, now, id)
	if err != nil {
		return wrap(err, "respond invitation")
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("respond invitation: %w", ErrStateChanged)
	}
	return nil
}

// AcceptInvitation links sender and receiver, closes the invitation and
// cancels every other pending invitation involving either of them
func (r *PartnerRepository) AcceptInvitation(ctx context.Context, id string, now time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return wrap(err, "begin accept")
	}
	defer tx.Rollback(ctx)

	var senderID string
	var receiverID *string
	var status models.InvitationStatus
	err = tx.QueryRow(ctx,
		`SELECT sender_id, receiver_id, status FROM partner_invitations WHERE id = $1 FOR UPDATE`,
		id).Scan(&senderID, &receiverID, &status)
	if err != nil {
		return wrap(err, "lock invitation")
	}
	if status != models.InvitationPending || receiverID == nil {
		return fmt.Errorf("accept invitation: %w", ErrStateChanged)
	}
	ids := []string{senderID, *receiverID}

	rows, err := tx.Query(ctx,
		`SELECT partner_id, email FROM users WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return wrap(err, "lock users")
	}
	var emails []string
	for rows.Next() {
		var partnerID *string
		var email string
		if err := rows.Scan(&partnerID, &email); err != nil {
			rows.Close()
			return wrap(err, "lock users")
		}
		if partnerID != nil {
			rows.Close()
			return fmt.Errorf("accept invitation: %w", ErrAlreadyLinked)
		}
		emails = append(emails, email)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return wrap(err, "lock users")
	}
	if len(emails) != 2 {
		return fmt.Errorf("accept invitation: %w", ErrNotFound)
	}

	_, err = tx.Exec(ctx, `
		UPDATE users SET partner_id = CASE WHEN id = $1 THEN $2 ELSE $1 END, updated_at = $3
		WHERE id IN ($1, $2)`, senderID, *receiverID, now)
	if err != nil {
		return wrap(err, "link users")
	}

	_, err = tx.Exec(ctx,
		`UPDATE partner_invitations SET status = 'accepted', responded_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return wrap(err, "close invitation")
	}

	cancelled, err := tx.Query(ctx, `
		UPDATE partner_invitations SET status = 'cancelled', responded_at = $1
		WHERE status = 'pending' AND id <> $2
		  AND (sender_id = ANY($3) OR receiver_id = ANY($3) OR receiver_email = ANY($4))
		RETURNING sender_id, receiver_id`, now, id, ids, emails)
	if err != nil {
		return wrap(err, "cancel invitations")
	}
	affected := append([]string{}, ids...)
	for cancelled.Next() {
		var sender string
		var receiver *string
		if err := cancelled.Scan(&sender, &receiver); err != nil {
			cancelled.Close()
			return wrap(err, "cancel invitations")
		}
		affected = append(affected, sender)
		if receiver != nil {
			affected = append(affected, *receiver)
		}
	}
	cancelled.Close()
	if err := cancelled.Err(); err != nil {
		return wrap(err, "cancel invitations")
	}

	if _, err := tx.Exec(ctx, refreshPartnerStatusSQL, affected); err != nil {
		return wrap(err, "refresh partner status")
	}

	return wrap(tx.Commit(ctx), "commit accept")
}

// Unlink clears the partner link of a user and their partner and returns the
// former partner ID
func (r *PartnerRepository) Unlink(ctx context.Context, userID string, now time.Time) (string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", wrap(err, "begin unlink")
	}
	defer tx.Rollback(ctx)

	var partnerID *string
	err = tx.QueryRow(ctx, `SELECT partner_id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&partnerID)
	if err != nil {
		return "", wrap(err, "lock user")
	}
	if partnerID == nil {
		return "", fmt.Errorf("unlink: %w", ErrNotFound)
	}

	ids := []string{userID, *partnerID}
	_, err = tx.Exec(ctx,
		`UPDATE users SET partner_id = NULL, updated_at = $1 WHERE id = ANY($2)`, now, ids)
	if err != nil {
		return "", wrap(err, "unlink users")
	}
	if _, err := tx.Exec(ctx, refreshPartnerStatusSQL, ids); err != nil {
		return "", wrap(err, "refresh partner status")
	}

	if err := tx.Commit(ctx); err != nil {
		return "", wrap(err, "commit unlink")
	}
	return *partnerID, nil
}
