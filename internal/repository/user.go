package repository

import (
	"context"
	"fmt"
	"time"

	"together-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, name, email, password_hash, invite_code, partner_id, partner_status,
	email_notifications, push_token, avatar_url, created_at, updated_at`

// refreshPartnerStatusSQL recomputes partner_status from the link and the
// pending invitations that involve the user
const refreshPartnerStatusSQL = `
	UPDATE users u SET partner_status = CASE
		WHEN u.partner_id IS NOT NULL THEN 'connected'
		WHEN EXISTS (
			SELECT 1 FROM partner_invitations i
			WHERE i.status = 'pending'
			  AND (i.sender_id = u.id OR i.receiver_id = u.id OR i.receiver_email = u.email)
		) THEN 'pending'
		ELSE 'none'
	END
	WHERE u.id = ANY($1)
`

// UserRepository handles database operations for users
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.InviteCode,
		&user.PartnerID, &user.PartnerStatus, &user.EmailNotifications,
		&user.PushToken, &user.AvatarURL, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, name, email, password_hash, invite_code, partner_id, partner_status,
			email_notifications, push_token, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, user.InviteCode, user.PartnerID,
		user.PartnerStatus, user.EmailNotifications, user.PushToken, user.AvatarURL,
		user.CreatedAt, user.UpdatedAt,
	)
	return wrap(err, "create user")
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrap(err, "get user")
	}
	return user, nil
}

// GetByEmail retrieves a user by lowercased email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, wrap(err, "get user by email")
	}
	return user, nil
}

// GetByInviteCode retrieves a user by invite code
func (r *UserRepository) GetByInviteCode(ctx context.Context, code string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE invite_code = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, code))
	if err != nil {
		return nil, wrap(err, "get user by invite code")
	}
	return user, nil
}

// InviteCodeExists checks if an invite code is taken
func (r *UserRepository) InviteCodeExists(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE invite_code = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, wrap(err, "check invite code")
	}
	return exists, nil
}

// UpdateName changes the display name
func (r *UserRepository) UpdateName(ctx context.Context, userID, name string, now time.Time) error {
	return r.updateOne(ctx, "update name",
		`UPDATE users SET name = $1, updated_at = $2 WHERE id = $3`, name, now, userID)
}

// UpdatePassword stores a new password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, hash string, now time.Time) error {
	return r.updateOne(ctx, "update password",
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`, hash, now, userID)
}

// UpdateEmailNotifications toggles email delivery
func (r *UserRepository) UpdateEmailNotifications(ctx context.Context, userID string, enabled bool, now time.Time) error {
	return r.updateOne(ctx, "update email notifications",
		`UPDATE users SET email_notifications = $1, updated_at = $2 WHERE id = $3`, enabled, now, userID)
}

// UpdatePushToken updates the push token for a user
func (r *UserRepository) UpdatePushToken(ctx context.Context, userID string, pushToken *string, now time.Time) error {
	return r.updateOne(ctx, "update push token",
		`UPDATE users SET push_token = $1, updated_at = $2 WHERE id = $3`, pushToken, now, userID)
}

// UpdateAvatarURL records the public avatar location
func (r *UserRepository) UpdateAvatarURL(ctx context.Context, userID, url string, now time.Time) error {
	return r.updateOne(ctx, "update avatar",
		`UPDATE users SET avatar_url = $1, updated_at = $2 WHERE id = $3`, url, now, userID)
}

// RefreshPartnerStatus recomputes partner_status for the given users
func (r *UserRepository) RefreshPartnerStatus(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, refreshPartnerStatusSQL, userIDs)
	return wrap(err, "refresh partner status")
}

func (r *UserRepository) updateOne(ctx context.Context, what, query string, args ...any) error {
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return wrap(err, what)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
