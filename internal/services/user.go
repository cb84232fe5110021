package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"together-backend/internal/models"
	"together-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	codeLength        = 6
	codeChars         = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	minPasswordLength = 6
)

// UserService handles accounts, credentials and tokens
type UserService struct {
	users      UserStore
	partners   PartnerStore
	invites    *PartnerService
	jwtSecret  string
	jwtTTL     time.Duration
	bcryptCost int
	now        func() time.Time
}

// NewUserService creates a new user service
func NewUserService(users UserStore, partners PartnerStore, invites *PartnerService, jwtSecret string, jwtTTL time.Duration) *UserService {
	return &UserService{
		users:      users,
		partners:   partners,
		invites:    invites,
		jwtSecret:  jwtSecret,
		jwtTTL:     jwtTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// SetClock overrides the time source
func (s *UserService) SetClock(now func() time.Time) {
	s.now = now
}

// SetBcryptCost overrides the password hashing cost
func (s *UserService) SetBcryptCost(cost int) {
	s.bcryptCost = cost
}

// RegisterRequest represents a registration
type RegisterRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	PartnerEmail string `json:"partner_email"`
}

// AuthResult is returned by register and login
type AuthResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// NormalizeEmail trims and lowercases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// GenerateUniqueCode generates a unique 6-character invite code
func (s *UserService) GenerateUniqueCode(ctx context.Context) (string, error) {
	maxAttempts := 10
	for i := 0; i < maxAttempts; i++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		exists, err := s.users.InviteCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code existence: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique code after %d attempts", maxAttempts)
}

func generateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		if err != nil {
			return "", fmt.Errorf("failed to read random: %w", err)
		}
		code[i] = codeChars[n.Int64()]
	}
	return string(code), nil
}

// GenerateJWT generates a JWT token for a user
func (s *UserService) GenerateJWT(userID string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(s.jwtTTL).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user_id not found in token")
	}
	return userID, nil
}

// Register creates an account, attaches invitations addressed to its email
// and optionally invites a partner
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	name := strings.TrimSpace(req.Name)
	email := NormalizeEmail(req.Email)
	if name == "" || email == "" || req.Password == "" {
		return nil, invalid("name, email and password are required")
	}
	if !validEmail(email) {
		return nil, invalid("invalid email address")
	}
	if len(req.Password) < minPasswordLength {
		return nil, invalid("password must be at least %d characters", minPasswordLength)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, conflict("email already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	code, err := s.GenerateUniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &models.User{
		ID:                 uuid.New().String(),
		Name:               name,
		Email:              email,
		PasswordHash:       string(hash),
		InviteCode:         code,
		PartnerStatus:      models.PartnerStatusNone,
		EmailNotifications: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflict("email already registered")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	attached, err := s.partners.AttachInvitations(ctx, email, user.ID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to attach pending invitations")
	}
	if attached > 0 {
		if err := s.users.RefreshPartnerStatus(ctx, user.ID); err != nil {
			log.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to refresh partner status")
		}
	}

	if partnerEmail := NormalizeEmail(req.PartnerEmail); partnerEmail != "" && s.invites != nil {
		if _, err := s.invites.Invite(ctx, user.ID, InviteRequest{PartnerEmail: partnerEmail}); err != nil {
			log.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to send partner invitation at registration")
		}
	}

	return s.authResult(ctx, user.ID)
}

// Login verifies credentials and issues a token
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalid("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrUnauthorized, "invalid email or password")
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, newError(ErrUnauthorized, "invalid email or password")
	}

	return s.authResult(ctx, user.ID)
}

func (s *UserService) authResult(ctx context.Context, userID string) (*AuthResult, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	token, err := s.GenerateJWT(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token}, nil
}

// GetProfile returns the account of a user
func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return user, nil
}

// UpdateProfile changes the display name
func (s *UserService) UpdateProfile(ctx context.Context, userID, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name is required")
	}
	if err := s.users.UpdateName(ctx, userID, name, s.now().UTC()); err != nil {
		return nil, notFound(err, "user")
	}
	return s.GetProfile(ctx, userID)
}

// ChangePassword replaces the password after verifying the current one
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if current == "" || next == "" {
		return invalid("current_password and new_password are required")
	}
	if len(next) < minPasswordLength {
		return invalid("password must be at least %d characters", minPasswordLength)
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return newError(ErrUnauthorized, "current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return notFound(s.users.UpdatePassword(ctx, userID, string(hash), s.now().UTC()), "user")
}

// SetEmailNotifications toggles email delivery for the user
func (s *UserService) SetEmailNotifications(ctx context.Context, userID string, enabled bool) (*models.User, error) {
	if err := s.users.UpdateEmailNotifications(ctx, userID, enabled, s.now().UTC()); err != nil {
		return nil, notFound(err, "user")
	}
	return s.GetProfile(ctx, userID)
}

// SetPushToken stores an APNs device token; an empty token clears it
func (s *UserService) SetPushToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	var value *string
	if token != "" {
		value = &token
	}
	return notFound(s.users.UpdatePushToken(ctx, userID, value, s.now().UTC()), "user")
}
