package services_test

import (
	"context"
	"testing"
	"time"

	"together-backend/internal/models"
	"together-backend/internal/services"
	"together-backend/internal/testfixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type userEnv struct {
	db       *testfixtures.DB
	clock    *testfixtures.Clock
	partners *services.PartnerService
	svc      *services.UserService
}

func newUserEnv(t *testing.T) *userEnv {
	t.Helper()
	db := testfixtures.NewDB()
	clock := testfixtures.NewClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	partners := services.NewPartnerService(db.Users(), db.Partners(), nil, nil)
	partners.SetClock(clock.Now)
	svc := services.NewUserService(db.Users(), db.Partners(), partners, "test-secret", time.Hour)
	svc.SetClock(clock.Now)
	svc.SetBcryptCost(bcrypt.MinCost)
	return &userEnv{db: db, clock: clock, partners: partners, svc: svc}
}

func (e *userEnv) register(t *testing.T, name, email string) *services.AuthResult {
	t.Helper()
	res, err := e.svc.Register(context.Background(), services.RegisterRequest{Name: name, Email: email, Password: "secret1"})
	require.NoError(t, err)
	return res
}

func TestRegisterAndLogin(t *testing.T) {
	env := newUserEnv(t)
	ctx := context.Background()

	res := env.register(t, "Alice", " Alice@Example.com ")
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Len(t, res.User.InviteCode, 6)
	assert.Equal(t, models.PartnerStatusNone, res.User.PartnerStatus)
	assert.NotEmpty(t, res.Token)

	userID, err := env.svc.ValidateJWT(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, userID)

	login, err := env.svc.Login(ctx, "ALICE@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, login.User.ID)

	_, err = env.svc.Login(ctx, "alice@example.com", "wrong-password")
	assert.ErrorIs(t, err, services.ErrUnauthorized)
	_, err = env.svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, services.ErrUnauthorized)
}

func TestRegisterValidation(t *testing.T) {
	env := newUserEnv(t)
	ctx := context.Background()
	env.register(t, "Alice", "alice@example.com")

	cases := map[string]services.RegisterRequest{
		"missing name":   {Email: "x@example.com", Password: "secret1"},
		"bad email":      {Name: "X", Email: "nope", Password: "secret1"},
		"short password": {Name: "X", Email: "x@example.com", Password: "123"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.Register(ctx, req)
			var ve *services.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}

	_, err := env.svc.Register(ctx, services.RegisterRequest{Name: "A2", Email: "alice@example.com", Password: "secret1"})
	var ce *services.ConflictError
	assert.ErrorAs(t, err, &ce)
}

func TestTokenExpiry(t *testing.T) {
	env := newUserEnv(t)
	res := env.register(t, "Alice", "alice@example.com")

	env.clock.Advance(2 * time.Hour)
	_, err := env.svc.ValidateJWT(res.Token)
	assert.Error(t, err)

	_, err = env.svc.ValidateJWT("not-a-token")
	assert.Error(t, err)
}

func TestRegisterAttachesPendingInvitation(t *testing.T) {
	env := newUserEnv(t)
	ctx := context.Background()

	alice, err := env.svc.Register(ctx, services.RegisterRequest{
		Name:         "Alice",
		Email:        "alice@example.com",
		Password:     "secret1",
		PartnerEmail: "bob@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PartnerStatusPending, alice.User.PartnerStatus)

	bob := env.register(t, "Bob", "bob@example.com")
	assert.Equal(t, models.PartnerStatusPending, bob.User.PartnerStatus)

	overview, err := env.partners.Overview(ctx, bob.User.ID)
	require.NoError(t, err)
	require.Len(t, overview.PendingInvitations, 1)
	inv := overview.PendingInvitations[0]
	require.NotNil(t, inv.ReceiverID)
	assert.Equal(t, bob.User.ID, *inv.ReceiverID)

	connected, err := env.partners.Accept(ctx, bob.User.ID, inv.ID)
	require.NoError(t, err)
	assert.True(t, connected.HasPartner)
	assert.Equal(t, alice.User.ID, connected.Partner.ID)
}

func TestProfileUpdates(t *testing.T) {
	env := newUserEnv(t)
	ctx := context.Background()
	res := env.register(t, "Alice", "alice@example.com")
	id := res.User.ID

	user, err := env.svc.UpdateProfile(ctx, id, "  Alicia ")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", user.Name)

	_, err = env.svc.UpdateProfile(ctx, id, " ")
	var ve *services.ValidationError
	assert.ErrorAs(t, err, &ve)

	assert.ErrorIs(t, env.svc.ChangePassword(ctx, id, "wrong", "newsecret"), services.ErrUnauthorized)
	require.NoError(t, env.svc.ChangePassword(ctx, id, "secret1", "newsecret"))
	_, err = env.svc.Login(ctx, "alice@example.com", "newsecret")
	require.NoError(t, err)

	user, err = env.svc.SetEmailNotifications(ctx, id, false)
	require.NoError(t, err)
	assert.False(t, user.EmailNotifications)

	require.NoError(t, env.svc.SetPushToken(ctx, id, "device-token"))
	stored, err := env.db.Users().GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored.PushToken)
	assert.Equal(t, "device-token", *stored.PushToken)

	require.NoError(t, env.svc.SetPushToken(ctx, id, ""))
	stored, err = env.db.Users().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, stored.PushToken)

	_, err = env.svc.GetProfile(ctx, "missing")
	assert.ErrorIs(t, err, services.ErrNotFound)
}
