package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"together-backend/internal/models"
	"together-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PartnerService handles invitations and the partner link
type PartnerService struct {
	users    UserStore
	partners PartnerStore
	notifier Notifier
	realtime Realtime
	activity ActivityRecorder
	now      func() time.Time
}

// NewPartnerService creates a new partner service
func NewPartnerService(users UserStore, partners PartnerStore, notifier Notifier, realtime Realtime) *PartnerService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &PartnerService{
		users:    users,
		partners: partners,
		notifier: notifier,
		realtime: realtime,
		now:      time.Now,
	}
}

// SetClock overrides the time source
func (s *PartnerService) SetClock(now func() time.Time) {
	s.now = now
}

// SetActivity records new partner links as onboarding activity
func (s *PartnerService) SetActivity(rec ActivityRecorder) {
	s.activity = rec
}

// InviteRequest identifies the invitee by email or invite code
type InviteRequest struct {
	PartnerEmail string `json:"partner_email"`
	PartnerCode  string `json:"partner_code"`
}

// InviteResult describes the invitation created or reused
type InviteResult struct {
	InvitationID string `json:"invitation_id"`
	Existing     bool   `json:"existing"`
	Registered   bool   `json:"registered"`
}

// ConnectedPair returns the user and their partner when the link is
// connected on both sides
func (s *PartnerService) ConnectedPair(ctx context.Context, userID string) (*models.User, *models.User, error) {
	return connectedPair(ctx, s.users, userID)
}

func connectedPair(ctx context.Context, users UserStore, userID string) (*models.User, *models.User, error) {
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, notFound(err, "user")
	}
	partnerID, ok := user.ConnectedPartnerID()
	if !ok {
		return user, nil, newError(ErrNoPartner, "no connected partner")
	}
	partner, err := users.GetByID(ctx, partnerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return user, nil, newError(ErrNoPartner, "no connected partner")
		}
		return nil, nil, err
	}
	if back, ok := partner.ConnectedPartnerID(); !ok || back != user.ID {
		return user, nil, newError(ErrNoPartner, "no connected partner")
	}
	return user, partner, nil
}

// Invite sends a partner invitation by email or invite code
func (s *PartnerService) Invite(ctx context.Context, userID string, req InviteRequest) (*InviteResult, error) {
	sender, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user")
	}
	if _, ok := sender.ConnectedPartnerID(); ok {
		return nil, conflict("you are already connected with a partner")
	}

	var receiver *models.User
	email := NormalizeEmail(req.PartnerEmail)
	code := strings.ToUpper(strings.TrimSpace(req.PartnerCode))
	switch {
	case code != "":
		if len(code) != codeLength {
			return nil, invalid("partner_code must be %d characters", codeLength)
		}
		receiver, err = s.users.GetByInviteCode(ctx, code)
		if err != nil {
			return nil, notFound(err, "partner")
		}
		email = receiver.Email
	case email != "":
		if !validEmail(email) {
			return nil, invalid("invalid partner email")
		}
		receiver, err = s.users.GetByEmail(ctx, email)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	default:
		return nil, invalid("partner_email or partner_code is required")
	}

	if email == sender.Email || (receiver != nil && receiver.ID == sender.ID) {
		return nil, invalid("you cannot invite yourself")
	}
	if receiver != nil {
		if _, ok := receiver.ConnectedPartnerID(); ok {
			return nil, conflict("that user is already connected with a partner")
		}
	}

	existing, err := s.partners.FindPendingInvitation(ctx, sender.ID, email)
	if err == nil {
		return &InviteResult{InvitationID: existing.ID, Existing: true, Registered: receiver != nil}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	inv := &models.PartnerInvitation{
		ID:            uuid.New().String(),
		SenderID:      sender.ID,
		SenderName:    sender.Name,
		SenderEmail:   sender.Email,
		ReceiverEmail: email,
		Status:        models.InvitationPending,
		CreatedAt:     s.now().UTC(),
	}
	ids := []string{sender.ID}
	if receiver != nil {
		inv.ReceiverID = &receiver.ID
		ids = append(ids, receiver.ID)
	}
	if err := s.partners.CreateInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	if err := s.users.RefreshPartnerStatus(ctx, ids...); err != nil {
		return nil, err
	}

	s.notifier.InvitationSent(ctx, sender, receiver, email)
	if receiver != nil {
		push(s.realtime, receiver.ID, WSMessage{
			Type: EventPairStatus,
			Data: map[string]any{"status": models.PartnerStatusPending, "invitation_id": inv.ID},
		})
	}

	log.Info().
		Str("user_id", sender.ID).
		Str("invitation_id", inv.ID).
		Bool("registered", receiver != nil).
		Msg("Partner invitation sent")

	return &InviteResult{InvitationID: inv.ID, Registered: receiver != nil}, nil
}

// loadForReceiver fetches a pending invitation the user may respond to
func (s *PartnerService) loadForReceiver(ctx context.Context, user *models.User, invitationID string) (*models.PartnerInvitation, error) {
	if strings.TrimSpace(invitationID) == "" {
		return nil, invalid("invitation_id is required")
	}
	inv, err := s.partners.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, notFound(err, "invitation")
	}

	switch {
	case inv.ReceiverID != nil && *inv.ReceiverID == user.ID:
	case inv.ReceiverID == nil && inv.ReceiverEmail == user.Email:
		if _, err := s.partners.AttachInvitations(ctx, user.Email, user.ID); err != nil {
			return nil, err
		}
		inv.ReceiverID = &user.ID
	default:
		return nil, newError(ErrForbidden, "only the invited user can respond to this invitation")
	}

	if inv.Status != models.InvitationPending {
		return nil, conflict(fmt.Sprintf("invitation already %s", inv.Status))
	}
	return inv, nil
}

// Accept links the invited user with the sender
func (s *PartnerService) Accept(ctx context.Context, userID, invitationID string) (*models.PartnerOverview, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user")
	}
	inv, err := s.loadForReceiver(ctx, user, invitationID)
	if err != nil {
		return nil, err
	}
	if _, ok := user.ConnectedPartnerID(); ok {
		return nil, conflict("you are already connected with a partner")
	}

	if err := s.partners.AcceptInvitation(ctx, inv.ID, s.now().UTC()); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyLinked):
			return nil, conflict("one of you is already connected with a partner")
		case errors.Is(err, repository.ErrStateChanged):
			return nil, conflict("invitation is no longer pending")
		case errors.Is(err, repository.ErrNotFound):
			return nil, newError(ErrNotFound, "invitation not found")
		}
		return nil, fmt.Errorf("failed to accept invitation: %w", err)
	}

	sender, err := s.users.GetByID(ctx, inv.SenderID)
	if err == nil {
		s.notifier.InvitationAccepted(ctx, user, sender)
	}
	for _, pair := range [][2]string{{user.ID, inv.SenderID}, {inv.SenderID, user.ID}} {
		push(s.realtime, pair[0], WSMessage{
			Type: EventPartnerConnected,
			Data: map[string]any{"partner_id": pair[1]},
		})
		recordActivity(ctx, s.activity, models.ActivityEvent{
			UserID:     pair[0],
			EventType:  models.ActivityPartnerConnected,
			Source:     "partners",
			Scenario:   models.ScenarioOnboarding,
			DedupeKey:  "partner:" + inv.ID + ":" + pair[0],
			OccurredAt: s.now().UTC(),
			Payload:    map[string]any{"partner_id": pair[1], "invitation_id": inv.ID},
		})
	}

	log.Info().
		Str("user_id", user.ID).
		Str("partner_id", inv.SenderID).
		Str("invitation_id", inv.ID).
		Msg("Partner invitation accepted")

	return s.Overview(ctx, userID)
}

// Reject declines an invitation
func (s *PartnerService) Reject(ctx context.Context, userID, invitationID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return notFound(err, "user")
	}
	inv, err := s.loadForReceiver(ctx, user, invitationID)
	if err != nil {
		return err
	}
	return s.close(ctx, inv, models.InvitationRejected)
}

// CancelInvitation withdraws an invitation the user sent
func (s *PartnerService) CancelInvitation(ctx context.Context, userID, invitationID string) error {
	inv, err := s.partners.GetInvitation(ctx, invitationID)
	if err != nil {
		return notFound(err, "invitation")
	}
	if inv.SenderID != userID {
		return newError(ErrForbidden, "only the sender can cancel this invitation")
	}
	if inv.Status != models.InvitationPending {
		return conflict(fmt.Sprintf("invitation already %s", inv.Status))
	}
	return s.close(ctx, inv, models.InvitationCancelled)
}

func (s *PartnerService) close(ctx context.Context, inv *models.PartnerInvitation, status models.InvitationStatus) error {
	if err := s.partners.RespondInvitation(ctx, inv.ID, status, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrStateChanged) {
			return conflict("invitation is no longer pending")
		}
		return fmt.Errorf("failed to close invitation: %w", err)
	}
	ids := []string{inv.SenderID}
	if inv.ReceiverID != nil {
		ids = append(ids, *inv.ReceiverID)
	}
	return s.users.RefreshPartnerStatus(ctx, ids...)
}

// Disconnect removes the partner link on both sides
func (s *PartnerService) Disconnect(ctx context.Context, userID string) error {
	partnerID, err := s.partners.Unlink(ctx, userID, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(ErrNoPartner, "no connected partner")
		}
		return fmt.Errorf("failed to disconnect partner: %w", err)
	}

	push(s.realtime, partnerID, WSMessage{
		Type: EventPartnerDisconnected,
		Data: map[string]any{"partner_id": userID},
	})
	log.Info().Str("user_id", userID).Str("partner_id", partnerID).Msg("Partner disconnected")
	return nil
}

// Overview returns the partner state of a user
func (s *PartnerService) Overview(ctx context.Context, userID string) (*models.PartnerOverview, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user")
	}

	overview := &models.PartnerOverview{Status: user.PartnerStatus}
	if _, partner, err := connectedPair(ctx, s.users, userID); err == nil {
		overview.HasPartner = true
		overview.Partner = &models.PartnerSummary{
			ID:        partner.ID,
			Name:      partner.Name,
			Email:     partner.Email,
			AvatarURL: partner.AvatarURL,
		}
	} else if !errors.Is(err, ErrNoPartner) {
		return nil, err
	}

	overview.PendingInvitations, err = s.partners.ListReceivedInvitations(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	overview.SentInvitations, err = s.partners.ListSentInvitations(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return overview, nil
}
