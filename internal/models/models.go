package models

import "time"

// PartnerStatus describes the relationship state of a user account
type PartnerStatus string

const (
	PartnerStatusNone      PartnerStatus = "none"
	PartnerStatusPending   PartnerStatus = "pending"
	PartnerStatusConnected PartnerStatus = "connected"
)

// User represents a user in the system
type User struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Email              string        `json:"email"`
	PasswordHash       string        `json:"-"`
	InviteCode         string        `json:"invite_code"`
	PartnerID          *string       `json:"partner_id"`
	PartnerStatus      PartnerStatus `json:"partner_status"`
	EmailNotifications bool          `json:"email_notifications"`
	PushToken          *string       `json:"-"`
	AvatarURL          *string       `json:"avatar_url,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// ConnectedPartnerID returns the partner id when the link is fully connected
func (u *User) ConnectedPartnerID() (string, bool) {
	if u == nil || u.PartnerID == nil || *u.PartnerID == "" {
		return "", false
	}
	if u.PartnerStatus != PartnerStatusConnected {
		return "", false
	}
	return *u.PartnerID, true
}

// InvitationStatus is the lifecycle state of a partner invitation
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationRejected  InvitationStatus = "rejected"
	InvitationCancelled InvitationStatus = "cancelled"
)

// PartnerInvitation represents an invitation from one user to another
type PartnerInvitation struct {
	ID            string           `json:"id"`
	SenderID      string           `json:"sender_id"`
	SenderName    string           `json:"inviter_name"`
	SenderEmail   string           `json:"inviter_email"`
	ReceiverID    *string          `json:"receiver_id,omitempty"`
	ReceiverEmail string           `json:"invitee_email"`
	Status        InvitationStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	RespondedAt   *time.Time       `json:"responded_at,omitempty"`
}

// PartnerSummary is the public view of a connected partner
type PartnerSummary struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// PartnerOverview aggregates the partner state of a user
type PartnerOverview struct {
	Status             PartnerStatus        `json:"status"`
	HasPartner         bool                 `json:"has_partner"`
	Partner            *PartnerSummary      `json:"partner"`
	PendingInvitations []*PartnerInvitation `json:"pending_invitations"`
	SentInvitations    []*PartnerInvitation `json:"sent_invitations"`
}

// Message represents a delivered message between two users
type Message struct {
	ID            string    `json:"id"`
	SenderID      string    `json:"sender_id"`
	SenderName    string    `json:"sender_name,omitempty"`
	ReceiverID    string    `json:"recipient_id"`
	ReceiverName  string    `json:"recipient_name,omitempty"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"timestamp"`
	IsRead        bool      `json:"is_read"`
	ScheduledFrom *string   `json:"-"`
	IsScheduled   bool      `json:"is_scheduled"`
}

// ScheduledStatus is the delivery state of a scheduled message
type ScheduledStatus string

const (
	ScheduledPending   ScheduledStatus = "pending"
	ScheduledSent      ScheduledStatus = "sent"
	ScheduledCancelled ScheduledStatus = "cancelled"
	ScheduledFailed    ScheduledStatus = "failed"
)

// ScheduledMessage represents a message waiting for its delivery time
type ScheduledMessage struct {
	ID           string          `json:"id"`
	SenderID     string          `json:"sender_id"`
	ReceiverID   string          `json:"receiver_id"`
	Content      string          `json:"content"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	Status       ScheduledStatus `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	Error        *string         `json:"error,omitempty"`
}

// CalendarEvent represents a shared calendar entry
type CalendarEvent struct {
	ID          string     `json:"id"`
	CreatorID   string     `json:"creator_id"`
	CreatorName string     `json:"creator_name"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Date        string     `json:"date"`
	Time        string     `json:"time"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// DailyQuestion is the reflection prompt a user receives for one day
type DailyQuestion struct {
	UserID        string     `json:"-"`
	Date          string     `json:"date"`
	Question      string     `json:"question"`
	Answer        *string    `json:"answer"`
	Answered      bool       `json:"answered"`
	PartnerAnswer *string    `json:"partner_answer,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	AnsweredAt    *time.Time `json:"answered_at,omitempty"`
}
