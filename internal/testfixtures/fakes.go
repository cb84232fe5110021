package testfixtures

import (
	"context"
	"sync"
	"time"

	"together-backend/internal/models"
	"together-backend/internal/services"
)

// Clock is a settable time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at t
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Notification is one recorded notifier call
type Notification struct {
	Kind      string
	SenderID  string
	Recipient string
	MessageID string
}

// Notifier records notifier calls
type Notifier struct {
	mu    sync.Mutex
	calls []Notification
}

func (n *Notifier) record(call Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, call)
}

// Calls returns the recorded calls in order
func (n *Notifier) Calls() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.calls...)
}

func (n *Notifier) MessageReceived(_ context.Context, sender, receiver *models.User, m *models.Message) {
	n.record(Notification{Kind: "message_received", SenderID: sender.ID, Recipient: receiver.ID, MessageID: m.ID})
}

func (n *Notifier) InvitationSent(_ context.Context, sender, _ *models.User, receiverEmail string) {
	n.record(Notification{Kind: "invitation_sent", SenderID: sender.ID, Recipient: receiverEmail})
}

func (n *Notifier) InvitationAccepted(_ context.Context, accepter, sender *models.User) {
	n.record(Notification{Kind: "invitation_accepted", SenderID: accepter.ID, Recipient: sender.ID})
}

// Realtime records pushes to users marked online
type Realtime struct {
	mu     sync.Mutex
	online map[string]bool
	sent   map[string][]services.WSMessage
}

// NewRealtime creates a realtime fake with the given users online
func NewRealtime(online ...string) *Realtime {
	r := &Realtime{online: map[string]bool{}, sent: map[string][]services.WSMessage{}}
	for _, id := range online {
		r.online[id] = true
	}
	return r
}

func (r *Realtime) SendToUser(userID string, message services.WSMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[userID] = append(r.sent[userID], message)
	return nil
}

func (r *Realtime) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online[userID]
}

// Sent returns the messages pushed to a user
func (r *Realtime) Sent(userID string) []services.WSMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]services.WSMessage(nil), r.sent[userID]...)
}

// Types returns the event types pushed to a user in order
func (r *Realtime) Types(userID string) []string {
	types := []string{}
	for _, m := range r.Sent(userID) {
		types = append(types, m.Type)
	}
	return types
}
