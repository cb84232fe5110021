// Package testfixtures provides in-memory stores, a controllable clock and
// recording fakes for service and handler tests.
package testfixtures

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"together-backend/internal/models"
	"together-backend/internal/repository"

	"github.com/google/uuid"
)

// DB is an in-memory backing store shared by the per-entity stores. It
// mirrors the guarded updates of the PostgreSQL repositories.
type DB struct {
	mu          sync.Mutex
	users       map[string]*models.User
	invitations map[string]*models.PartnerInvitation
	quizzes     map[string]*models.QuizSession
	messages    []*models.Message
	scheduled   map[string]*models.ScheduledMessage
	events      map[string]*models.CalendarEvent
	daily       map[string]*models.DailyQuestion
	samples     map[string][]sample
	profiles    map[string]*models.StyleProfile
	suggestions map[string]*models.SuggestionSet
	activity    []*models.ActivityEvent
	actions     []*models.AgentAction
	feedback    []*models.ActionFeedback

	// FailDeliver makes DeliverScheduled return this error when set
	FailDeliver error
}

type sample struct {
	content string
	at      time.Time
}

// NewDB creates an empty store
func NewDB() *DB {
	return &DB{
		users:       map[string]*models.User{},
		invitations: map[string]*models.PartnerInvitation{},
		quizzes:     map[string]*models.QuizSession{},
		scheduled:   map[string]*models.ScheduledMessage{},
		events:      map[string]*models.CalendarEvent{},
		daily:       map[string]*models.DailyQuestion{},
		samples:     map[string][]sample{},
		profiles:    map[string]*models.StyleProfile{},
		suggestions: map[string]*models.SuggestionSet{},
	}
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func copyInvitation(i *models.PartnerInvitation) *models.PartnerInvitation {
	c := *i
	return &c
}

func copySession(s *models.QuizSession) *models.QuizSession {
	c := *s
	c.Questions = append([]models.QuizQuestion(nil), s.Questions...)
	c.Responses = make(map[string]map[int]string, len(s.Responses))
	for user, answers := range s.Responses {
		m := make(map[int]string, len(answers))
		for q, a := range answers {
			m[q] = a
		}
		c.Responses[user] = m
	}
	if s.Compatibility != nil {
		comp := *s.Compatibility
		c.Compatibility = &comp
	}
	return &c
}

// Users returns the user store view
func (db *DB) Users() *Users { return &Users{db: db} }

// Partners returns the partner store view
func (db *DB) Partners() *Partners { return &Partners{db: db} }

// Quizzes returns the quiz store view
func (db *DB) Quizzes() *Quizzes { return &Quizzes{db: db} }

// Messages returns the message store view
func (db *DB) Messages() *Messages { return &Messages{db: db} }

// Calendar returns the calendar store view
func (db *DB) Calendar() *Calendar { return &Calendar{db: db} }

// DailyQuestions returns the daily question store view
func (db *DB) DailyQuestions() *DailyQuestions { return &DailyQuestions{db: db} }

// Agent returns the agent store view
func (db *DB) Agent() *Agent { return &Agent{db: db} }

// Activity returns the agent activity and action store
func (db *DB) Activity() *Activity { return &Activity{db: db} }

// AddUser inserts a user with sensible defaults and returns it
func (db *DB) AddUser(id, name, email string) *models.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	u := &models.User{
		ID:                 id,
		Name:               name,
		Email:              email,
		InviteCode:         fmt.Sprintf("C%05d", len(db.users)+1),
		PartnerStatus:      models.PartnerStatusNone,
		EmailNotifications: true,
	}
	db.users[id] = u
	return copyUser(u)
}

// Link connects two users directly
func (db *DB) Link(a, b string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[a].PartnerID = &b
	db.users[a].PartnerStatus = models.PartnerStatusConnected
	db.users[b].PartnerID = &a
	db.users[b].PartnerStatus = models.PartnerStatusConnected
}

// QuizSessions returns copies of every stored session
func (db *DB) QuizSessions() []*models.QuizSession {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := []*models.QuizSession{}
	for _, s := range db.quizzes {
		out = append(out, copySession(s))
	}
	return out
}

// AllMessages returns copies of every delivered message in insertion order
func (db *DB) AllMessages() []*models.Message {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*models.Message, 0, len(db.messages))
	for _, m := range db.messages {
		c := *m
		out = append(out, &c)
	}
	return out
}

// refresh recomputes partner_status; the caller holds the lock
func (db *DB) refresh(ids ...string) {
	for _, id := range ids {
		u, ok := db.users[id]
		if !ok {
			continue
		}
		switch {
		case u.PartnerID != nil:
			u.PartnerStatus = models.PartnerStatusConnected
		case db.hasPending(u):
			u.PartnerStatus = models.PartnerStatusPending
		default:
			u.PartnerStatus = models.PartnerStatusNone
		}
	}
}

func (db *DB) hasPending(u *models.User) bool {
	for _, inv := range db.invitations {
		if inv.Status != models.InvitationPending {
			continue
		}
		if inv.SenderID == u.ID || inv.ReceiverEmail == u.Email || (inv.ReceiverID != nil && *inv.ReceiverID == u.ID) {
			return true
		}
	}
	return false
}

// Users implements the user store
type Users struct{ db *DB }

func (s *Users) Create(_ context.Context, user *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if u.Email == user.Email {
			return fmt.Errorf("create user: %w", repository.ErrDuplicate)
		}
	}
	s.db.users[user.ID] = copyUser(user)
	return nil
}

func (s *Users) GetByID(_ context.Context, id string) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, notFound("get user")
	}
	return copyUser(u), nil
}

func (s *Users) find(match func(*models.User) bool) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, notFound("find user")
}

func (s *Users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return u.Email == email })
}

func (s *Users) GetByInviteCode(_ context.Context, code string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return u.InviteCode == code })
}

func (s *Users) InviteCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := s.GetByInviteCode(ctx, code)
	return err == nil, nil
}

func (s *Users) update(id string, fn func(*models.User)) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return notFound("update user")
	}
	fn(u)
	return nil
}

func (s *Users) UpdateName(_ context.Context, userID, name string, now time.Time) error {
	return s.update(userID, func(u *models.User) { u.Name, u.UpdatedAt = name, now })
}

func (s *Users) UpdatePassword(_ context.Context, userID, hash string, now time.Time) error {
	return s.update(userID, func(u *models.User) { u.PasswordHash, u.UpdatedAt = hash, now })
}

func (s *Users) UpdateEmailNotifications(_ context.Context, userID string, enabled bool, now time.Time) error {
	return s.update(userID, func(u *models.User) { u.EmailNotifications, u.UpdatedAt = enabled, now })
}

func (s *Users) UpdatePushToken(_ context.Context, userID string, pushToken *string, now time.Time) error {
	return s.update(userID, func(u *models.User) { u.PushToken, u.UpdatedAt = pushToken, now })
}

func (s *Users) UpdateAvatarURL(_ context.Context, userID, url string, now time.Time) error {
	return s.update(userID, func(u *models.User) { u.AvatarURL, u.UpdatedAt = &url, now })
}

func (s *Users) RefreshPartnerStatus(_ context.Context, userIDs ...string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.refresh(userIDs...)
	return nil
}

// Partners implements the partner store
type Partners struct{ db *DB }

func (s *Partners) CreateInvitation(_ context.Context, inv *models.PartnerInvitation) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.invitations[inv.ID] = copyInvitation(inv)
	return nil
}

func (s *Partners) GetInvitation(_ context.Context, id string) (*models.PartnerInvitation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	inv, ok := s.db.invitations[id]
	if !ok {
		return nil, notFound("get invitation")
	}
	return copyInvitation(inv), nil
}

func (s *Partners) list(match func(*models.PartnerInvitation) bool) []*models.PartnerInvitation {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []*models.PartnerInvitation{}
	for _, inv := range s.db.invitations {
		if match(inv) {
			out = append(out, copyInvitation(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Partners) FindPendingInvitation(_ context.Context, senderID, receiverEmail string) (*models.PartnerInvitation, error) {
	found := s.list(func(i *models.PartnerInvitation) bool {
		return i.Status == models.InvitationPending && i.SenderID == senderID && i.ReceiverEmail == receiverEmail
	})
	if len(found) == 0 {
		return nil, notFound("find pending invitation")
	}
	return found[0], nil
}

func (s *Partners) ListReceivedInvitations(_ context.Context, userID, email string) ([]*models.PartnerInvitation, error) {
	return s.list(func(i *models.PartnerInvitation) bool {
		return i.Status == models.InvitationPending &&
			((i.ReceiverID != nil && *i.ReceiverID == userID) || i.ReceiverEmail == email)
	}), nil
}

func (s *Partners) ListSentInvitations(_ context.Context, userID string) ([]*models.PartnerInvitation, error) {
	return s.list(func(i *models.PartnerInvitation) bool {
		return i.Status == models.InvitationPending && i.SenderID == userID
	}), nil
}

func (s *Partners) AttachInvitations(_ context.Context, email, userID string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, inv := range s.db.invitations {
		if inv.ReceiverEmail == email && inv.ReceiverID == nil {
			id := userID
			inv.ReceiverID = &id
			n++
		}
	}
	return n, nil
}

func (s *Partners) RespondInvitation(_ context.Context, id string, status models.InvitationStatus, now time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	inv, ok := s.db.invitations[id]
	if !ok || inv.Status != models.InvitationPending {
		return fmt.Errorf("respond invitation: %w", repository.ErrStateChanged)
	}
	inv.Status = status
	inv.RespondedAt = &now
	return nil
}

func (s *Partners) AcceptInvitation(_ context.Context, id string, now time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	inv, ok := s.db.invitations[id]
	if !ok {
		return notFound("lock invitation")
	}
	if inv.Status != models.InvitationPending || inv.ReceiverID == nil {
		return fmt.Errorf("accept invitation: %w", repository.ErrStateChanged)
	}
	sender, okS := s.db.users[inv.SenderID]
	receiver, okR := s.db.users[*inv.ReceiverID]
	if !okS || !okR {
		return notFound("accept invitation")
	}
	if sender.PartnerID != nil || receiver.PartnerID != nil {
		return fmt.Errorf("accept invitation: %w", repository.ErrAlreadyLinked)
	}

	sender.PartnerID = &receiver.ID
	receiver.PartnerID = &sender.ID
	inv.Status = models.InvitationAccepted
	inv.RespondedAt = &now

	affected := []string{sender.ID, receiver.ID}
	for _, other := range s.db.invitations {
		if other.ID == id || other.Status != models.InvitationPending {
			continue
		}
		involved := other.SenderID == sender.ID || other.SenderID == receiver.ID ||
			other.ReceiverEmail == sender.Email || other.ReceiverEmail == receiver.Email ||
			(other.ReceiverID != nil && (*other.ReceiverID == sender.ID || *other.ReceiverID == receiver.ID))
		if !involved {
			continue
		}
		other.Status = models.InvitationCancelled
		other.RespondedAt = &now
		affected = append(affected, other.SenderID)
		if other.ReceiverID != nil {
			affected = append(affected, *other.ReceiverID)
		}
	}
	s.db.refresh(affected...)
	return nil
}

func (s *Partners) Unlink(_ context.Context, userID string, now time.Time) (string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[userID]
	if !ok {
		return "", notFound("lock user")
	}
	if u.PartnerID == nil {
		return "", notFound("unlink")
	}
	partnerID := *u.PartnerID
	u.PartnerID = nil
	u.UpdatedAt = now
	if p, ok := s.db.users[partnerID]; ok {
		p.PartnerID = nil
		p.UpdatedAt = now
	}
	s.db.refresh(userID, partnerID)
	return partnerID, nil
}

// Quizzes implements the quiz store
type Quizzes struct{ db *DB }

func (s *Quizzes) GetByID(_ context.Context, id string) (*models.QuizSession, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	q, ok := s.db.quizzes[id]
	if !ok {
		return nil, notFound("get quiz session")
	}
	return copySession(q), nil
}

func (s *Quizzes) activeFor(match func(*models.QuizSession) bool) *models.QuizSession {
	var found *models.QuizSession
	for _, q := range s.db.quizzes {
		if q.Status == models.QuizInProgress && match(q) {
			if found == nil || q.CreatedAt.After(found.CreatedAt) {
				found = q
			}
		}
	}
	return found
}

func (s *Quizzes) ActiveForPair(_ context.Context, user1ID, user2ID string) (*models.QuizSession, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	q := s.activeFor(func(q *models.QuizSession) bool { return q.User1ID == user1ID && q.User2ID == user2ID })
	if q == nil {
		return nil, notFound("active quiz for pair")
	}
	return copySession(q), nil
}

func (s *Quizzes) ActiveForUser(_ context.Context, userID string) (*models.QuizSession, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	q := s.activeFor(func(q *models.QuizSession) bool { return q.HasParticipant(userID) })
	if q == nil {
		return nil, notFound("active quiz for user")
	}
	return copySession(q), nil
}

func (s *Quizzes) CreateIfNoActive(_ context.Context, session *models.QuizSession) (*models.QuizSession, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if existing := s.activeFor(func(q *models.QuizSession) bool {
		return q.User1ID == session.User1ID && q.User2ID == session.User2ID
	}); existing != nil {
		return copySession(existing), false, nil
	}
	s.db.quizzes[session.ID] = copySession(session)
	return copySession(session), true, nil
}

func (s *Quizzes) ListForUser(_ context.Context, userID string) ([]*models.QuizSession, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []*models.QuizSession{}
	for _, q := range s.db.quizzes {
		if q.HasParticipant(userID) {
			out = append(out, copySession(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Quizzes) RecordAnswer(_ context.Context, sessionID, userID string, questionID int, answer string, now time.Time) (*models.QuizSession, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	q, ok := s.db.quizzes[sessionID]
	if !ok {
		return nil, notFound("lock quiz session")
	}
	if q.Status != models.QuizInProgress {
		return nil, fmt.Errorf("record answer: %w", repository.ErrStateChanged)
	}
	q.SetAnswer(userID, questionID, answer)
	if !q.Finalize(now) {
		q.UpdatedAt = now
	}
	return copySession(q), nil
}

// Messages implements the message store
type Messages struct{ db *DB }

func (s *Messages) Create(_ context.Context, m *models.Message) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c := *m
	s.db.messages = append(s.db.messages, &c)
	return nil
}

func (s *Messages) filter(match func(*models.Message) bool, newestFirst bool) []*models.Message {
	out := []*models.Message{}
	for _, m := range s.db.messages {
		if match(m) {
			c := *m
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Messages) ListRecent(_ context.Context, userID string, limit int) ([]*models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := s.filter(func(m *models.Message) bool { return m.SenderID == userID || m.ReceiverID == userID }, true)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Messages) Conversation(_ context.Context, userID, partnerID string) ([]*models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.filter(func(m *models.Message) bool {
		return (m.SenderID == userID && m.ReceiverID == partnerID) || (m.SenderID == partnerID && m.ReceiverID == userID)
	}, false), nil
}

func (s *Messages) MarkRead(_ context.Context, receiverID, senderID string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, m := range s.db.messages {
		if m.ReceiverID == receiverID && m.SenderID == senderID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *Messages) UnreadCount(_ context.Context, userID string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, m := range s.db.messages {
		if m.ReceiverID == userID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *Messages) CreateScheduled(_ context.Context, sm *models.ScheduledMessage) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c := *sm
	s.db.scheduled[sm.ID] = &c
	return nil
}

func (s *Messages) GetScheduled(_ context.Context, id string) (*models.ScheduledMessage, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	sm, ok := s.db.scheduled[id]
	if !ok {
		return nil, notFound("get scheduled message")
	}
	c := *sm
	return &c, nil
}

func (s *Messages) listScheduled(match func(*models.ScheduledMessage) bool) []*models.ScheduledMessage {
	out := []*models.ScheduledMessage{}
	for _, sm := range s.db.scheduled {
		if match(sm) {
			c := *sm
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out
}

func (s *Messages) ListScheduled(_ context.Context, senderID string) ([]*models.ScheduledMessage, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.listScheduled(func(sm *models.ScheduledMessage) bool {
		return sm.SenderID == senderID && sm.Status == models.ScheduledPending
	}), nil
}

func (s *Messages) DueScheduled(_ context.Context, now time.Time, limit int) ([]*models.ScheduledMessage, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := s.listScheduled(func(sm *models.ScheduledMessage) bool {
		return sm.Status == models.ScheduledPending && !sm.ScheduledFor.After(now)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Messages) whilePending(id string, fn func(*models.ScheduledMessage)) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	sm, ok := s.db.scheduled[id]
	if !ok || sm.Status != models.ScheduledPending {
		return fmt.Errorf("scheduled message: %w", repository.ErrStateChanged)
	}
	fn(sm)
	return nil
}

func (s *Messages) UpdateScheduled(_ context.Context, sm *models.ScheduledMessage) error {
	return s.whilePending(sm.ID, func(stored *models.ScheduledMessage) {
		stored.Content = sm.Content
		stored.ScheduledFor = sm.ScheduledFor
		stored.UpdatedAt = sm.UpdatedAt
	})
}

func (s *Messages) CancelScheduled(_ context.Context, id string, now time.Time) error {
	return s.whilePending(id, func(stored *models.ScheduledMessage) {
		stored.Status = models.ScheduledCancelled
		stored.CancelledAt = &now
		stored.UpdatedAt = now
	})
}

func (s *Messages) MarkScheduledFailed(_ context.Context, id, reason string, now time.Time) error {
	return s.whilePending(id, func(stored *models.ScheduledMessage) {
		stored.Status = models.ScheduledFailed
		stored.Error = &reason
		stored.UpdatedAt = now
	})
}

func (s *Messages) DeliverScheduled(_ context.Context, sm *models.ScheduledMessage, m *models.Message, now time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.FailDeliver != nil {
		return s.db.FailDeliver
	}
	stored, ok := s.db.scheduled[sm.ID]
	if !ok || stored.Status != models.ScheduledPending {
		return fmt.Errorf("deliver scheduled message: %w", repository.ErrStateChanged)
	}
	stored.Status = models.ScheduledSent
	stored.SentAt = &now
	stored.UpdatedAt = now
	c := *m
	s.db.messages = append(s.db.messages, &c)
	return nil
}

// Calendar implements the calendar store
type Calendar struct{ db *DB }

func (s *Calendar) Create(_ context.Context, e *models.CalendarEvent) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c := *e
	s.db.events[e.ID] = &c
	return nil
}

func (s *Calendar) GetByID(_ context.Context, id string) (*models.CalendarEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.events[id]
	if !ok {
		return nil, notFound("get event")
	}
	c := *e
	return &c, nil
}

func (s *Calendar) Delete(_ context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.events[id]; !ok {
		return notFound("delete event")
	}
	delete(s.db.events, id)
	return nil
}

func (s *Calendar) List(_ context.Context, creatorIDs []string, from, to *time.Time) ([]*models.CalendarEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	creators := map[string]bool{}
	for _, id := range creatorIDs {
		creators[id] = true
	}
	out := []*models.CalendarEvent{}
	for _, e := range s.db.events {
		if !creators[e.CreatorID] {
			continue
		}
		if from != nil && to != nil {
			inRange := e.StartTime != nil && !e.StartTime.Before(*from) && e.StartTime.Before(*to)
			if !inRange {
				continue
			}
		}
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].StartTime, out[j].StartTime
		if a == nil || b == nil {
			return a != nil
		}
		return a.Before(*b)
	})
	return out, nil
}

// DailyQuestions implements the daily question store
type DailyQuestions struct{ db *DB }

func dailyKey(userID, date string) string {
	return userID + "|" + date
}

func (s *DailyQuestions) GetOrCreate(ctx context.Context, q *models.DailyQuestion) (*models.DailyQuestion, error) {
	s.db.mu.Lock()
	key := dailyKey(q.UserID, q.Date)
	if _, ok := s.db.daily[key]; !ok {
		c := *q
		s.db.daily[key] = &c
	}
	s.db.mu.Unlock()
	return s.Get(ctx, q.UserID, q.Date)
}

func (s *DailyQuestions) Get(_ context.Context, userID, date string) (*models.DailyQuestion, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	q, ok := s.db.daily[dailyKey(userID, date)]
	if !ok {
		return nil, notFound("get daily question")
	}
	c := *q
	return &c, nil
}

func (s *DailyQuestions) SaveAnswer(_ context.Context, userID, date, answer string, now time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	q, ok := s.db.daily[dailyKey(userID, date)]
	if !ok {
		return notFound("save daily answer")
	}
	q.Answer = &answer
	q.Answered = true
	q.AnsweredAt = &now
	return nil
}

func (s *DailyQuestions) ListAnswered(_ context.Context, userID string, limit int) ([]*models.DailyQuestion, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []*models.DailyQuestion{}
	for _, q := range s.db.daily {
		if q.UserID == userID && q.Answered {
			c := *q
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Agent implements the agent store
type Agent struct{ db *DB }

func (s *Agent) AddStyleSample(_ context.Context, userID, content string, now time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.samples[userID] = append(s.db.samples[userID], sample{content: content, at: now})
	return nil
}

func (s *Agent) RecentWriting(_ context.Context, userID string, limit int) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	samples := s.db.samples[userID]
	out := []string{}
	for i := len(samples) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, samples[i].content)
	}
	return out, nil
}

func (s *Agent) GetStyleProfile(_ context.Context, userID string) (*models.StyleProfile, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.profiles[userID]
	if !ok {
		return nil, notFound("get style profile")
	}
	c := *p
	return &c, nil
}

func (s *Agent) SaveStyleProfile(_ context.Context, profile *models.StyleProfile) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c := *profile
	c.Cached = false
	s.db.profiles[profile.UserID] = &c
	return nil
}

func (s *Agent) GetSuggestions(_ context.Context, userID string) (*models.SuggestionSet, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	set, ok := s.db.suggestions[userID]
	if !ok {
		return nil, notFound("get suggestions")
	}
	c := *set
	c.Suggestions = append([]models.Suggestion(nil), set.Suggestions...)
	return &c, nil
}

func (s *Agent) SaveSuggestions(_ context.Context, set *models.SuggestionSet) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c := *set
	c.Cached = false
	c.Suggestions = append([]models.Suggestion(nil), set.Suggestions...)
	s.db.suggestions[set.UserID] = &c
	return nil
}

// Activity implements services.ActivityStore and services.ActionStore
type Activity struct{ db *DB }

func copyActivity(e *models.ActivityEvent) *models.ActivityEvent {
	c := *e
	if e.ProcessedAt != nil {
		at := *e.ProcessedAt
		c.ProcessedAt = &at
	}
	return &c
}

func copyAction(a *models.AgentAction) *models.AgentAction {
	c := *a
	if a.CompletedAt != nil {
		at := *a.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

func (s *Activity) RecordActivity(_ context.Context, e *models.ActivityEvent) (*models.ActivityEvent, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if e.DedupeKey != "" {
		for _, stored := range s.db.activity {
			if stored.DedupeKey == e.DedupeKey {
				return copyActivity(stored), false, nil
			}
		}
	}
	c := copyActivity(e)
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Payload == nil {
		c.Payload = map[string]any{}
	}
	s.db.activity = append(s.db.activity, c)
	return copyActivity(c), true, nil
}

func (s *Activity) ListActivity(_ context.Context, f models.ActivityFilter) ([]*models.ActivityEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []*models.ActivityEvent{}
	for _, e := range s.db.activity {
		switch {
		case f.UserID != "" && e.UserID != f.UserID:
		case f.Scenario != "" && e.Scenario != f.Scenario:
		case f.Since != nil && e.OccurredAt.Before(*f.Since):
		case !f.IncludeProcessed && e.Processed:
		default:
			out = append(out, copyActivity(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if f.OldestFirst {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Activity) MarkProcessed(_ context.Context, ids []string, now time.Time) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	claimed := []string{}
	for _, e := range s.db.activity {
		if wanted[e.ID] && !e.Processed {
			at := now
			e.Processed = true
			e.ProcessedAt = &at
			claimed = append(claimed, e.ID)
		}
	}
	return claimed, nil
}

func (s *Activity) PruneActivity(_ context.Context, before time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	kept := s.db.activity[:0]
	var removed int64
	for _, e := range s.db.activity {
		if e.Processed && e.RecordedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.db.activity = kept
	return removed, nil
}

func (s *Activity) EnqueueActions(_ context.Context, actions []*models.AgentAction) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, a := range actions {
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		s.db.actions = append(s.db.actions, copyAction(a))
	}
	return nil
}

func (s *Activity) findAction(id string) *models.AgentAction {
	for _, a := range s.db.actions {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (s *Activity) GetAction(_ context.Context, id string) (*models.AgentAction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a := s.findAction(id)
	if a == nil {
		return nil, notFound("get action")
	}
	return copyAction(a), nil
}

func (s *Activity) ListActions(_ context.Context, userID string, includeDone bool, limit int) ([]*models.AgentAction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []*models.AgentAction{}
	for i := len(s.db.actions) - 1; i >= 0; i-- {
		a := s.db.actions[i]
		if a.UserID == userID && (includeDone || a.Status == models.ActionPending) {
			out = append(out, copyAction(a))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Activity) ClaimAction(_ context.Context, id string, now time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a := s.findAction(id)
	if a == nil || a.Status != models.ActionPending {
		return fmt.Errorf("claim action: %w", repository.ErrStateChanged)
	}
	a.Status = models.ActionExecuting
	a.UpdatedAt = now
	return nil
}

func (s *Activity) FinishAction(_ context.Context, action *models.AgentAction, from models.ActionStatus) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a := s.findAction(action.ID)
	if a == nil || a.Status != from {
		return fmt.Errorf("finish action: %w", repository.ErrStateChanged)
	}
	a.Status = action.Status
	a.Result = action.Result
	a.Error = action.Error
	a.UpdatedAt = action.UpdatedAt
	a.CompletedAt = action.CompletedAt
	return nil
}

func (s *Activity) RecordFeedback(_ context.Context, f *models.ActionFeedback) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	c := *f
	s.db.feedback = append(s.db.feedback, &c)
	return nil
}

// Feedback returns every stored action feedback in insertion order
func (db *DB) Feedback() []*models.ActionFeedback {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*models.ActionFeedback, 0, len(db.feedback))
	for _, f := range db.feedback {
		c := *f
		out = append(out, &c)
	}
	return out
}

// ActivityEvents returns every stored activity event in insertion order
func (db *DB) ActivityEvents() []*models.ActivityEvent {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*models.ActivityEvent, 0, len(db.activity))
	for _, e := range db.activity {
		out = append(out, copyActivity(e))
	}
	return out
}
