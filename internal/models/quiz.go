package models

import (
	"math"
	"sort"
	"time"
)

// QuizStatus is the lifecycle state of a quiz session
type QuizStatus string

const (
	QuizInProgress QuizStatus = "in_progress"
	QuizCompleted  QuizStatus = "completed"
)

// QuizQuestion is a forced-choice question from the question bank
type QuizQuestion struct {
	ID       int      `json:"id" yaml:"id"`
	Question string   `json:"question" yaml:"question"`
	Options  []string `json:"options" yaml:"options"`
	Tag      string   `json:"tag,omitempty" yaml:"tag"`
}

// HasOption reports whether answer is one of the question's options
func (q QuizQuestion) HasOption(answer string) bool {
	for _, opt := range q.Options {
		if opt == answer {
			return true
		}
	}
	return false
}

// QuizCompatibility is the summary stamped when a session completes
type QuizCompatibility struct {
	Matches     int       `json:"matches"`
	Total       int       `json:"total"`
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completed_at"`
}

// QuizSession is a paired round of questions between two partners.
// Responses is keyed by user id, then question id.
type QuizSession struct {
	ID            string
	User1ID       string
	User2ID       string
	Questions     []QuizQuestion
	Responses     map[string]map[int]string
	Status        QuizStatus
	Compatibility *QuizCompatibility
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SortedPair orders two user ids so a pair always has the same identity
func SortedPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// HasParticipant reports whether userID is one of the two partners
func (s *QuizSession) HasParticipant(userID string) bool {
	return userID != "" && (s.User1ID == userID || s.User2ID == userID)
}

// PartnerOf returns the other participant
func (s *QuizSession) PartnerOf(userID string) string {
	if s.User1ID == userID {
		return s.User2ID
	}
	return s.User1ID
}

// Question looks up a sampled question by id
func (s *QuizSession) Question(questionID int) (QuizQuestion, bool) {
	for _, q := range s.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return QuizQuestion{}, false
}

// Answer returns the recorded answer of a user for a question
func (s *QuizSession) Answer(userID string, questionID int) (string, bool) {
	answers, ok := s.Responses[userID]
	if !ok {
		return "", false
	}
	answer, ok := answers[questionID]
	if !ok || answer == "" {
		return "", false
	}
	return answer, true
}

// SetAnswer records or overwrites an answer
func (s *QuizSession) SetAnswer(userID string, questionID int, answer string) {
	if s.Responses == nil {
		s.Responses = make(map[string]map[int]string)
	}
	if s.Responses[userID] == nil {
		s.Responses[userID] = make(map[int]string)
	}
	s.Responses[userID][questionID] = answer
}

// IsComplete reports whether every question has an answer from both users
func (s *QuizSession) IsComplete() bool {
	if len(s.Questions) == 0 {
		return false
	}
	for _, q := range s.Questions {
		if _, ok := s.Answer(s.User1ID, q.ID); !ok {
			return false
		}
		if _, ok := s.Answer(s.User2ID, q.ID); !ok {
			return false
		}
	}
	return true
}

// AwaitingPartnerFor lists question ids answered by exactly one participant
func (s *QuizSession) AwaitingPartnerFor() []int {
	ids := []int{}
	for _, q := range s.Questions {
		_, a := s.Answer(s.User1ID, q.ID)
		_, b := s.Answer(s.User2ID, q.ID)
		if a != b {
			ids = append(ids, q.ID)
		}
	}
	sort.Ints(ids)
	return ids
}

// Finalize moves an in-progress session to completed once both partners
// answered everything. It returns false when nothing changed; a completed
// session keeps its original compatibility summary.
func (s *QuizSession) Finalize(now time.Time) bool {
	if s.Status != QuizInProgress || !s.IsComplete() {
		return false
	}

	matches, total := 0, 0
	for _, q := range s.Questions {
		a, okA := s.Answer(s.User1ID, q.ID)
		b, okB := s.Answer(s.User2ID, q.ID)
		if !okA || !okB {
			continue
		}
		total++
		if a == b {
			matches++
		}
	}

	s.Status = QuizCompleted
	s.Compatibility = &QuizCompatibility{
		Matches:     matches,
		Total:       total,
		Score:       CompatibilityScore(matches, total),
		CompletedAt: now.UTC(),
	}
	s.UpdatedAt = now.UTC()
	return true
}

// CompatibilityScore returns round(100 * matches / total)
func CompatibilityScore(matches, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(matches) / float64(total)))
}

// QuizQuestionView is one question as seen by a participant
type QuizQuestionView struct {
	ID            int      `json:"id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	YourAnswer    *string  `json:"your_answer"`
	PartnerAnswer *string  `json:"partner_answer"`
	IsMatch       *bool    `json:"is_match"`
}

// QuizProgress summarizes answer counts for a participant
type QuizProgress struct {
	YourAnswers        int   `json:"your_answers"`
	PartnerAnswers     int   `json:"partner_answers"`
	TotalQuestions     int   `json:"total_questions"`
	AwaitingPartnerFor []int `json:"awaiting_partner_for"`
}

// QuizSessionView is the participant-specific representation of a session
type QuizSessionView struct {
	ID            string             `json:"id"`
	Status        QuizStatus         `json:"status"`
	PartnerID     string             `json:"partner_id"`
	Questions     []QuizQuestionView `json:"questions"`
	Progress      QuizProgress       `json:"progress"`
	Compatibility *QuizCompatibility `json:"compatibility,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// View renders the session for viewerID. The partner's answer to a question
// is only revealed once the viewer has answered that question too.
func (s *QuizSession) View(viewerID string) *QuizSessionView {
	partnerID := s.PartnerOf(viewerID)
	view := &QuizSessionView{
		ID:        s.ID,
		Status:    s.Status,
		PartnerID: partnerID,
		Questions: make([]QuizQuestionView, 0, len(s.Questions)),
		Progress: QuizProgress{
			TotalQuestions:     len(s.Questions),
			AwaitingPartnerFor: s.AwaitingPartnerFor(),
		},
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}

	for _, q := range s.Questions {
		qv := QuizQuestionView{
			ID:       q.ID,
			Question: q.Question,
			Options:  q.Options,
		}
		mine, okMine := s.Answer(viewerID, q.ID)
		theirs, okTheirs := s.Answer(partnerID, q.ID)
		if okMine {
			view.Progress.YourAnswers++
			qv.YourAnswer = &mine
		}
		if okTheirs {
			view.Progress.PartnerAnswers++
		}
		if okMine && okTheirs {
			qv.PartnerAnswer = &theirs
			match := mine == theirs
			qv.IsMatch = &match
		}
		view.Questions = append(view.Questions, qv)
	}

	if s.Status == QuizCompleted && s.Compatibility != nil {
		c := *s.Compatibility
		view.Compatibility = &c
	}
	return view
}

// QuizStatusSummary aggregates a user's quiz history
type QuizStatusSummary struct {
	TotalSessions     int        `json:"total_sessions"`
	CompletedSessions int        `json:"completed_sessions"`
	ActiveSessionID   *string    `json:"active_session_id"`
	LastScore         *int       `json:"last_score"`
	LastCompletedAt   *time.Time `json:"last_completed_at"`
	AverageScore      *float64   `json:"average_score"`
	QuestionBankSize  int        `json:"question_bank_size"`
	DefaultBatchSizes []int      `json:"default_batch_sizes"`
}

// SummarizeQuizHistory derives the status summary by scanning sessions
func SummarizeQuizHistory(sessions []*QuizSession, bankSize int, batchSizes []int) *QuizStatusSummary {
	summary := &QuizStatusSummary{
		TotalSessions:     len(sessions),
		QuestionBankSize:  bankSize,
		DefaultBatchSizes: batchSizes,
	}

	var latest *QuizCompatibility
	sum := 0
	for _, s := range sessions {
		switch s.Status {
		case QuizInProgress:
			if summary.ActiveSessionID == nil {
				id := s.ID
				summary.ActiveSessionID = &id
			}
		case QuizCompleted:
			if s.Compatibility == nil {
				continue
			}
			summary.CompletedSessions++
			sum += s.Compatibility.Score
			if latest == nil || s.Compatibility.CompletedAt.After(latest.CompletedAt) {
				latest = s.Compatibility
			}
		}
	}

	if latest != nil {
		score := latest.Score
		at := latest.CompletedAt
		summary.LastScore = &score
		summary.LastCompletedAt = &at
	}
	if summary.CompletedSessions > 0 {
		avg := math.Round(float64(sum)/float64(summary.CompletedSessions)*100) / 100
		summary.AverageScore = &avg
	}
	return summary
}
