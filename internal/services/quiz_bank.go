package services

import (
	_ "embed"
	"fmt"
	"math/rand/v2"

	"together-backend/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed quiz_questions.yaml
var quizQuestionsYAML []byte

// DefaultBatchSizes are the session lengths offered to clients
var DefaultBatchSizes = []int{10, 15, 20}

const defaultQuestionCount = 10

// QuizBank is the immutable table of forced-choice questions
type QuizBank struct {
	questions []models.QuizQuestion
	byID      map[int]models.QuizQuestion
}

// LoadQuizBank parses the embedded question bank
func LoadQuizBank() (*QuizBank, error) {
	return ParseQuizBank(quizQuestionsYAML)
}

// ParseQuizBank builds a bank from YAML, rejecting duplicate ids and
// questions with fewer than two options
func ParseQuizBank(data []byte) (*QuizBank, error) {
	var questions []models.QuizQuestion
	if err := yaml.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("question bank is empty")
	}

	byID := make(map[int]models.QuizQuestion, len(questions))
	for _, q := range questions {
		if _, dup := byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %d", q.ID)
		}
		if q.Question == "" || len(q.Options) < 2 {
			return nil, fmt.Errorf("question %d needs text and at least two options", q.ID)
		}
		byID[q.ID] = q
	}
	return &QuizBank{questions: questions, byID: byID}, nil
}

// Size returns the number of questions in the bank
func (b *QuizBank) Size() int {
	return len(b.questions)
}

// Questions returns a copy of every question in bank order
func (b *QuizBank) Questions() []models.QuizQuestion {
	out := make([]models.QuizQuestion, len(b.questions))
	copy(out, b.questions)
	return out
}

// Get looks up a question by id
func (b *QuizBank) Get(id int) (models.QuizQuestion, bool) {
	q, ok := b.byID[id]
	return q, ok
}

// Sample draws n questions without replacement
func (b *QuizBank) Sample(n int) []models.QuizQuestion {
	if n > len(b.questions) {
		n = len(b.questions)
	}
	picked := make([]models.QuizQuestion, 0, n)
	for _, i := range rand.Perm(len(b.questions))[:n] {
		picked = append(picked, b.questions[i])
	}
	return picked
}

// Select returns the questions with the given ids in the given order
func (b *QuizBank) Select(ids []int) ([]models.QuizQuestion, error) {
	if len(ids) == 0 {
		return nil, invalid("question_ids must not be empty")
	}
	seen := make(map[int]bool, len(ids))
	picked := make([]models.QuizQuestion, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, invalid("duplicate question id %d", id)
		}
		seen[id] = true
		q, ok := b.byID[id]
		if !ok {
			return nil, invalid("unknown question id %d", id)
		}
		picked = append(picked, q)
	}
	return picked, nil
}
