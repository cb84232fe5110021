package models

import "time"

// ResultSource tags whether agent output came from the language model or
// from the deterministic fallback
type ResultSource string

const (
	SourceModel     ResultSource = "model"
	SourceHeuristic ResultSource = "heuristic"
)

// WordCount is a ranked word frequency
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// EmojiCount is a ranked emoji frequency
type EmojiCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// StyleProfile is a lightweight fingerprint of how a user writes
type StyleProfile struct {
	UserID            string         `json:"user_id"`
	MessageCount      int            `json:"message_count"`
	AverageLength     float64        `json:"average_length"`
	AverageWords      float64        `json:"average_words"`
	EmojiDensity      float64        `json:"emoji_density"`
	EmojiFrequency    []EmojiCount   `json:"emoji_frequency"`
	PunctuationUsage  map[string]int `json:"punctuation_usage"`
	TopWords          []WordCount    `json:"top_words"`
	SignatureExamples []string       `json:"signature_examples"`
	StyleSummary      string         `json:"style_summary"`
	KeyTraits         []string       `json:"key_traits,omitempty"`
	Source            ResultSource   `json:"source"`
	Cached            bool           `json:"cached"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Suggestion is a coaching card shown to a user
type Suggestion struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Summary     string            `json:"summary"`
	Confidence  *float64          `json:"confidence"`
	GeneratedAt time.Time         `json:"generated_at"`
	Payload     map[string]string `json:"payload"`
	Source      ResultSource      `json:"source"`
}

// SuggestionSet is the cached list of suggestions for a user
type SuggestionSet struct {
	UserID      string       `json:"-"`
	Suggestions []Suggestion `json:"suggestions"`
	CreatedAt   time.Time    `json:"created_at"`
	Cached      bool         `json:"cached"`
}

// MessageLength holds size metrics of a draft
type MessageLength struct {
	Characters int `json:"characters"`
	Words      int `json:"words"`
}

// ToneMetrics are the baseline measurements computed for every draft
type ToneMetrics struct {
	Length           MessageLength  `json:"length"`
	EmojiCount       int            `json:"emoji_count"`
	Punctuation      map[string]int `json:"punctuation"`
	Sentiment        string         `json:"sentiment"`
	Confidence       float64        `json:"confidence"`
	Keywords         []string       `json:"keywords"`
	EmotionalDrivers []string       `json:"emotional_drivers,omitempty"`
}

// ToneAnalysis is the result of analyzing a message draft
type ToneAnalysis struct {
	Analysis       ToneMetrics   `json:"analysis"`
	Strengths      []string      `json:"strengths"`
	Tips           []string      `json:"tips"`
	Feedback       string        `json:"feedback,omitempty"`
	SuggestedReply string        `json:"suggested_reply,omitempty"`
	Warnings       []string      `json:"warnings,omitempty"`
	StyleProfile   *StyleProfile `json:"style_profile,omitempty"`
	Source         ResultSource  `json:"source"`
	Cached         bool          `json:"cached"`
	GeneratedAt    time.Time     `json:"generated_at"`
}
