package agent

import (
	"strings"
	"time"
	"unicode/utf8"

	"together-backend/internal/models"
)

const keywordLimit = 6

var (
	positiveWords = map[string]bool{
		"love": true, "happy": true, "great": true, "excited": true, "grateful": true,
		"proud": true, "amazing": true, "wonderful": true, "appreciate": true, "best": true,
	}
	negativeWords = map[string]bool{
		"sad": true, "angry": true, "upset": true, "tired": true, "frustrated": true,
		"worried": true, "anxious": true, "awful": true, "depressed": true, "lonely": true,
	}
)

// Sentiment labels
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
	SentimentMixed    = "mixed"
)

// BaselineMetrics measures a draft without any model involvement
func BaselineMetrics(text string) models.ToneMetrics {
	words := Words(text)

	punctuation := make(map[string]int)
	for _, r := range text {
		switch r {
		case '!', '?', '.', ',':
			punctuation[string(r)]++
		}
	}

	keywords := newCounter()
	for _, w := range words {
		if utf8.RuneCountInString(w) > 3 {
			keywords.add(w, 1)
		}
	}

	return models.ToneMetrics{
		Length: models.MessageLength{
			Characters: utf8.RuneCountInString(text),
			Words:      len(words),
		},
		EmojiCount:  len(Emojis(text)),
		Punctuation: punctuation,
		Keywords:    keywords.top(keywordLimit),
	}
}

// LexiconSentiment scores text against small positive and negative word lists
func LexiconSentiment(text string) (string, float64) {
	score := 0
	for _, w := range Words(text) {
		switch {
		case positiveWords[w]:
			score++
		case negativeWords[w]:
			score--
		}
	}
	switch {
	case score > 0:
		return SentimentPositive, 0.75
	case score < 0:
		return SentimentNegative, 0.25
	}
	return SentimentNeutral, 0.5
}

func coachingTips(m models.ToneMetrics) []string {
	var tips []string

	switch words := m.Length.Words; {
	case words < 4:
		tips = append(tips, "Consider adding a bit more detail so your partner has something to respond to.")
	case words > 60:
		tips = append(tips, "It's a long message, maybe break it into shorter notes or plan a call.")
	}

	switch {
	case m.EmojiCount == 0:
		tips = append(tips, "Add an emoji to bring warmth (e.g. 😊 or ❤️).")
	case m.EmojiCount > 5:
		tips = append(tips, "Maybe trim a few emojis so the message stays clear.")
	}

	if m.Punctuation["!"] > 3 {
		tips = append(tips, "Lots of exclamation marks, double-check your tone if you want a mellow vibe.")
	}

	switch m.Sentiment {
	case SentimentNegative:
		tips = append(tips, "Since the tone feels tense, acknowledge feelings gently and invite dialogue.")
	case SentimentNeutral:
		tips = append(tips, "Add a personal note or appreciation to keep things heartfelt.")
	}

	if len(tips) == 0 {
		tips = append(tips, "Looks great, send it with confidence!")
	}
	return tips
}

func strengths(m models.ToneMetrics) []string {
	list := []string{}
	if m.Length.Words >= 6 && m.Length.Words <= 50 {
		list = append(list, "Nice balance of detail and brevity.")
	}
	if m.EmojiCount > 0 {
		list = append(list, "Friendly feel with emojis.")
	}
	if m.Sentiment == SentimentPositive {
		list = append(list, "Positive tone that lifts the conversation.")
	}
	return list
}

// HeuristicTone analyzes a draft with the lexicon and fixed coaching rules
func HeuristicTone(text string, now time.Time) *models.ToneAnalysis {
	metrics := BaselineMetrics(text)
	metrics.Sentiment, metrics.Confidence = LexiconSentiment(text)
	return &models.ToneAnalysis{
		Analysis:    metrics,
		Strengths:   strengths(metrics),
		Tips:        coachingTips(metrics),
		Source:      models.SourceHeuristic,
		GeneratedAt: now.UTC(),
	}
}

// tonePayload is the structured answer requested from the model
type tonePayload struct {
	Sentiment        string   `json:"sentiment"`
	Confidence       float64  `json:"confidence"`
	ToneSummary      string   `json:"tone_summary"`
	EmotionalDrivers []string `json:"emotional_drivers"`
	Strengths        []string `json:"strengths"`
	CoachingTips     []string `json:"coaching_tips"`
	SuggestedReply   string   `json:"suggested_reply"`
	Warnings         []string `json:"warnings"`
}

// toAnalysis normalizes the payload onto baseline metrics. ok is false when
// the payload carries nothing usable.
func (p tonePayload) toAnalysis(text string, now time.Time) (*models.ToneAnalysis, bool) {
	summary := strings.TrimSpace(p.ToneSummary)
	tips := cleanList(p.CoachingTips, 5)
	strong := cleanList(p.Strengths, 5)
	if summary == "" && len(tips) == 0 && len(strong) == 0 {
		return nil, false
	}

	metrics := BaselineMetrics(text)
	switch sentiment := strings.ToLower(strings.TrimSpace(p.Sentiment)); sentiment {
	case SentimentPositive, SentimentNeutral, SentimentNegative, SentimentMixed:
		metrics.Sentiment = sentiment
	default:
		metrics.Sentiment = SentimentNeutral
	}
	metrics.Confidence = clamp01(p.Confidence)
	metrics.EmotionalDrivers = cleanList(p.EmotionalDrivers, 5)

	return &models.ToneAnalysis{
		Analysis:       metrics,
		Strengths:      strong,
		Tips:           tips,
		Feedback:       summary,
		SuggestedReply: strings.TrimSpace(p.SuggestedReply),
		Warnings:       cleanList(p.Warnings, 5),
		Source:         models.SourceModel,
		GeneratedAt:    now.UTC(),
	}, true
}
