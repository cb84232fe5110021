package agent

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"together-backend/internal/models"
)

// StyleSampleLimit is the number of recent texts a profile is built from
const StyleSampleLimit = 200

const emptyStyleSummary = "Not enough messages to build a profile yet."

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "have": true,
	"this": true, "from": true, "your": true, "about": true, "their": true, "just": true,
	"will": true, "would": true, "could": true, "should": true, "them": true, "when": true,
	"what": true, "where": true, "why": true, "how": true, "you": true, "you're": true,
	"im": true, "i'm": true,
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// BuildStyleProfile fingerprints the given texts, newest first
func BuildStyleProfile(userID string, texts []string, now time.Time) *models.StyleProfile {
	profile := &models.StyleProfile{
		UserID:            userID,
		EmojiFrequency:    []models.EmojiCount{},
		PunctuationUsage:  map[string]int{},
		TopWords:          []models.WordCount{},
		SignatureExamples: []string{},
		Source:            models.SourceHeuristic,
		UpdatedAt:         now.UTC(),
	}

	var totalChars, totalWords int
	emojis := newCounter()
	punctuation := newCounter()
	words := newCounter()
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		profile.MessageCount++
		totalChars += utf8.RuneCountInString(text)

		all := Words(text)
		totalWords += len(all)
		for _, w := range all {
			if !stopwords[w] {
				words.add(w, 1)
			}
		}
		for _, e := range Emojis(text) {
			emojis.add(e, 1)
		}
		for _, r := range text {
			switch r {
			case '!', '?', '~':
				punctuation.add(string(r), 1)
			}
		}
		punctuation.add("...", strings.Count(text, "..."))

		if len(profile.SignatureExamples) < 3 {
			profile.SignatureExamples = append(profile.SignatureExamples, text)
		}
	}

	if profile.MessageCount == 0 {
		profile.StyleSummary = emptyStyleSummary
		return profile
	}

	avgLength := float64(totalChars) / float64(profile.MessageCount)
	avgWords := float64(totalWords) / float64(profile.MessageCount)
	density := 0.0
	if totalWords > 0 {
		density = float64(emojis.total()) / float64(totalWords)
	}

	for _, e := range emojis.top(5) {
		profile.EmojiFrequency = append(profile.EmojiFrequency, models.EmojiCount{Emoji: e, Count: emojis.counts[e]})
	}
	for _, w := range words.top(10) {
		profile.TopWords = append(profile.TopWords, models.WordCount{Word: w, Count: words.counts[w]})
	}
	profile.AverageLength = round(avgLength, 2)
	profile.AverageWords = round(avgWords, 2)
	profile.EmojiDensity = round(density, 3)
	profile.PunctuationUsage = punctuation.asMap()
	profile.StyleSummary = styleSummary(avgWords, density, profile.EmojiFrequency, punctuation)
	return profile
}

func styleSummary(avgWords, density float64, topEmojis []models.EmojiCount, punctuation *counter) string {
	var bits []string

	switch {
	case density >= 0.05 && len(topEmojis) > 0:
		favorites := make([]string, 0, 3)
		for i := 0; i < len(topEmojis) && i < 3; i++ {
			favorites = append(favorites, topEmojis[i].Emoji)
		}
		bits = append(bits, fmt.Sprintf("Loves using emojis (favorites: %s).", strings.Join(favorites, ", ")))
	case density < 0.01:
		bits = append(bits, "Rarely uses emojis, tends to keep messages straightforward.")
	}

	total := punctuation.total()
	if total == 0 {
		total = 1
	}
	if float64(punctuation.counts["!"])/float64(total) > 0.2 {
		bits = append(bits, "Often uses exclamation marks for enthusiastic tone.")
	}
	if float64(punctuation.counts["?"])/float64(total) > 0.2 {
		bits = append(bits, "Frequently asks questions, suggesting an engaging conversational style.")
	}

	switch {
	case avgWords >= 18:
		bits = append(bits, "Writes longer, descriptive messages.")
	case avgWords <= 6:
		bits = append(bits, "Prefers short and snappy messages.")
	}

	if len(bits) == 0 {
		return "Balanced tone with varied phrasing."
	}
	return strings.Join(bits, " ")
}

// stylePayload is the structured answer requested from the model
type stylePayload struct {
	StyleSummary      string   `json:"style_summary"`
	KeyTraits         []string `json:"key_traits"`
	SignatureExamples []string `json:"signature_examples"`
}

// apply overlays a usable model summary onto a heuristic profile
func (p stylePayload) apply(profile *models.StyleProfile) bool {
	summary := strings.TrimSpace(p.StyleSummary)
	if summary == "" {
		return false
	}
	profile.StyleSummary = summary
	profile.KeyTraits = cleanList(p.KeyTraits, 5)
	if examples := cleanList(p.SignatureExamples, 3); len(examples) > 0 {
		profile.SignatureExamples = examples
	}
	profile.Source = models.SourceModel
	return true
}
