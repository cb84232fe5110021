package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"together-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type scriptedModel struct {
	replies []string
	err     error
	calls   int
}

func (m *scriptedModel) Generate(_ context.Context, _ Prompt) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func TestWordsAndEmojis(t *testing.T) {
	assert.Equal(t, []string{"can't", "wait", "to", "see", "you", "2night"}, Words("Can't wait, to SEE you 2night!"))
	assert.Equal(t, []string{"🎉🎉", "😊"}, Emojis("party 🎉🎉 then 😊"))
	assert.Empty(t, Emojis("no emojis here"))
}

func TestBaselineMetrics(t *testing.T) {
	m := BaselineMetrics("I love you so much! 😊 Can't wait to see you tonight.")
	assert.Equal(t, 11, m.Length.Words)
	assert.Equal(t, 1, m.EmojiCount)
	assert.Equal(t, map[string]int{"!": 1, ".": 1}, m.Punctuation)
	assert.Equal(t, []string{"love", "much", "can't", "wait", "tonight"}, m.Keywords)
}

func TestLexiconSentiment(t *testing.T) {
	s, c := LexiconSentiment("so happy and grateful")
	assert.Equal(t, SentimentPositive, s)
	assert.Equal(t, 0.75, c)

	s, c = LexiconSentiment("tired and upset")
	assert.Equal(t, SentimentNegative, s)
	assert.Equal(t, 0.25, c)

	s, c = LexiconSentiment("love you but so tired")
	assert.Equal(t, SentimentNeutral, s)
	assert.Equal(t, 0.5, c)
}

func TestHeuristicTone(t *testing.T) {
	warm := HeuristicTone("I love you so much! 😊 Can't wait to see you tonight.", testNow)
	assert.Equal(t, models.SourceHeuristic, warm.Source)
	assert.Equal(t, SentimentPositive, warm.Analysis.Sentiment)
	assert.Equal(t, []string{"Looks great, send it with confidence!"}, warm.Tips)
	assert.Len(t, warm.Strengths, 3)

	terse := HeuristicTone("ok", testNow)
	assert.Equal(t, SentimentNeutral, terse.Analysis.Sentiment)
	assert.Len(t, terse.Tips, 3)
	assert.Contains(t, terse.Tips, "Add an emoji to bring warmth (e.g. 😊 or ❤️).")
	assert.Empty(t, terse.Strengths)

	loud := HeuristicTone("so upset!!!! really!!", testNow)
	assert.Contains(t, loud.Tips, "Lots of exclamation marks, double-check your tone if you want a mellow vibe.")
	assert.Contains(t, loud.Tips, "Since the tone feels tense, acknowledge feelings gently and invite dialogue.")
}

func TestTonePayloadNormalization(t *testing.T) {
	_, ok := tonePayload{Sentiment: "positive"}.toAnalysis("hi", testNow)
	assert.False(t, ok)

	result, ok := tonePayload{
		Sentiment:    "Elated",
		Confidence:   1.7,
		ToneSummary:  " Warm and playful ",
		CoachingTips: []string{" ", "a", "b", "c", "d", "e", "f"},
	}.toAnalysis("hi there", testNow)
	require.True(t, ok)
	assert.Equal(t, SentimentNeutral, result.Analysis.Sentiment)
	assert.Equal(t, 1.0, result.Analysis.Confidence)
	assert.Equal(t, "Warm and playful", result.Feedback)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, result.Tips)
	assert.Equal(t, models.SourceModel, result.Source)
	assert.Equal(t, 2, result.Analysis.Length.Words)
}

func TestBuildStyleProfile(t *testing.T) {
	empty := BuildStyleProfile("u1", []string{"", "  "}, testNow)
	assert.Equal(t, 0, empty.MessageCount)
	assert.Equal(t, "Not enough messages to build a profile yet.", empty.StyleSummary)

	p := BuildStyleProfile("u1", []string{
		"Miss you! 😊😊",
		"Dinner tonight?",
		"Miss you so much!",
		"ok...",
	}, testNow)
	assert.Equal(t, 4, p.MessageCount)
	assert.Equal(t, []models.EmojiCount{{Emoji: "😊😊", Count: 1}}, p.EmojiFrequency)
	require.NotEmpty(t, p.TopWords)
	assert.Equal(t, models.WordCount{Word: "miss", Count: 2}, p.TopWords[0])
	assert.Equal(t, 2, p.PunctuationUsage["!"])
	assert.Equal(t, 1, p.PunctuationUsage["?"])
	assert.Equal(t, 1, p.PunctuationUsage["..."])
	assert.Len(t, p.SignatureExamples, 3)
	assert.Equal(t, 2.25, p.AverageWords)
	assert.Contains(t, p.StyleSummary, "Loves using emojis")
	assert.Contains(t, p.StyleSummary, "Prefers short and snappy messages.")
	assert.Equal(t, models.SourceHeuristic, p.Source)
}

func TestContextKeepsLastThreeMessages(t *testing.T) {
	msgs := []*models.Message{}
	for i := 5; i >= 1; i-- {
		sender := "me"
		if i%2 == 0 {
			sender = "them"
		}
		msgs = append(msgs, &models.Message{SenderID: sender, Content: strings.Repeat("x", i), CreatedAt: testNow.Add(time.Duration(i) * time.Minute)})
	}
	c := &Context{PartnerStatus: models.PartnerStatusConnected}
	c.AddMessages("me", msgs)

	require.Len(t, c.RecentMessages, 3)
	assert.Equal(t, "xxx", c.RecentMessages[0].Content)
	assert.Equal(t, "You", c.RecentMessages[0].Author)
	assert.Equal(t, "Partner", c.RecentMessages[1].Author)
	assert.Equal(t, "xxxxx", c.RecentMessages[2].Content)

	c.AddEvents([]*models.CalendarEvent{{Title: strings.Repeat("t", 200), Date: "2025-03-02", Time: "18:00"}})
	require.Len(t, c.UpcomingEvents, 1)
	assert.Len(t, []rune(c.UpcomingEvents[0].Title), 120)

	rendered := c.Render()
	assert.Contains(t, rendered, "Partner status: connected")
	assert.Contains(t, rendered, "- You: xxx")
	assert.Contains(t, rendered, "on 2025-03-02 at 18:00")
}

func TestHeuristicSuggestions(t *testing.T) {
	quiet := &Context{
		DailyQuestion: &models.DailyQuestion{Question: "What made you smile today?"},
		LastMessage:   &models.Message{Content: "see you soon", CreatedAt: testNow.Add(-24 * time.Hour)},
	}
	cards := HeuristicSuggestions(quiet, testNow)
	require.Len(t, cards, 3)
	assert.Equal(t, SuggestionMessageDraft, cards[0].Type)
	assert.Equal(t, `Last exchange: "see you soon"`, cards[0].Payload["secondary_text"])
	assert.Equal(t, "Keep it warm and genuine.", cards[0].Payload["tone_hint"])
	assert.Equal(t, SuggestionDailyQuestion, cards[1].Type)
	assert.Equal(t, SuggestionCalendar, cards[2].Type)

	busy := &Context{
		LastMessage:    &models.Message{Content: "hi", CreatedAt: testNow.Add(-time.Hour)},
		DailyQuestion:  &models.DailyQuestion{Question: "q", Answered: true},
		UpcomingEvents: []ContextEvent{{Title: "Dinner"}},
	}
	assert.Empty(t, HeuristicSuggestions(busy, testNow))
}

func TestMergeSuggestionsDedupesByType(t *testing.T) {
	primary := []models.Suggestion{{Type: SuggestionCalendar, Source: models.SourceModel}}
	fallback := []models.Suggestion{{Type: SuggestionMessageDraft}, {Type: SuggestionCalendar}}
	merged := MergeSuggestions(primary, fallback)
	require.Len(t, merged, 2)
	assert.Equal(t, models.SourceModel, merged[0].Source)
	assert.Equal(t, SuggestionMessageDraft, merged[1].Type)
}

func TestDecodeJSONStripsFences(t *testing.T) {
	var p stylePayload
	require.NoError(t, decodeJSON("```json\n{\"style_summary\":\"Playful\"}\n```", &p))
	assert.Equal(t, "Playful", p.StyleSummary)
	assert.Error(t, decodeJSON("not json", &p))
}

func TestCooldownAfterFailure(t *testing.T) {
	now := testNow
	model := &scriptedModel{err: errors.New("quota exceeded")}
	c := NewCooldown(model, time.Minute)
	c.SetClock(func() time.Time { return now })

	assert.True(t, c.Available())
	_, err := c.Generate(context.Background(), Prompt{})
	assert.EqualError(t, err, "quota exceeded")
	assert.False(t, c.Available())

	_, err = c.Generate(context.Background(), Prompt{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, model.calls)

	now = now.Add(time.Minute)
	assert.True(t, c.Available())

	var nilCooldown *Cooldown
	assert.False(t, nilCooldown.Available())
	assert.False(t, NewCooldown(nil, time.Minute).Available())
}

func TestAnalyzerUsesModelThenFallsBack(t *testing.T) {
	model := &scriptedModel{replies: []string{
		`{"sentiment":"positive","confidence":0.9,"tone_summary":"Affectionate","coaching_tips":["Mention tonight's plan"]}`,
		`not json`,
	}}
	a := NewAnalyzer(model)
	a.SetClock(func() time.Time { return testNow })
	c := &Context{}

	first := a.AnalyzeTone(context.Background(), "love you", c)
	assert.Equal(t, models.SourceModel, first.Source)
	assert.Equal(t, "Affectionate", first.Feedback)

	second := a.AnalyzeTone(context.Background(), "love you", c)
	assert.Equal(t, models.SourceHeuristic, second.Source)
	assert.Equal(t, SentimentPositive, second.Analysis.Sentiment)

	heuristic := NewAnalyzer(nil)
	assert.False(t, heuristic.ModelAvailable())
	assert.Equal(t, models.SourceHeuristic, heuristic.AnalyzeTone(context.Background(), "hi", c).Source)
}

func TestAnalyzerSuggestMergesModelCards(t *testing.T) {
	model := &scriptedModel{replies: []string{
		`{"suggestions":[{"type":"calendar","title":"","summary":"Book the picnic","confidence":3,"call_to_action":"Open calendar"},{"summary":" "}]}`,
	}}
	a := NewAnalyzer(model)
	a.SetClock(func() time.Time { return testNow })

	cards := a.Suggest(context.Background(), &Context{})
	require.Len(t, cards, 2)
	assert.Equal(t, SuggestionCalendar, cards[0].Type)
	assert.Equal(t, "Agent insight", cards[0].Title)
	assert.Equal(t, 1.0, *cards[0].Confidence)
	assert.Equal(t, "Open calendar", cards[0].Payload["call_to_action"])
	assert.Equal(t, models.SourceModel, cards[0].Source)
	assert.Equal(t, SuggestionMessageDraft, cards[1].Type)
}

func TestAnalyzerStyleProfileOverlay(t *testing.T) {
	model := &scriptedModel{replies: []string{`{"style_summary":"Sweet and brief","key_traits":["warm"]}`}}
	a := NewAnalyzer(model)
	a.SetClock(func() time.Time { return testNow })

	p := a.StyleProfile(context.Background(), "u1", []string{"hi love"})
	assert.Equal(t, "Sweet and brief", p.StyleSummary)
	assert.Equal(t, []string{"warm"}, p.KeyTraits)
	assert.Equal(t, models.SourceModel, p.Source)

	empty := a.StyleProfile(context.Background(), "u1", nil)
	assert.Equal(t, models.SourceHeuristic, empty.Source)
	assert.Equal(t, 1, model.calls)
}
