package agent

import (
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const systemPrompt = "You are a warm, practical relationship coach inside a couples app. " +
	"Be specific, kind and brief. Never invent facts that are not in the context. " +
	"Always answer with JSON that matches the requested schema."

func stringList(description string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeArray,
		Description: description,
		Items:       &genai.Schema{Type: genai.TypeString},
	}
}

var toneSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"sentiment": {
			Type: genai.TypeString,
			Enum: []string{SentimentPositive, SentimentNeutral, SentimentNegative, SentimentMixed},
		},
		"confidence":        {Type: genai.TypeNumber, Description: "0 to 1"},
		"tone_summary":      {Type: genai.TypeString},
		"emotional_drivers": stringList("feelings behind the message"),
		"strengths":         stringList("what already works"),
		"coaching_tips":     stringList("concrete improvements"),
		"suggested_reply":   {Type: genai.TypeString},
		"warnings":          stringList("things that may land badly"),
	},
	Required: []string{"sentiment", "confidence", "tone_summary", "coaching_tips"},
}

var suggestionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"suggestions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"type": {
						Type: genai.TypeString,
						Enum: []string{SuggestionMessageDraft, SuggestionDailyQuestion, SuggestionCalendar, SuggestionCustom},
					},
					"title":             {Type: genai.TypeString},
					"summary":           {Type: genai.TypeString},
					"confidence":        {Type: genai.TypeNumber},
					"call_to_action":    {Type: genai.TypeString},
					"suggested_message": {Type: genai.TypeString},
				},
				Required: []string{"type", "title", "summary"},
			},
		},
	},
	Required: []string{"suggestions"},
}

var styleSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"style_summary":      {Type: genai.TypeString},
		"key_traits":         stringList("short descriptors"),
		"signature_examples": stringList("representative phrases"),
	},
	Required: []string{"style_summary"},
}

func tonePrompt(text string, c *Context) Prompt {
	var b strings.Builder
	b.WriteString("Analyze the tone of this draft message to a partner.\n\n")
	if c != nil {
		b.WriteString("Context:\n")
		b.WriteString(c.Render())
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Draft:\n%s\n", text)
	return Prompt{System: systemPrompt, User: b.String(), Schema: toneSchema}
}

func suggestionPrompt(c *Context) Prompt {
	var b strings.Builder
	b.WriteString("Suggest up to three small, concrete actions that would help this couple connect today.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(c.Render())
	return Prompt{System: systemPrompt, User: b.String(), Schema: suggestionSchema}
}

func stylePrompt(texts []string) Prompt {
	var b strings.Builder
	b.WriteString("Describe the writing style of the author of these messages in two sentences.\n\nMessages:\n")
	for i, text := range texts {
		if i == 30 {
			break
		}
		fmt.Fprintf(&b, "- %s\n", truncate(text, messageSnippetLimit))
	}
	return Prompt{System: systemPrompt, User: b.String(), Schema: styleSchema}
}
