package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// ErrUnavailable is returned when no model call is attempted
var ErrUnavailable = errors.New("language model unavailable")

// Prompt is one structured generation request
type Prompt struct {
	System string
	User   string
	Schema *genai.Schema
}

// Model generates a JSON document for a prompt
type Model interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// GenAIModel calls Gemini through the genai SDK
type GenAIModel struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGenAIModel creates a Gemini-backed model
func NewGenAIModel(ctx context.Context, apiKey, model string, timeout time.Duration) (*GenAIModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIModel{client: client, model: model, timeout: timeout}, nil
}

// Generate requests a JSON response matching the prompt schema
func (m *GenAIModel) Generate(ctx context.Context, prompt Prompt) (string, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	temperature := float32(0.4)
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   prompt.Schema,
	}
	if prompt.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt.User), cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("GenAI returned an empty response")
	}
	return text, nil
}

// Cooldown skips the wrapped model for a while after it fails
type Cooldown struct {
	model  Model
	period time.Duration
	now    func() time.Time

	mu    sync.Mutex
	until time.Time
}

// NewCooldown wraps model; a nil model is always unavailable
func NewCooldown(model Model, period time.Duration) *Cooldown {
	return &Cooldown{model: model, period: period, now: time.Now}
}

// SetClock overrides the time source
func (c *Cooldown) SetClock(now func() time.Time) {
	c.now = now
}

// Available reports whether the next call would reach the model
func (c *Cooldown) Available() bool {
	if c == nil || c.model == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.now().Before(c.until)
}

// Generate calls the model unless it is cooling down
func (c *Cooldown) Generate(ctx context.Context, prompt Prompt) (string, error) {
	if !c.Available() {
		return "", ErrUnavailable
	}
	text, err := c.model.Generate(ctx, prompt)
	if err != nil {
		c.mu.Lock()
		c.until = c.now().Add(c.period)
		c.mu.Unlock()
		log.Warn().Err(err).Dur("cooldown", c.period).Msg("Language model call failed")
		return "", err
	}
	return text, nil
}

// decodeJSON parses a model response, tolerating a markdown code fence
func decodeJSON(raw string, dest any) error {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("malformed model response: %w", err)
	}
	return nil
}
