package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// EmailAddress is a SendGrid address
type EmailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Email is one outgoing message
type Email struct {
	To      EmailAddress
	Subject string
	Text    string
	HTML    string
}

// EmailSender delivers an email
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// SendGridConfig configures the SendGrid client
type SendGridConfig struct {
	APIKey    string
	BaseURL   string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

// SendGrid sends mail through the SendGrid v3 API
type SendGrid struct {
	cfg        SendGridConfig
	httpClient *http.Client
}

// NewSendGrid creates a SendGrid client
func NewSendGrid(cfg SendGridConfig) (*SendGrid, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing SendGrid API key")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("missing SendGrid from address")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SendGrid{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}, nil
}

type personalization struct {
	To []EmailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             EmailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
}

type errorResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// HTTPError is a non-2xx answer from SendGrid
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, e.Message)
}

// Send posts one email to /v3/mail/send
func (s *SendGrid) Send(ctx context.Context, email Email) error {
	if strings.TrimSpace(email.To.Email) == "" {
		return fmt.Errorf("sendgrid: recipient required")
	}
	if strings.TrimSpace(email.Subject) == "" {
		return fmt.Errorf("sendgrid: subject required")
	}

	contents := []mailContent{}
	if t := strings.TrimSpace(email.Text); t != "" {
		contents = append(contents, mailContent{Type: "text/plain", Value: t})
	}
	if h := strings.TrimSpace(email.HTML); h != "" {
		contents = append(contents, mailContent{Type: "text/html", Value: h})
	}
	if len(contents) == 0 {
		return fmt.Errorf("sendgrid: text or html content required")
	}

	var buf bytes.Buffer
	err := json.NewEncoder(&buf).Encode(mailSendRequest{
		Personalizations: []personalization{{To: []EmailAddress{email.To}}},
		From:             EmailAddress{Email: s.cfg.FromEmail, Name: s.cfg.FromName},
		Subject:          email.Subject,
		Content:          contents,
	})
	if err != nil {
		return fmt.Errorf("sendgrid: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v3/mail/send", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		he := &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && len(er.Errors) > 0 && er.Errors[0].Message != "" {
			he.Message = er.Errors[0].Message
		}
		return he
	}
	return nil
}
