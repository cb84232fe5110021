package agent

import (
	"fmt"
	"strings"
	"time"

	"together-backend/internal/models"
)

const (
	contextMessages     = 3
	contextEvents       = 3
	messageSnippetLimit = 220
	eventTitleLimit     = 120
	lastExchangeLimit   = 120
)

// ContextMessage is one recent message as shown to the model
type ContextMessage struct {
	Author  string
	Content string
	SentAt  time.Time
}

// ContextEvent is one upcoming shared event
type ContextEvent struct {
	Title string
	Date  string
	Time  string
}

// Context is the per-user bundle the agent reasons over
type Context struct {
	UserName       string
	PartnerStatus  models.PartnerStatus
	HasPartner     bool
	StyleSummary   string
	DailyQuestion  *models.DailyQuestion
	RecentMessages []ContextMessage
	LastMessage    *models.Message
	UpcomingEvents []ContextEvent
}

// AddMessages keeps the last three of the given messages, oldest first.
// messages are newest first.
func (c *Context) AddMessages(userID string, messages []*models.Message) {
	n := len(messages)
	if n > contextMessages {
		n = contextMessages
	}
	c.RecentMessages = make([]ContextMessage, 0, n)
	for i := n - 1; i >= 0; i-- {
		m := messages[i]
		author := "Partner"
		if m.SenderID == userID {
			author = "You"
		}
		c.RecentMessages = append(c.RecentMessages, ContextMessage{
			Author:  author,
			Content: truncate(m.Content, messageSnippetLimit),
			SentAt:  m.CreatedAt,
		})
	}
}

// AddEvents keeps the first three upcoming events
func (c *Context) AddEvents(events []*models.CalendarEvent) {
	c.UpcomingEvents = make([]ContextEvent, 0, contextEvents)
	for _, e := range events {
		if len(c.UpcomingEvents) == contextEvents {
			break
		}
		c.UpcomingEvents = append(c.UpcomingEvents, ContextEvent{
			Title: truncate(e.Title, eventTitleLimit),
			Date:  e.Date,
			Time:  e.Time,
		})
	}
}

// Render formats the bundle as prompt text
func (c *Context) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Partner status: %s\n", c.PartnerStatus)
	if c.StyleSummary != "" {
		fmt.Fprintf(&b, "Writing style: %s\n", c.StyleSummary)
	}
	if q := c.DailyQuestion; q != nil {
		answered := "not answered yet"
		if q.Answered {
			answered = "answered"
		}
		fmt.Fprintf(&b, "Today's reflection question (%s): %s\n", answered, q.Question)
	}

	if len(c.RecentMessages) == 0 {
		b.WriteString("Recent messages: none\n")
	} else {
		b.WriteString("Recent messages:\n")
		for _, m := range c.RecentMessages {
			fmt.Fprintf(&b, "- %s: %s\n", m.Author, m.Content)
		}
	}

	if len(c.UpcomingEvents) == 0 {
		b.WriteString("Upcoming events (7 days): none\n")
	} else {
		b.WriteString("Upcoming events (7 days):\n")
		for _, e := range c.UpcomingEvents {
			fmt.Fprintf(&b, "- %s on %s at %s\n", e.Title, e.Date, e.Time)
		}
	}
	return b.String()
}
