package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"together-backend/internal/models"

	"github.com/rs/zerolog/log"
)

const previewLength = 80

// Dispatcher turns domain events into emails and push notifications.
// Delivery failures are logged and never returned.
type Dispatcher struct {
	mail   EmailSender
	push   PushSender
	appURL string
}

// NewDispatcher creates a dispatcher; mail and push may be nil
func NewDispatcher(mail EmailSender, push PushSender, appURL string) *Dispatcher {
	return &Dispatcher{mail: mail, push: push, appURL: strings.TrimRight(appURL, "/")}
}

func preview(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= previewLength {
		return string(runes)
	}
	return string(runes[:previewLength-3]) + "..."
}

func (d *Dispatcher) sendEmail(ctx context.Context, kind string, email Email) {
	if d.mail == nil {
		return
	}
	if err := d.mail.Send(ctx, email); err != nil {
		log.Warn().Err(err).Str("kind", kind).Str("to", email.To.Email).Msg("Failed to send email")
		return
	}
	log.Info().Str("kind", kind).Str("to", email.To.Email).Msg("Email sent")
}

func (d *Dispatcher) sendPush(ctx context.Context, kind string, user *models.User, title, body string, data map[string]string) {
	if d.push == nil || user == nil || user.PushToken == nil || *user.PushToken == "" {
		return
	}
	err := d.push.Send(ctx, Push{DeviceToken: *user.PushToken, Title: title, Body: body, Data: data})
	if err != nil {
		log.Warn().Err(err).Str("kind", kind).Str("user_id", user.ID).Msg("Failed to send push notification")
	}
}

func (d *Dispatcher) link(path string) string {
	if d.appURL == "" {
		return ""
	}
	return d.appURL + path
}

func body(lines ...string) (string, string) {
	var text, markup strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		text.WriteString(line + "\n\n")
		markup.WriteString("<p>" + html.EscapeString(line) + "</p>")
	}
	return text.String(), markup.String()
}

// MessageReceived notifies the receiver of a new message
func (d *Dispatcher) MessageReceived(ctx context.Context, sender, receiver *models.User, m *models.Message) {
	if receiver == nil || sender == nil {
		return
	}
	title := fmt.Sprintf("New message from %s", sender.Name)

	if receiver.EmailNotifications {
		text, markup := body(
			fmt.Sprintf("Hi %s,", receiver.Name),
			fmt.Sprintf("%s sent you a message: %q", sender.Name, preview(m.Content)),
			d.link("/messages"),
		)
		d.sendEmail(ctx, "message_received", Email{
			To:      EmailAddress{Email: receiver.Email, Name: receiver.Name},
			Subject: title,
			Text:    text,
			HTML:    markup,
		})
	}
	d.sendPush(ctx, "message_received", receiver, title, preview(m.Content), map[string]string{
		"type":       "message_received",
		"message_id": m.ID,
	})
}

// InvitationSent tells the invitee about a partner invitation. receiver is
// nil when the invitee has no account yet.
func (d *Dispatcher) InvitationSent(ctx context.Context, sender, receiver *models.User, receiverEmail string) {
	if sender == nil || receiverEmail == "" {
		return
	}
	subject := fmt.Sprintf("%s invited you to Together", sender.Name)

	greeting := "Hi,"
	next := "Create your account to accept: " + d.link("/register?email="+receiverEmail)
	name := ""
	if receiver != nil {
		greeting = fmt.Sprintf("Hi %s,", receiver.Name)
		next = "Open the app to accept: " + d.link("/partner")
		name = receiver.Name
	}
	if d.appURL == "" {
		next = ""
	}

	if receiver == nil || receiver.EmailNotifications {
		text, markup := body(
			greeting,
			fmt.Sprintf("%s (%s) wants to connect with you as their partner on Together.", sender.Name, sender.Email),
			next,
		)
		d.sendEmail(ctx, "invitation_sent", Email{
			To:      EmailAddress{Email: receiverEmail, Name: name},
			Subject: subject,
			Text:    text,
			HTML:    markup,
		})
	}
	d.sendPush(ctx, "invitation_sent", receiver, "Partner invitation", subject, map[string]string{
		"type": "invitation_sent",
	})
}

// InvitationAccepted tells the sender their invitation was accepted
func (d *Dispatcher) InvitationAccepted(ctx context.Context, accepter, sender *models.User) {
	if accepter == nil || sender == nil {
		return
	}
	subject := fmt.Sprintf("%s accepted your invitation", accepter.Name)

	if sender.EmailNotifications {
		text, markup := body(
			fmt.Sprintf("Hi %s,", sender.Name),
			fmt.Sprintf("You and %s are now connected on Together.", accepter.Name),
			d.link("/"),
		)
		d.sendEmail(ctx, "invitation_accepted", Email{
			To:      EmailAddress{Email: sender.Email, Name: sender.Name},
			Subject: subject,
			Text:    text,
			HTML:    markup,
		})
	}
	d.sendPush(ctx, "invitation_accepted", sender, "You're connected", subject, map[string]string{
		"type":       "invitation_accepted",
		"partner_id": accepter.ID,
	})
}
