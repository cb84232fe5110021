package notify

import (
	"context"
	"fmt"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/payload"
)

// Push is one mobile notification
type Push struct {
	DeviceToken string
	Title       string
	Body        string
	Data        map[string]string
}

// PushSender delivers a mobile notification
type PushSender interface {
	Send(ctx context.Context, push Push) error
}

// apnsClient is the subset of *apns2.Client used here
type apnsClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// APNs sends notifications through Apple Push Notification service
type APNs struct {
	client apnsClient
	topic  string
}

// NewAPNs loads a .p12 certificate and connects to the sandbox or production
// gateway
func NewAPNs(certPath, certPassword, topic string, production bool) (*APNs, error) {
	cert, err := certificate.FromP12File(certPath, certPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs certificate: %w", err)
	}
	client := apns2.NewClient(cert)
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}
	return &APNs{client: client, topic: topic}, nil
}

// Send pushes an alert with a default sound and the data as custom keys
func (a *APNs) Send(ctx context.Context, push Push) error {
	p := payload.NewPayload().
		AlertTitle(push.Title).
		AlertBody(push.Body).
		Sound("default")
	for k, v := range push.Data {
		p = p.Custom(k, v)
	}

	res, err := a.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: push.DeviceToken,
		Topic:       a.topic,
		Payload:     p,
	})
	if err != nil {
		return fmt.Errorf("apns push: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("apns push rejected: %d %s", res.StatusCode, res.Reason)
	}
	return nil
}
