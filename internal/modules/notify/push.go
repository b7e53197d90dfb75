// README: Firebase Cloud Messaging sender.
package notify

import (
	"context"

	"firebase.google.com/go/v4/messaging"
	"github.com/cenkalti/backoff/v4"
)

// MessageSender is the subset of *messaging.Client used for delivery.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type PushSender struct {
	client MessageSender
}

func NewPushSender(client MessageSender) *PushSender {
	return &PushSender{client: client}
}

func (p *PushSender) Name() string { return "fcm" }

func (p *PushSender) Accepts(_ Event, c *Contact) bool {
	return c.DeviceToken != ""
}

func (p *PushSender) Send(ctx context.Context, e Event, c *Contact) error {
	data := map[string]string{"type": string(e.Type)}
	for k, v := range e.Data {
		data[k] = v
	}
	_, err := p.client.Send(ctx, &messaging.Message{
		Token: c.DeviceToken,
		Notification: &messaging.Notification{
			Title: e.Title,
			Body:  e.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	})
	if err != nil && (messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err)) {
		// A stale or malformed token will not start working on retry.
		return backoff.Permanent(err)
	}
	return err
}
