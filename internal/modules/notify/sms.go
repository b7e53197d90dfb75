// README: Twilio SMS sender for high-priority events.
package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// MessageCreator is the subset of the Twilio REST API used here.
type MessageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

type SMSSender struct {
	api    MessageCreator
	from   string
	events map[EventType]bool
}

// NewTwilioClient builds the REST client from account credentials.
func NewTwilioClient(accountSID, authToken string) MessageCreator {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return client.Api
}

// NewSMSSender sends SMS only for the listed event types.
func NewSMSSender(api MessageCreator, from string, eventTypes []string) *SMSSender {
	events := make(map[EventType]bool, len(eventTypes))
	for _, t := range eventTypes {
		events[EventType(t)] = true
	}
	return &SMSSender{api: api, from: from, events: events}
}

func (s *SMSSender) Name() string { return "sms" }

func (s *SMSSender) Accepts(e Event, c *Contact) bool {
	return c.Phone != "" && s.events[e.Type]
}

func (s *SMSSender) Send(_ context.Context, e Event, c *Contact) error {
	params := &api.CreateMessageParams{}
	params.SetTo(c.Phone)
	params.SetFrom(s.from)
	params.SetBody(fmt.Sprintf("%s: %s", e.Title, e.Body))

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio create message: %w", err)
	}
	if resp.Status != nil && string(*resp.Status) == "failed" {
		return fmt.Errorf("twilio message %s failed", deref(resp.Sid))
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
