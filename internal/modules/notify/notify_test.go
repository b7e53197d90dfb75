// README: Notification tests: worker fan-out, sender routing and the Redis queue.
package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"carpool/internal/infra/redistest"
	"carpool/internal/types"
)

type fakeContacts map[types.ID]*Contact

func (f fakeContacts) Get(_ context.Context, id types.ID) (*Contact, error) {
	c, ok := f[id]
	if !ok {
		return nil, ErrContactNotFound
	}
	return c, nil
}

type recordingSender struct {
	name     string
	failures int

	mu    sync.Mutex
	calls int
	sent  []Event
}

func (r *recordingSender) Name() string                     { return r.name }
func (r *recordingSender) Accepts(_ Event, c *Contact) bool { return c.DeviceToken != "" }

func (r *recordingSender) Send(_ context.Context, e Event, _ *Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failures {
		return errors.New("transient")
	}
	r.sent = append(r.sent, e)
	return nil
}

func newTestWorker(contacts ContactSource, senders ...Sender) *Worker {
	log, _ := test.NewNullLogger()
	return NewWorker(nil, contacts, WorkerConfig{MaxElapsed: 2 * time.Second}, log, senders...)
}

func TestWorker_DeliverRetriesTransientFailure(t *testing.T) {
	s := &recordingSender{name: "push", failures: 2}
	w := newTestWorker(fakeContacts{"u1": {UserID: "u1", DeviceToken: "tok"}}, s)

	w.Deliver(context.Background(), Event{UserID: "u1", Type: EventBookingAccepted, Title: "Accepted"})

	assert.Equal(t, 3, s.calls)
	require.Len(t, s.sent, 1)
	assert.Equal(t, EventBookingAccepted, s.sent[0].Type)
}

func TestWorker_DeliverSkipsUnknownUser(t *testing.T) {
	s := &recordingSender{name: "push"}
	w := newTestWorker(fakeContacts{}, s)

	w.Deliver(context.Background(), Event{UserID: "ghost", Type: EventBookingAccepted})

	assert.Zero(t, s.calls)
}

func TestWorker_DeliverSkipsSenderThatDoesNotAccept(t *testing.T) {
	s := &recordingSender{name: "push"}
	w := newTestWorker(fakeContacts{"u1": {UserID: "u1", Phone: "+923001234567"}}, s)

	w.Deliver(context.Background(), Event{UserID: "u1", Type: EventBookingAccepted})

	assert.Zero(t, s.calls)
}

type fakeFCM struct {
	err error
	msg *messaging.Message
}

func (f *fakeFCM) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.msg = m
	return "projects/p/messages/1", f.err
}

func TestPushSender_BuildsMessage(t *testing.T) {
	fcm := &fakeFCM{}
	p := NewPushSender(fcm)
	c := &Contact{UserID: "u1", DeviceToken: "device-1"}
	e := Event{UserID: "u1", Type: EventRideCancelled, Title: "Ride cancelled", Body: "Your ride was cancelled", Data: map[string]string{"ride_id": "r1"}}

	require.True(t, p.Accepts(e, c))
	require.NoError(t, p.Send(context.Background(), e, c))

	require.NotNil(t, fcm.msg)
	assert.Equal(t, "device-1", fcm.msg.Token)
	assert.Equal(t, "Ride cancelled", fcm.msg.Notification.Title)
	assert.Equal(t, "r1", fcm.msg.Data["ride_id"])
	assert.Equal(t, string(EventRideCancelled), fcm.msg.Data["type"])
	assert.False(t, p.Accepts(e, &Contact{UserID: "u2"}))
}

type fakeTwilio struct {
	params *api.CreateMessageParams
	status string
}

func (f *fakeTwilio) CreateMessage(p *api.CreateMessageParams) (*api.ApiV2010Message, error) {
	f.params = p
	sid := "SM123"
	status := f.status
	return &api.ApiV2010Message{Sid: &sid, Status: &status}, nil
}

func TestSMSSender_OnlyConfiguredEvents(t *testing.T) {
	tw := &fakeTwilio{status: "queued"}
	s := NewSMSSender(tw, "+15550000000", []string{"ride_cancelled"})
	c := &Contact{UserID: "u1", Phone: "+923001234567"}

	assert.True(t, s.Accepts(Event{Type: EventRideCancelled}, c))
	assert.False(t, s.Accepts(Event{Type: EventChatMessage}, c))
	assert.False(t, s.Accepts(Event{Type: EventRideCancelled}, &Contact{UserID: "u2"}))

	require.NoError(t, s.Send(context.Background(), Event{Type: EventRideCancelled, Title: "Ride cancelled", Body: "Sorry"}, c))
	require.NotNil(t, tw.params)
	assert.Equal(t, "+923001234567", *tw.params.To)
	assert.Equal(t, "Ride cancelled: Sorry", *tw.params.Body)
}

func TestSMSSender_FailedStatus(t *testing.T) {
	s := NewSMSSender(&fakeTwilio{status: "failed"}, "+15550000000", []string{"ride_cancelled"})
	err := s.Send(context.Background(), Event{Type: EventRideCancelled}, &Contact{Phone: "+1"})
	assert.Error(t, err)
}

func TestQueue_PublishThenPop(t *testing.T) {
	const key = "carpool:test:notifications"
	client := redistest.Setup(t, key)
	q := NewQueue(client, key, logrus.New())
	ctx := context.Background()

	q.Publish(ctx,
		Event{UserID: "u1", Type: EventBookingRequested, Title: "first"},
		Event{UserID: "u2", Type: EventBookingAccepted, Title: "second"},
	)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	first, ok, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", first.Title)
	assert.False(t, first.CreatedAt.IsZero())

	second, ok, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.ID("u2"), second.UserID)

	_, ok, err = q.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}
