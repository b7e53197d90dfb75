// README: Chat service: resolves the counterpart, runs the gate and stores the message.
package chat

import (
	"context"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"carpool/internal/modules/notify"
	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

type Rides interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
}

type Service struct {
	store     *Store
	rides     Rides
	gate      *Gate
	publisher notify.Publisher
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewService(store *Store, rides Rides, gate *Gate, publisher notify.Publisher, log logrus.FieldLogger) *Service {
	return &Service{store: store, rides: rides, gate: gate, publisher: publisher, log: log, now: time.Now}
}

type SendCommand struct {
	RideID types.ID
	Sender types.Actor
	// To picks the passenger when the driver is sending; ignored otherwise.
	To   types.ID
	Text string
}

func (s *Service) Send(ctx context.Context, cmd SendCommand) (*Message, error) {
	r, err := s.rides.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.Status == ride.StatusCompleted || r.Status == ride.StatusCancelled {
		return nil, ErrChatClosed
	}
	side, receiver, err := s.resolve(ctx, r, cmd.Sender.ID, cmd.To)
	if err != nil {
		return nil, err
	}
	text, err := s.gate.Check(side, cmd.Text)
	if err != nil {
		s.log.WithFields(logrus.Fields{"ride_id": r.ID, "sender_id": cmd.Sender.ID}).Info("chat message blocked")
		return nil, err
	}

	m := &Message{
		ID:         types.NewID(),
		RideID:     r.ID,
		SenderID:   cmd.Sender.ID,
		ReceiverID: receiver,
		Text:       text,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, notify.Event{
		UserID: receiver,
		Type:   notify.EventChatMessage,
		Title:  "New message",
		Body:   text,
		Data:   map[string]string{"ride_id": string(r.ID), "message_id": string(m.ID)},
	})
	return m, nil
}

// resolve works out which side the sender is on and who receives the
// message. Passengers always write to the driver; the driver writes to a
// seat holder, implicitly only when there is exactly one.
func (s *Service) resolve(ctx context.Context, r *ride.Ride, sender, to types.ID) (Side, types.ID, error) {
	holders, err := s.store.SeatHolders(ctx, r.ID)
	if err != nil {
		return "", "", err
	}
	if sender != r.DriverID {
		if !slices.Contains(holders, sender) {
			return "", "", ErrNotParticipant
		}
		return SidePassenger, r.DriverID, nil
	}

	if to != "" {
		if !slices.Contains(holders, to) {
			return "", "", ErrNotParticipant.WithMessage("recipient does not hold a seat on this ride")
		}
		return SideDriver, to, nil
	}
	switch len(holders) {
	case 0:
		return "", "", ErrNoCounterpart
	case 1:
		return SideDriver, holders[0], nil
	default:
		return "", "", ErrAmbiguousRecipient.WithField("to", "required when several passengers hold seats")
	}
}

// History returns the conversation visible to actor: everything for the
// driver, a passenger's own thread otherwise.
func (s *Service) History(ctx context.Context, rideID types.ID, actor types.Actor, limit int) ([]Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	r, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID == actor.ID {
		return s.store.History(ctx, rideID, "", limit)
	}
	msgs, err := s.store.History(ctx, rideID, actor.ID, limit)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		holders, err := s.store.SeatHolders(ctx, rideID)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(holders, actor.ID) {
			return nil, ErrNotParticipant
		}
	}
	return msgs, nil
}
