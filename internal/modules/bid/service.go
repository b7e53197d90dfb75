// README: Bid service: price offers that reserve seats when the driver accepts them.
package bid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"carpool/internal/infra"
	"carpool/internal/modules/notify"
	"carpool/internal/modules/ride"
	"carpool/internal/modules/seat"
	"carpool/internal/types"
)

type Rides interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
}

type Service struct {
	db        infra.TxBeginner
	store     *Store
	rides     Rides
	ledger    *seat.Ledger
	publisher notify.Publisher
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewService(db infra.TxBeginner, store *Store, rides Rides, ledger *seat.Ledger, publisher notify.Publisher, log logrus.FieldLogger) *Service {
	return &Service{db: db, store: store, rides: rides, ledger: ledger, publisher: publisher, log: log, now: time.Now}
}

type PlaceCommand struct {
	RideID types.ID
	Bidder types.Actor
	Amount types.Money
	Seats  int
}

type ActionCommand struct {
	BidID types.ID
	Actor types.Actor
}

// Place creates the caller's bid on a ride or replaces their pending one.
func (s *Service) Place(ctx context.Context, cmd PlaceCommand) (*Bid, error) {
	if cmd.Amount.Amount <= 0 {
		return nil, ErrBadRequest.WithField("amount", "must be positive")
	}
	if cmd.Seats < 1 {
		return nil, ErrBadRequest.WithField("seats", "must be at least 1")
	}
	r, err := s.rides.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID == cmd.Bidder.ID {
		return nil, ErrSelfBid
	}
	if err := r.AcceptsPassenger(cmd.Bidder); err != nil {
		return nil, err
	}
	if !r.Bookable(s.now()) {
		return nil, ride.ErrNotBookable
	}
	if cmd.Seats > r.TotalSeats {
		return nil, ErrBadRequest.WithField("seats", fmt.Sprintf("ride has %d seats", r.TotalSeats))
	}
	if cmd.Amount.Currency == "" {
		cmd.Amount.Currency = r.PricePerSeat.Currency
	}
	if cmd.Amount.Currency != r.PricePerSeat.Currency {
		return nil, ErrBadRequest.WithField("currency", "must match the ride's currency "+r.PricePerSeat.Currency)
	}

	var b *Bid
	err = infra.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := s.ledger.Hold(ctx, tx, r.ID); err != nil {
			if errors.Is(err, seat.ErrRideNotBookable) {
				return ride.ErrNotBookable
			}
			return err
		}
		out, err := s.store.Upsert(ctx, tx, &Bid{
			ID:             types.NewID(),
			RideID:         r.ID,
			UserID:         cmd.Bidder.ID,
			Amount:         cmd.Amount,
			SeatsRequested: cmd.Seats,
			CreatedAt:      s.now().UTC(),
		})
		b = out
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"bid_id": b.ID, "ride_id": r.ID, "amount": b.Amount.String()}).Info("bid placed")
	s.publisher.Publish(ctx, bidEvent(r.DriverID, notify.EventBidPlaced, "New bid",
		fmt.Sprintf("A passenger offered %s for %d seat(s).", b.Amount, b.SeatsRequested), b))
	return b, nil
}

func (s *Service) Get(ctx context.Context, id types.ID, actor types.Actor) (*Bid, error) {
	b, r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != actor.ID && r.DriverID != actor.ID {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *Service) ListByRide(ctx context.Context, rideID types.ID, actor types.Actor) ([]Bid, error) {
	r, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != actor.ID {
		return nil, ErrNotRideDriver
	}
	return s.store.ListByRide(ctx, rideID)
}

// Accept reserves the bid's seats and marks it accepted in one transaction.
// When the ledger refuses, nothing changes: the bid stays pending and the
// conflict is returned to the driver.
func (s *Service) Accept(ctx context.Context, cmd ActionCommand) (*Bid, error) {
	return s.respond(ctx, cmd, StatusAccepted, notify.EventBidAccepted, "Bid accepted", "The driver accepted your offer.")
}

func (s *Service) Reject(ctx context.Context, cmd ActionCommand) (*Bid, error) {
	return s.respond(ctx, cmd, StatusRejected, notify.EventBidRejected, "Bid declined", "The driver declined your offer.")
}

// Withdraw cancels the caller's own bid, giving back seats if it was accepted.
func (s *Service) Withdraw(ctx context.Context, cmd ActionCommand) (*Bid, error) {
	b, r, err := s.load(ctx, cmd.BidID)
	if err != nil {
		return nil, err
	}
	if b.UserID != cmd.Actor.ID {
		return nil, ErrNotBidder
	}
	if !CanTransition(b.Status, StatusCancelled) {
		return nil, ErrInvalidState.WithMessage(fmt.Sprintf("bid cannot move from %s to %s", b.Status, StatusCancelled))
	}
	if b.Status == StatusAccepted && r.Status != ride.StatusOpen && r.Status != ride.StatusFull {
		return nil, ride.ErrNotBookable.WithMessage("the ride is no longer open for changes")
	}
	out, err := s.apply(ctx, b, r, StatusCancelled)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, bidEvent(r.DriverID, notify.EventBidWithdrawn, "Bid withdrawn", "A passenger withdrew their offer.", out))
	return out, nil
}

func (s *Service) respond(ctx context.Context, cmd ActionCommand, to Status, typ notify.EventType, title, body string) (*Bid, error) {
	b, r, err := s.load(ctx, cmd.BidID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != cmd.Actor.ID {
		return nil, ErrNotRideDriver
	}
	if !CanTransition(b.Status, to) || b.Status != StatusPending {
		return nil, ErrInvalidState.WithMessage(fmt.Sprintf("bid cannot move from %s to %s", b.Status, to))
	}
	out, err := s.apply(ctx, b, r, to)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, bidEvent(b.UserID, typ, title, body, out))
	return out, nil
}

func (s *Service) apply(ctx context.Context, b *Bid, r *ride.Ride, to Status) (*Bid, error) {
	from := b.Status
	err := infra.InTx(ctx, s.db, func(tx pgx.Tx) error {
		switch {
		case to == StatusAccepted:
			if _, err := s.ledger.Reserve(ctx, tx, r.ID, b.SeatsRequested); err != nil {
				return err
			}
		case from == StatusAccepted:
			if _, err := s.ledger.Release(ctx, tx, r.ID, b.SeatsRequested); err != nil {
				return err
			}
		}
		ok, err := s.store.UpdateStatus(ctx, tx, b.ID, from, to, b.StatusVersion)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"bid_id": b.ID, "to": to}).Info("bid transition refused")
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"bid_id": b.ID, "from": from, "to": to}).Info("bid transition")
	return s.store.Get(ctx, b.ID)
}

func (s *Service) load(ctx context.Context, id types.ID) (*Bid, *ride.Ride, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	r, err := s.rides.Get(ctx, b.RideID)
	if err != nil {
		return nil, nil, err
	}
	return b, r, nil
}

func bidEvent(userID types.ID, typ notify.EventType, title, body string, b *Bid) notify.Event {
	return notify.Event{
		UserID: userID,
		Type:   typ,
		Title:  title,
		Body:   body,
		Data: map[string]string{
			"bid_id":  string(b.ID),
			"ride_id": string(b.RideID),
		},
	}
}
