// README: Booking service implements the booking state machine on top of the seat ledger.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"carpool/internal/infra"
	"carpool/internal/modules/notify"
	"carpool/internal/modules/payment"
	"carpool/internal/modules/ride"
	"carpool/internal/modules/seat"
	"carpool/internal/types"
)

// Rides is what bookings need to know about rides.
type Rides interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
}

type Service struct {
	db        infra.TxBeginner
	store     *Store
	rides     Rides
	ledger    *seat.Ledger
	payments  payment.Settler
	publisher notify.Publisher
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewService(db infra.TxBeginner, store *Store, rides Rides, ledger *seat.Ledger, payments payment.Settler, publisher notify.Publisher, log logrus.FieldLogger) *Service {
	return &Service{
		db:        db,
		store:     store,
		rides:     rides,
		ledger:    ledger,
		payments:  payments,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

type CreateCommand struct {
	RideID    types.ID
	Passenger types.Actor
	Seats     int
	Pickup    *types.Point
	Drop      *types.Point
}

// ActionCommand drives a single transition on a booking.
type ActionCommand struct {
	BookingID types.ID
	Actor     types.Actor
}

type ConfirmCommand struct {
	BookingID       types.ID
	Actor           types.Actor
	Method          payment.Method
	PaymentMethodID string
	AttemptID       string
}

type RateCommand struct {
	BookingID types.ID
	Actor     types.Actor
	Stars     int
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Booking, error) {
	if cmd.Seats < 1 {
		return nil, ErrBadRequest.WithField("seats", "must be at least 1")
	}
	for field, p := range map[string]*types.Point{"pickup": cmd.Pickup, "drop": cmd.Drop} {
		if p != nil && !p.Valid() {
			return nil, ErrBadRequest.WithField(field, "invalid coordinates")
		}
	}
	r, err := s.rides.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if err := r.AcceptsPassenger(cmd.Passenger); err != nil {
		return nil, err
	}
	if !r.Bookable(s.now()) {
		if !r.DepartureTime.After(s.now()) {
			return nil, ErrDeparted
		}
		return nil, ride.ErrNotBookable
	}
	if cmd.Seats > r.TotalSeats {
		return nil, ErrBadRequest.WithField("seats", fmt.Sprintf("ride has %d seats", r.TotalSeats))
	}
	// Availability is advisory here; accept re-validates through the ledger.
	if cmd.Seats > r.AvailableSeats {
		return nil, seat.ErrInsufficientSeats
	}
	active, err := s.store.HasActive(ctx, r.ID, cmd.Passenger.ID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrActiveBooking
	}

	now := s.now().UTC()
	b := &Booking{
		ID:            types.NewID(),
		RideID:        r.ID,
		PassengerID:   cmd.Passenger.ID,
		SeatsBooked:   cmd.Seats,
		Amount:        r.PricePerSeat.Times(cmd.Seats),
		Pickup:        cmd.Pickup,
		Drop:          cmd.Drop,
		Status:        StatusPending,
		PaymentStatus: PaymentUnpaid,
		CreatedAt:     now,
	}
	// The ride row is share-locked so a concurrent cancellation either sees
	// this booking or commits first and makes the hold fail. The partial
	// unique index backs up HasActive against concurrent creates.
	err = infra.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := s.ledger.Hold(ctx, tx, r.ID); err != nil {
			if errors.Is(err, seat.ErrRideNotBookable) {
				return ride.ErrNotBookable
			}
			return err
		}
		if err := s.store.Create(ctx, tx, b); err != nil {
			return err
		}
		return s.store.AppendEvent(ctx, tx, &Event{
			BookingID:  b.ID,
			FromStatus: StatusNone,
			ToStatus:   StatusPending,
			ActorType:  "passenger",
			ActorID:    &cmd.Passenger.ID,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, bookingEvent(r.DriverID, notify.EventBookingRequested, "New booking request",
		fmt.Sprintf("A passenger requested %d seat(s).", b.SeatsBooked), b))
	return b, nil
}

func (s *Service) Get(ctx context.Context, id types.ID, actor types.Actor) (*Booking, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.PassengerID == actor.ID {
		return b, nil
	}
	r, err := s.rides.Get(ctx, b.RideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != actor.ID {
		// Hide existence from unrelated callers.
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *Service) ListByPassenger(ctx context.Context, passengerID types.ID, limit int) ([]Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListByPassenger(ctx, passengerID, limit)
}

func (s *Service) ListByRide(ctx context.Context, rideID types.ID, actor types.Actor) ([]Booking, error) {
	r, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != actor.ID {
		return nil, ErrNotRideDriver
	}
	return s.store.ListByRide(ctx, rideID)
}

// Accept reserves the booking's seats and marks it accepted, atomically.
func (s *Service) Accept(ctx context.Context, cmd ActionCommand) (*Booking, error) {
	return s.transition(ctx, cmd.BookingID, cmd.Actor, StatusAccepted)
}

func (s *Service) Reject(ctx context.Context, cmd ActionCommand) (*Booking, error) {
	return s.transition(ctx, cmd.BookingID, cmd.Actor, StatusRejected)
}

// Confirm settles payment and then confirms an accepted booking.
func (s *Service) Confirm(ctx context.Context, cmd ConfirmCommand) (*Booking, error) {
	b, r, err := s.load(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(b, r, cmd.Actor, StatusConfirmed); err != nil {
		return nil, err
	}
	if err := checkTransition(b.Status, StatusConfirmed); err != nil {
		return nil, err
	}

	receipt, err := s.payments.Settle(ctx, payment.Request{
		BookingID:       b.ID,
		PayerID:         b.PassengerID,
		Amount:          b.Amount,
		Method:          cmd.Method,
		PaymentMethodID: cmd.PaymentMethodID,
		AttemptID:       cmd.AttemptID,
	})
	if err != nil {
		s.log.WithError(err).WithField("booking_id", b.ID).Info("payment not settled")
		return nil, err
	}
	out, err := s.apply(ctx, b, r, cmd.Actor, StatusConfirmed, &Payment{Method: string(receipt.Method), Reference: receipt.Reference})
	if err != nil {
		// The charge went through but the booking moved underneath us.
		s.log.WithError(err).WithFields(logrus.Fields{"booking_id": b.ID, "payment_ref": receipt.Reference}).
			Error("payment settled but confirmation lost")
		return nil, err
	}
	return out, nil
}

// Cancel withdraws the passenger from the ride, releasing held seats.
func (s *Service) Cancel(ctx context.Context, cmd ActionCommand) (*Booking, error) {
	return s.transition(ctx, cmd.BookingID, cmd.Actor, StatusCancelled)
}

func (s *Service) PickUp(ctx context.Context, cmd ActionCommand) (*Booking, error) {
	return s.transition(ctx, cmd.BookingID, cmd.Actor, StatusPickedUp)
}

func (s *Service) DropOff(ctx context.Context, cmd ActionCommand) (*Booking, error) {
	return s.transition(ctx, cmd.BookingID, cmd.Actor, StatusDroppedOff)
}

// NoShow marks a confirmed passenger who never turned up and frees their seats.
func (s *Service) NoShow(ctx context.Context, cmd ActionCommand) (*Booking, error) {
	return s.transition(ctx, cmd.BookingID, cmd.Actor, StatusNoShow)
}

// RateDriver records the passenger's rating of the driver.
func (s *Service) RateDriver(ctx context.Context, cmd RateCommand) (*Booking, error) {
	return s.rate(ctx, cmd, "driver_rating", func(b *Booking, _ *ride.Ride) bool {
		return b.PassengerID == cmd.Actor.ID
	}, ErrNotPassenger)
}

// RatePassenger records the driver's rating of the passenger.
func (s *Service) RatePassenger(ctx context.Context, cmd RateCommand) (*Booking, error) {
	return s.rate(ctx, cmd, "passenger_rating", func(_ *Booking, r *ride.Ride) bool {
		return r.DriverID == cmd.Actor.ID
	}, ErrNotRideDriver)
}

func (s *Service) rate(ctx context.Context, cmd RateCommand, column string, allowed func(*Booking, *ride.Ride) bool, denied error) (*Booking, error) {
	if cmd.Stars < MinStars || cmd.Stars > MaxStars {
		return nil, ErrBadRequest.WithField("rating", fmt.Sprintf("must be between %d and %d", MinStars, MaxStars))
	}
	b, r, err := s.load(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if !allowed(b, r) {
		return nil, denied
	}
	ok, err := s.store.SetRating(ctx, b.ID, column, cmd.Stars)
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, err := s.store.Get(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if cur.Status != StatusDroppedOff {
			return nil, ErrRatingNotAllowed
		}
		return nil, ErrAlreadyRated
	}
	return s.store.Get(ctx, b.ID)
}

func (s *Service) load(ctx context.Context, id types.ID) (*Booking, *ride.Ride, error) {
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

func (s *Service) transition(ctx context.Context, id types.ID, actor types.Actor, to Status) (*Booking, error) {
	b, r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(b, r, actor, to); err != nil {
		return nil, err
	}
	if err := checkTransition(b.Status, to); err != nil {
		return nil, err
	}
	switch to {
	case StatusPickedUp, StatusDroppedOff, StatusNoShow:
		if r.Status != ride.StatusInProgress {
			return nil, ErrRideNotStarted
		}
	}
	return s.apply(ctx, b, r, actor, to, nil)
}

// authorize applies the actor rules: the ride's driver answers requests and
// runs the trip, the booking's passenger confirms and cancels.
func (s *Service) authorize(b *Booking, r *ride.Ride, actor types.Actor, to Status) error {
	switch to {
	case StatusConfirmed, StatusCancelled:
		if b.PassengerID != actor.ID {
			return ErrNotPassenger
		}
	default:
		if r.DriverID != actor.ID {
			return ErrNotRideDriver
		}
	}
	return nil
}

func checkTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	switch {
	case to == StatusConfirmed && from == StatusConfirmed:
		return ErrAlreadyConfirmed
	case to == StatusCancelled && (from == StatusPickedUp || from == StatusDroppedOff):
		return ErrTooLateToCancel
	}
	return ErrInvalidState.WithMessage(fmt.Sprintf("booking cannot move from %s to %s", from, to))
}

// apply runs the ledger effect, the compare-and-set and the event append in
// one transaction, then notifies the counter-party.
func (s *Service) apply(ctx context.Context, b *Booking, r *ride.Ride, actor types.Actor, to Status, pay *Payment) (*Booking, error) {
	from := b.Status
	err := infra.InTx(ctx, s.db, func(tx pgx.Tx) error {
		switch {
		case to == StatusAccepted:
			if _, err := s.ledger.Reserve(ctx, tx, r.ID, b.SeatsBooked); err != nil {
				return err
			}
		case HoldsSeats(from) && !HoldsSeats(to):
			if _, err := s.ledger.Release(ctx, tx, r.ID, b.SeatsBooked); err != nil {
				return err
			}
		}
		ok, err := s.store.UpdateStatus(ctx, tx, b.ID, from, to, b.StatusVersion, pay)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}
		return s.store.AppendEvent(ctx, tx, &Event{
			BookingID:  b.ID,
			FromStatus: from,
			ToStatus:   to,
			ActorType:  actorType(b, actor),
			ActorID:    &actor.ID,
			CreatedAt:  s.now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"booking_id": b.ID, "from": from, "to": to}).Info("booking transition")
	s.publisher.Publish(ctx, counterpartyEvent(b, r, to))

	out, err := s.store.Get(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func actorType(b *Booking, actor types.Actor) string {
	if actor.ID == b.PassengerID {
		return "passenger"
	}
	return "driver"
}

// counterpartyEvent addresses the notification for a transition to whoever
// did not perform it.
func counterpartyEvent(b *Booking, r *ride.Ride, to Status) notify.Event {
	switch to {
	case StatusAccepted:
		return bookingEvent(b.PassengerID, notify.EventBookingAccepted, "Booking accepted", "The driver accepted your request. Confirm to secure your seat.", b)
	case StatusRejected:
		return bookingEvent(b.PassengerID, notify.EventBookingRejected, "Booking declined", "The driver declined your request.", b)
	case StatusConfirmed:
		return bookingEvent(r.DriverID, notify.EventBookingConfirmed, "Booking confirmed", "A passenger confirmed their booking.", b)
	case StatusCancelled:
		return bookingEvent(r.DriverID, notify.EventBookingCancelled, "Booking cancelled", "A passenger cancelled their booking.", b)
	case StatusPickedUp:
		return bookingEvent(b.PassengerID, notify.EventPassengerPickedUp, "Picked up", "Enjoy your ride.", b)
	case StatusDroppedOff:
		return bookingEvent(b.PassengerID, notify.EventPassengerDropped, "Dropped off", "You have arrived. Please rate your driver.", b)
	default:
		return bookingEvent(b.PassengerID, notify.EventPassengerNoShow, "Marked as no-show", "The driver marked you as a no-show.", b)
	}
}

func bookingEvent(userID types.ID, typ notify.EventType, title, body string, b *Booking) notify.Event {
	return notify.Event{
		UserID: userID,
		Type:   typ,
		Title:  title,
		Body:   body,
		Data: map[string]string{
			"booking_id": string(b.ID),
			"ride_id":    string(b.RideID),
		},
	}
}
