// README: Ride service: publishing, driver lifecycle actions and the cancellation cascade.
package ride

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"carpool/internal/apperr"
	"carpool/internal/infra"
	"carpool/internal/modules/notify"
	"carpool/internal/modules/seat"
	"carpool/internal/types"
)

// Geocoder resolves a free-form address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
}

// RouteEstimator returns the driving distance and duration between two points.
type RouteEstimator interface {
	Estimate(ctx context.Context, from, to types.Point) (distanceKm float64, duration time.Duration, err error)
}

// Tracker forgets a ride's live position once the ride is over.
type Tracker interface {
	Clear(ctx context.Context, rideID types.ID) error
}

type Service struct {
	db        infra.TxBeginner
	store     *Store
	ledger    *seat.Ledger
	publisher notify.Publisher
	geocoder  Geocoder
	routes    RouteEstimator
	tracker   Tracker
	log       logrus.FieldLogger
	now       func() time.Time
	// cascadeRetries bounds how often a failed cascade transaction is retried.
	cascadeRetries uint64
	cascadeBackoff func() backoff.BackOff
}

// NewService wires the ride service. geocoder and routes may be nil.
func NewService(db infra.TxBeginner, store *Store, ledger *seat.Ledger, publisher notify.Publisher, geocoder Geocoder, routes RouteEstimator, log logrus.FieldLogger) *Service {
	return &Service{
		db:             db,
		store:          store,
		ledger:         ledger,
		publisher:      publisher,
		geocoder:       geocoder,
		routes:         routes,
		log:            log,
		now:            time.Now,
		cascadeRetries: 5,
		cascadeBackoff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// SetTracker registers where live positions are kept so they can be dropped
// when a ride completes or is cancelled.
func (s *Service) SetTracker(t Tracker) {
	s.tracker = t
}

func (s *Service) forgetPosition(ctx context.Context, rideID types.ID) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Clear(ctx, rideID); err != nil {
		s.log.WithError(err).WithField("ride_id", rideID).Warn("clear live position")
	}
}

type CreateCommand struct {
	Driver        types.Actor
	Origin        types.Place
	Destination   types.Place
	DepartureTime time.Time
	TotalSeats    int
	PricePerSeat  types.Money
	Recurrence    Recurrence
	Preferences   Preferences
	Notes         string
}

type ActionCommand struct {
	RideID types.ID
	Actor  types.Actor
}

type CancelCommand struct {
	RideID types.ID
	Actor  types.Actor
	Reason string
}

// CancelResult lists what the cascade terminated.
type CancelResult struct {
	Ride     *Ride      `json:"ride"`
	Bookings []Affected `json:"-"`
	Bids     []Affected `json:"-"`
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	if cmd.Driver.Role != types.RoleDriver {
		return nil, ErrNotDriver
	}
	if !cmd.Driver.Verified {
		return nil, ErrDriverNotVerified
	}
	if err := s.resolvePlace(ctx, "origin", &cmd.Origin); err != nil {
		return nil, err
	}
	if err := s.resolvePlace(ctx, "destination", &cmd.Destination); err != nil {
		return nil, err
	}
	if err := s.validateCreate(&cmd); err != nil {
		return nil, err
	}

	r := &Ride{
		ID:             types.NewID(),
		DriverID:       cmd.Driver.ID,
		Origin:         cmd.Origin,
		Destination:    cmd.Destination,
		DepartureTime:  cmd.DepartureTime.UTC(),
		TotalSeats:     cmd.TotalSeats,
		AvailableSeats: cmd.TotalSeats,
		PricePerSeat:   cmd.PricePerSeat,
		Status:         StatusOpen,
		Recurrence:     cmd.Recurrence,
		Preferences:    cmd.Preferences,
		Notes:          strings.TrimSpace(cmd.Notes),
		CreatedAt:      s.now().UTC(),
	}
	s.estimateRoute(ctx, r)

	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"ride_id": r.ID, "driver_id": r.DriverID, "seats": r.TotalSeats}).Info("ride published")
	return r, nil
}

func (s *Service) validateCreate(cmd *CreateCommand) error {
	if cmd.Origin.Point == cmd.Destination.Point {
		return ErrBadRequest.WithField("destination", "must differ from origin")
	}
	if cmd.TotalSeats < 1 || cmd.TotalSeats > MaxSeats {
		return ErrBadRequest.WithField("total_seats", fmt.Sprintf("must be between 1 and %d", MaxSeats))
	}
	if !cmd.DepartureTime.After(s.now()) {
		return ErrBadRequest.WithField("departure_time", "must be in the future")
	}
	if cmd.PricePerSeat.Amount < 0 {
		return ErrBadRequest.WithField("price_per_seat", "must not be negative")
	}
	if cmd.PricePerSeat.Currency == "" {
		cmd.PricePerSeat.Currency = types.DefaultCurrency
	}
	switch cmd.Recurrence.Kind {
	case "":
		cmd.Recurrence.Kind = RecurrenceSingle
		cmd.Recurrence.EndDate = nil
	case RecurrenceSingle:
		cmd.Recurrence.EndDate = nil
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		if cmd.Recurrence.EndDate != nil && !cmd.Recurrence.EndDate.After(cmd.DepartureTime) {
			return ErrBadRequest.WithField("recurrence_end_date", "must be after departure_time")
		}
	default:
		return ErrBadRequest.WithField("recurrence", "must be one of single, daily, weekly, monthly")
	}
	return nil
}

// resolvePlace geocodes the address when no coordinates were supplied.
func (s *Service) resolvePlace(ctx context.Context, field string, p *types.Place) error {
	p.Address = strings.TrimSpace(p.Address)
	if p.Address == "" {
		return ErrBadRequest.WithField(field+"_address", "is required")
	}
	if p.Point.Valid() {
		return nil
	}
	if p.Point != (types.Point{}) || s.geocoder == nil {
		return ErrBadRequest.WithField(field, "valid coordinates are required")
	}
	pt, err := s.geocoder.Geocode(ctx, p.Address)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return ae.WithField(field+"_address", "could not be located")
		}
		return apperr.Upstream("geocoding_failed", "address lookup failed").WithField(field+"_address", err.Error())
	}
	p.Point = pt
	return nil
}

// estimateRoute fills distance and duration when a route estimator is wired.
// A failed estimate does not block publishing.
func (s *Service) estimateRoute(ctx context.Context, r *Ride) {
	if s.routes == nil {
		return
	}
	km, dur, err := s.routes.Estimate(ctx, r.Origin.Point, r.Destination.Point)
	if err != nil {
		s.log.WithError(err).WithField("ride_id", r.ID).Warn("route estimate failed")
		return
	}
	mins := int(dur.Round(time.Minute) / time.Minute)
	r.DistanceKm = &km
	r.DurationMin = &mins
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByDriver(ctx context.Context, driverID types.ID, limit int) ([]Ride, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListByDriver(ctx, driverID, limit)
}

// WithinBounds exposes the search prefilter to the geo search.
func (s *Service) WithinBounds(ctx context.Context, q AreaQuery) ([]Ride, error) {
	return s.store.WithinBounds(ctx, q)
}

func (s *Service) Badges(ctx context.Context, driverID types.ID) (Badges, error) {
	return s.store.Badges(ctx, driverID, s.now())
}

// Start moves an open or full ride to in_progress.
func (s *Service) Start(ctx context.Context, cmd ActionCommand) (*Ride, error) {
	r, err := s.driverTransition(ctx, cmd.RideID, cmd.Actor, StatusInProgress, nil, nil)
	if err != nil {
		return nil, err
	}
	passengers, err := s.store.ConfirmedPassengers(ctx, r.ID)
	if err != nil {
		s.log.WithError(err).WithField("ride_id", r.ID).Warn("list confirmed passengers")
	}
	events := make([]notify.Event, 0, len(passengers))
	for _, p := range passengers {
		events = append(events, rideEvent(p, notify.EventRideStarted, "Ride started", "Your driver has started the ride.", r.ID))
	}
	s.publisher.Publish(ctx, events...)
	return r, nil
}

// Complete finishes an in-progress ride. Picked-up passengers are dropped off;
// bookings that were never picked up are left as they are.
func (s *Service) Complete(ctx context.Context, cmd ActionCommand) (*Ride, error) {
	var dropped []Affected
	r, err := s.driverTransition(ctx, cmd.RideID, cmd.Actor, StatusCompleted, nil, func(tx pgx.Tx, r *Ride) error {
		var err error
		dropped, err = s.store.DropOffBookings(ctx, tx, r.ID, cmd.Actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	events := make([]notify.Event, 0, len(dropped))
	for _, a := range dropped {
		events = append(events, rideEvent(a.UserID, notify.EventRideCompleted, "Ride completed", "You have arrived. Please rate your driver.", r.ID))
	}
	s.forgetPosition(ctx, r.ID)
	s.publisher.Publish(ctx, events...)
	return r, nil
}

// Cancel pulls the ride and everything hanging off it in one transaction:
// pending, accepted and confirmed bookings and pending or accepted bids are
// cancelled and their seats released. A failed transaction is retried as a
// whole; notifications go out only after commit.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*CancelResult, error) {
	var reason *string
	if r := strings.TrimSpace(cmd.Reason); r != "" {
		reason = &r
	}

	var res CancelResult
	op := func() error {
		res = CancelResult{}
		r, err := s.driverTransition(ctx, cmd.RideID, cmd.Actor, StatusCancelled, reason, func(tx pgx.Tx, r *Ride) error {
			bookings, err := s.store.CancelBookings(ctx, tx, r.ID, cmd.Actor.ID)
			if err != nil {
				return fmt.Errorf("cancel bookings: %w", err)
			}
			bids, err := s.store.CancelBids(ctx, tx, r.ID)
			if err != nil {
				return fmt.Errorf("cancel bids: %w", err)
			}
			for _, a := range append(append([]Affected{}, bookings...), bids...) {
				if !a.HeldSeats {
					continue
				}
				if _, err := s.ledger.Release(ctx, tx, r.ID, a.Seats); err != nil {
					return fmt.Errorf("release seats: %w", err)
				}
			}
			res.Bookings, res.Bids = bookings, bids
			return nil
		})
		if err != nil {
			var ae *apperr.Error
			if errors.As(err, &ae) {
				return backoff.Permanent(err)
			}
			s.log.WithError(err).WithField("ride_id", cmd.RideID).Warn("ride cancellation failed, retrying")
			return err
		}
		res.Ride = r
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(s.cascadeBackoff(), s.cascadeRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"ride_id":  res.Ride.ID,
		"bookings": len(res.Bookings),
		"bids":     len(res.Bids),
	}).Info("ride cancelled")
	s.forgetPosition(ctx, res.Ride.ID)
	s.publisher.Publish(ctx, cancelEvents(res)...)
	return &res, nil
}

// cancelEvents builds one notification per affected user.
func cancelEvents(res CancelResult) []notify.Event {
	body := "Your ride has been cancelled by the driver."
	if res.Ride.CancelReason != nil {
		body = fmt.Sprintf("Your ride has been cancelled by the driver: %s", *res.Ride.CancelReason)
	}
	seen := make(map[types.ID]bool)
	var events []notify.Event
	for _, a := range append(append([]Affected{}, res.Bookings...), res.Bids...) {
		if seen[a.UserID] {
			continue
		}
		seen[a.UserID] = true
		events = append(events, rideEvent(a.UserID, notify.EventRideCancelled, "Ride cancelled", body, res.Ride.ID))
	}
	return events
}

// driverTransition locks the ride, checks the caller drives it and that the
// move is allowed, runs fn and then flips the status, all in one transaction.
func (s *Service) driverTransition(ctx context.Context, rideID types.ID, actor types.Actor, to Status, reason *string, fn func(tx pgx.Tx, r *Ride) error) (*Ride, error) {
	var out *Ride
	err := infra.InTx(ctx, s.db, func(tx pgx.Tx) error {
		r, err := s.store.GetForUpdate(ctx, tx, rideID)
		if err != nil {
			return err
		}
		if r.DriverID != actor.ID {
			return ErrNotRideDriver
		}
		if !CanTransition(r.Status, to) {
			return ErrInvalidState.WithMessage(fmt.Sprintf("ride cannot move from %s to %s", r.Status, to))
		}
		if fn != nil {
			if err := fn(tx, r); err != nil {
				return err
			}
		}
		ok, err := s.store.UpdateStatus(ctx, tx, r.ID, to, reason)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidState
		}
		now := s.now().UTC()
		switch to {
		case StatusInProgress:
			r.StartedAt = &now
		case StatusCompleted:
			r.CompletedAt = &now
		case StatusCancelled:
			r.CancelledAt = &now
			if reason != nil {
				r.CancelReason = reason
			}
		}
		r.Status = to
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func rideEvent(userID types.ID, typ notify.EventType, title, body string, rideID types.ID) notify.Event {
	return notify.Event{
		UserID: userID,
		Type:   typ,
		Title:  title,
		Body:   body,
		Data:   map[string]string{"ride_id": string(rideID)},
	}
}
