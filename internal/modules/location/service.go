// README: Location service: drivers share their position during a ride, seat holders read it.
package location

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"carpool/internal/modules/geo"
	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

type Rides interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
}

// Participants lists the users holding seats on a ride.
type Participants interface {
	SeatHolders(ctx context.Context, rideID types.ID) ([]types.ID, error)
}

type Service struct {
	store        *Store
	rides        Rides
	participants Participants
	log          logrus.FieldLogger
	now          func() time.Time
}

func NewService(store *Store, rides Rides, participants Participants, log logrus.FieldLogger) *Service {
	return &Service{store: store, rides: rides, participants: participants, log: log, now: time.Now}
}

type UpdateCommand struct {
	RideID types.ID
	Actor  types.Actor
	Point  types.Point
	Seq    int64
}

// Update stores the driver's position. A stale seq is accepted silently and
// the stored position is returned unchanged.
func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (*Position, error) {
	if !cmd.Point.Valid() {
		return nil, ErrBadUpdate.WithField("point", "valid coordinates are required")
	}
	if cmd.Seq < 1 {
		return nil, ErrBadUpdate.WithField("seq", "must be positive")
	}
	r, err := s.rides.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != cmd.Actor.ID {
		return nil, ErrNotRideDriver
	}
	if r.Status != ride.StatusInProgress {
		return nil, ErrNotTracking
	}

	p := Position{RideID: r.ID, Point: cmd.Point, Seq: cmd.Seq, RecordedAt: s.now().UTC()}
	err = s.store.Set(ctx, p)
	if errors.Is(err, ErrStale) {
		s.log.WithFields(logrus.Fields{"ride_id": r.ID, "seq": cmd.Seq}).Debug("stale location dropped")
		return s.current(ctx, r)
	}
	if err != nil {
		return nil, err
	}
	p.RemainingKm = geo.Round2(geo.HaversineKm(p.Point, r.Destination.Point))
	return &p, nil
}

// Current returns the latest position to the driver or a seat holder.
func (s *Service) Current(ctx context.Context, rideID types.ID, actor types.Actor) (*Position, error) {
	r, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != actor.ID {
		holders, err := s.participants.SeatHolders(ctx, rideID)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(holders, actor.ID) {
			return nil, ErrNotRider
		}
	}
	if r.Status != ride.StatusInProgress {
		return nil, ErrNotTracking
	}
	return s.current(ctx, r)
}

func (s *Service) current(ctx context.Context, r *ride.Ride) (*Position, error) {
	p, err := s.store.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	p.RemainingKm = geo.Round2(geo.HaversineKm(p.Point, r.Destination.Point))
	return p, nil
}
