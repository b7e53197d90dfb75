package location

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/infra/redistest"
	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

type fakeRides map[types.ID]*ride.Ride

func (f fakeRides) Get(_ context.Context, id types.ID) (*ride.Ride, error) {
	r, ok := f[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	return r, nil
}

type fakeParticipants []types.ID

func (f fakeParticipants) SeatHolders(context.Context, types.ID) ([]types.ID, error) {
	return f, nil
}

var (
	ctx    = context.Background()
	driver = types.Actor{ID: "driver_1", Role: types.RoleDriver, Verified: true}
	alice  = types.Actor{ID: "alice", Role: types.RolePassenger}
	bob    = types.Actor{ID: "bob", Role: types.RolePassenger}
	lahore = types.Point{Lat: 31.5102, Lng: 74.3441}
)

func testRide(id types.ID, status ride.Status) *ride.Ride {
	return &ride.Ride{
		ID:          id,
		DriverID:    driver.ID,
		Status:      status,
		Destination: types.Place{Address: "DHA Phase 5", Point: types.Point{Lat: 31.4697, Lng: 74.4085}},
	}
}

func newService(store *Store, rides fakeRides) *Service {
	log, _ := test.NewNullLogger()
	return NewService(store, rides, fakeParticipants{alice.ID}, log)
}

func TestUpdate_Rejections(t *testing.T) {
	svc := newService(nil, fakeRides{
		"r_open": testRide("r_open", ride.StatusOpen),
		"r_live": testRide("r_live", ride.StatusInProgress),
	})

	_, err := svc.Update(ctx, UpdateCommand{RideID: "r_live", Actor: driver, Seq: 1})
	assert.ErrorIs(t, err, ErrBadUpdate)

	_, err = svc.Update(ctx, UpdateCommand{RideID: "r_live", Actor: driver, Point: lahore})
	assert.ErrorIs(t, err, ErrBadUpdate)

	_, err = svc.Update(ctx, UpdateCommand{RideID: "missing", Actor: driver, Point: lahore, Seq: 1})
	assert.ErrorIs(t, err, ride.ErrNotFound)

	_, err = svc.Update(ctx, UpdateCommand{RideID: "r_live", Actor: alice, Point: lahore, Seq: 1})
	assert.ErrorIs(t, err, ErrNotRideDriver)

	_, err = svc.Update(ctx, UpdateCommand{RideID: "r_open", Actor: driver, Point: lahore, Seq: 1})
	assert.ErrorIs(t, err, ErrNotTracking)
}

func TestCurrent_Visibility(t *testing.T) {
	svc := newService(nil, fakeRides{"r_open": testRide("r_open", ride.StatusOpen)})

	_, err := svc.Current(ctx, "r_open", bob)
	assert.ErrorIs(t, err, ErrNotRider)

	_, err = svc.Current(ctx, "r_open", alice)
	assert.ErrorIs(t, err, ErrNotTracking)
}

func TestUpdateAndCurrent_Redis(t *testing.T) {
	rideID := types.ID("loc_" + types.NewID())
	client := redistest.Setup(t, key(rideID))
	svc := newService(NewStore(client, time.Minute), fakeRides{rideID: testRide(rideID, ride.StatusInProgress)})

	_, err := svc.Current(ctx, rideID, alice)
	assert.ErrorIs(t, err, ErrNoPosition)

	p, err := svc.Update(ctx, UpdateCommand{RideID: rideID, Actor: driver, Point: lahore, Seq: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Seq)
	assert.InDelta(t, 7.6, p.RemainingKm, 0.5)

	// An older seq arriving late does not move the driver backwards.
	p, err = svc.Update(ctx, UpdateCommand{RideID: rideID, Actor: driver, Point: types.Point{Lat: 31.6, Lng: 74.2}, Seq: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Seq)
	assert.Equal(t, lahore, p.Point)

	got, err := svc.Current(ctx, rideID, alice)
	require.NoError(t, err)
	assert.Equal(t, lahore, got.Point)

	ttl, err := client.TTL(ctx, key(rideID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, NewStore(client, time.Minute).Clear(ctx, rideID))
	_, err = svc.Current(ctx, rideID, alice)
	assert.ErrorIs(t, err, ErrNoPosition)
}
