// README: Bid tests against PostgreSQL, including the mixed booking/bid seat scenario.
package bid

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/infra/pgtest"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/notify"
	"carpool/internal/modules/payment"
	"carpool/internal/modules/ride"
	"carpool/internal/modules/seat"
	"carpool/internal/types"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingPublisher) Publish(_ context.Context, events ...notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *recordingPublisher) eventTypes() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

var (
	ctx    = context.Background()
	driver = types.Actor{ID: "driver_1", Role: types.RoleDriver, Verified: true}
	pA     = types.Actor{ID: "passenger_a", Role: types.RolePassenger, Gender: types.GenderFemale}
	pB     = types.Actor{ID: "passenger_b", Role: types.RolePassenger, Gender: types.GenderMale}
	pC     = types.Actor{ID: "passenger_c", Role: types.RolePassenger, Gender: types.GenderFemale}
)

type fixture struct {
	db     *pgxpool.Pool
	bids   *Service
	ledger *seat.Ledger
	pub    *recordingPublisher
}

func setup(t *testing.T) *fixture {
	db := pgtest.Setup(t)
	log, _ := test.NewNullLogger()
	f := &fixture{db: db, ledger: seat.NewLedger(log), pub: &recordingPublisher{}}
	f.bids = NewService(db, NewStore(db), ride.NewStore(db), f.ledger, f.pub, log)
	return f
}

func (f *fixture) place(t *testing.T, rideID types.ID, who types.Actor, amount int64, seats int) *Bid {
	t.Helper()
	b, err := f.bids.Place(ctx, PlaceCommand{RideID: rideID, Bidder: who, Amount: types.Money{Amount: amount}, Seats: seats})
	require.NoError(t, err)
	return b
}

func (f *fixture) capacity(t *testing.T, rideID types.ID) seat.Capacity {
	t.Helper()
	c, err := f.ledger.Get(ctx, f.db, rideID)
	require.NoError(t, err)
	return c
}

func TestPlace_UpsertReplacesPending(t *testing.T) {
	f := setup(t)
	rideID := pgtest.InsertRide(t, f.db, pgtest.RideFixture{Seats: 3})

	first := f.place(t, rideID, pA, 40000, 1)
	assert.Equal(t, StatusPending, first.Status)
	assert.Equal(t, "PKR", first.Amount.Currency)

	second := f.place(t, rideID, pA, 45000, 2)
	assert.Equal(t, first.ID, second.ID, "re-bidding replaces the same row")
	assert.Equal(t, int64(45000), second.Amount.Amount)
	assert.Equal(t, 2, second.SeatsRequested)
	assert.Greater(t, second.StatusVersion, first.StatusVersion)

	list, err := f.bids.ListByRide(ctx, rideID, driver)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPlace_AnsweredBidIsLocked(t *testing.T) {
	f := setup(t)
	rideID := pgtest.InsertRide(t, f.db, pgtest.RideFixture{Seats: 3})
	b := f.place(t, rideID, pA, 40000, 1)
	_, err := f.bids.Accept(ctx, ActionCommand{BidID: b.ID, Actor: driver})
	require.NoError(t, err)

	_, err = f.bids.Place(ctx, PlaceCommand{RideID: rideID, Bidder: pA, Amount: types.Money{Amount: 1}, Seats: 3})
	assert.ErrorIs(t, err, ErrBidLocked)
	assert.Equal(t, 2, f.capacity(t, rideID).Available, "locked bid keeps its reservation")

	other := f.place(t, rideID, pB, 40000, 1)
	_, err = f.bids.Reject(ctx, ActionCommand{BidID: other.ID, Actor: driver})
	require.NoError(t, err)
	_, err = f.bids.Place(ctx, PlaceCommand{RideID: rideID, Bidder: pB, Amount: types.Money{Amount: 50000}, Seats: 1})
	assert.ErrorIs(t, err, ErrBidLocked)
}

func TestPlace_Rules(t *testing.T) {
	f := setup(t)
	rideID := pgtest.InsertRide(t, f.db, pgtest.RideFixture{Seats: 2})
	womenOnly := pgtest.InsertRide(t, f.db, pgtest.RideFixture{WomenOnly: true})
	started := pgtest.InsertRide(t, f.db, pgtest.RideFixture{Status: "in_progress"})

	tests := []struct {
		name string
		cmd  PlaceCommand
		want error
	}{
		{"zero amount", PlaceCommand{RideID: rideID, Bidder: pA, Seats: 1}, ErrBadRequest},
		{"zero seats", PlaceCommand{RideID: rideID, Bidder: pA, Amount: types.Money{Amount: 1}}, ErrBadRequest},
		{"too many seats", PlaceCommand{RideID: rideID, Bidder: pA, Amount: types.Money{Amount: 1}, Seats: 3}, ErrBadRequest},
		{"wrong currency", PlaceCommand{RideID: rideID, Bidder: pA, Amount: types.Money{Amount: 1, Currency: "USD"}, Seats: 1}, ErrBadRequest},
		{"own ride", PlaceCommand{RideID: rideID, Bidder: driver, Amount: types.Money{Amount: 1}, Seats: 1}, ErrSelfBid},
		{"women only", PlaceCommand{RideID: womenOnly, Bidder: pB, Amount: types.Money{Amount: 1}, Seats: 1}, ride.ErrWomenOnly},
		{"ride started", PlaceCommand{RideID: started, Bidder: pA, Amount: types.Money{Amount: 1}, Seats: 1}, ride.ErrNotBookable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.bids.Place(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRespond_ActorAndStateRules(t *testing.T) {
	f := setup(t)
	rideID := pgtest.InsertRide(t, f.db, pgtest.RideFixture{Seats: 3})
	b := f.place(t, rideID, pA, 40000, 1)

	_, err := f.bids.Accept(ctx, ActionCommand{BidID: b.ID, Actor: pA})
	assert.ErrorIs(t, err, ErrNotRideDriver)
	_, err = f.bids.Withdraw(ctx, ActionCommand{BidID: b.ID, Actor: pB})
	assert.ErrorIs(t, err, ErrNotBidder)
	_, err = f.bids.ListByRide(ctx, rideID, pA)
	assert.ErrorIs(t, err, ErrNotRideDriver)
	_, err = f.bids.Get(ctx, b.ID, pB)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.bids.Reject(ctx, ActionCommand{BidID: b.ID, Actor: driver})
	require.NoError(t, err)
	_, err = f.bids.Accept(ctx, ActionCommand{BidID: b.ID, Actor: driver})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 3, f.capacity(t, rideID).Available)
}

func TestWithdraw_AcceptedReleasesSeats(t *testing.T) {
	f := setup(t)
	rideID := pgtest.InsertRide(t, f.db, pgtest.RideFixture{Seats: 2})
	b := f.place(t, rideID, pA, 40000, 2)

	_, err := f.bids.Accept(ctx, ActionCommand{BidID: b.ID, Actor: driver})
	require.NoError(t, err)
	assert.Equal(t, seat.StatusFull, f.capacity(t, rideID).Status)

	got, err := f.bids.Withdraw(ctx, ActionCommand{BidID: b.ID, Actor: pA})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	c := f.capacity(t, rideID)
	assert.Equal(t, 2, c.Available)
	assert.Equal(t, seat.StatusOpen, c.Status)

	assert.Equal(t, []notify.EventType{notify.EventBidPlaced, notify.EventBidAccepted, notify.EventBidWithdrawn}, f.pub.eventTypes())

	again := f.place(t, rideID, pA, 30000, 1)
	assert.Equal(t, StatusPending, again.Status)
}

// Ride with three seats: A books two and is accepted, B's two-seat bid cannot
// be honoured, C's one-seat bid fills the car, then the driver pulls the ride.
func TestScenario_BookingAndBidsShareTheLedger(t *testing.T) {
	f := setup(t)
	log, _ := test.NewNullLogger()
	rides := ride.NewService(f.db, ride.NewStore(f.db), f.ledger, f.pub, nil, nil, log)
	bookings := booking.NewService(f.db, booking.NewStore(f.db), ride.NewStore(f.db), f.ledger,
		payment.NewGateway(nil, log), f.pub, log)

	rideID := pgtest.InsertRide(t, f.db, pgtest.RideFixture{Seats: 3})

	a, err := bookings.Create(ctx, booking.CreateCommand{RideID: rideID, Passenger: pA, Seats: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, f.capacity(t, rideID).Available, "pending bookings hold no seats")

	_, err = bookings.Accept(ctx, booking.ActionCommand{BookingID: a.ID, Actor: driver})
	require.NoError(t, err)
	c := f.capacity(t, rideID)
	assert.Equal(t, 1, c.Available)
	assert.Equal(t, seat.StatusOpen, c.Status)

	bBid := f.place(t, rideID, pB, 35000, 2)
	_, err = f.bids.Accept(ctx, ActionCommand{BidID: bBid.ID, Actor: driver})
	assert.ErrorIs(t, err, seat.ErrInsufficientSeats)
	stillPending, err := f.bids.Get(ctx, bBid.ID, driver)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stillPending.Status)
	assert.Equal(t, 1, f.capacity(t, rideID).Available)

	cBid := f.place(t, rideID, pC, 45000, 1)
	_, err = f.bids.Accept(ctx, ActionCommand{BidID: cBid.ID, Actor: driver})
	require.NoError(t, err)
	c = f.capacity(t, rideID)
	assert.Equal(t, 0, c.Available)
	assert.Equal(t, seat.StatusFull, c.Status)

	audit, err := f.ledger.Audit(ctx, f.db, rideID)
	require.NoError(t, err)
	assert.True(t, audit.Consistent())

	res, err := rides.Cancel(ctx, ride.CancelCommand{RideID: rideID, Actor: driver})
	require.NoError(t, err)
	assert.Equal(t, ride.StatusCancelled, res.Ride.Status)

	gotA, err := bookings.Get(ctx, a.ID, pA)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, gotA.Status)
	gotC, err := f.bids.Get(ctx, cBid.ID, pC)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, gotC.Status)
	gotB, err := f.bids.Get(ctx, bBid.ID, pB)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, gotB.Status)
}

func TestPlace_LosesToConcurrentRideCancel(t *testing.T) {
	f := setup(t)
	rideID := pgtest.InsertRide(t, f.db, pgtest.RideFixture{Seats: 3})

	tx, err := f.db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	_, err = tx.Exec(ctx, `SELECT id FROM rides WHERE id = $1 FOR UPDATE`, string(rideID))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.bids.Place(ctx, PlaceCommand{RideID: rideID, Bidder: pA, Amount: types.Money{Amount: 40000}, Seats: 1})
		done <- err
	}()
	pgtest.WaitForLockWaiters(t, f.db, 1)

	_, err = tx.Exec(ctx, `UPDATE rides SET status = 'cancelled' WHERE id = $1`, string(rideID))
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.ErrorIs(t, <-done, ride.ErrNotBookable)
	assert.Zero(t, pgtest.Scalar[int](t, f.db, `SELECT COUNT(*)::int FROM bids WHERE ride_id = $1`, string(rideID)))
	assert.Empty(t, f.pub.eventTypes())
}
