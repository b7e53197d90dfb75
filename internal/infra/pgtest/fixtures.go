// README: Row fixtures for DB-backed tests.
package pgtest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"carpool/internal/types"
)

type RideFixture struct {
	DriverID  types.ID
	Seats     int
	Available *int
	Status    string
	WomenOnly bool
	Departure time.Time
	Origin    types.Point
	Dest      types.Point
}

// InsertRide writes a ride row with sensible Lahore defaults.
func InsertRide(t *testing.T, db *pgxpool.Pool, f RideFixture) types.ID {
	t.Helper()
	if f.DriverID == "" {
		f.DriverID = "driver_1"
	}
	if f.Seats == 0 {
		f.Seats = 3
	}
	avail := f.Seats
	if f.Available != nil {
		avail = *f.Available
	}
	if f.Status == "" {
		f.Status = "open"
	}
	if f.Departure.IsZero() {
		f.Departure = time.Now().Add(2 * time.Hour)
	}
	if f.Origin == (types.Point{}) {
		f.Origin = types.Point{Lat: 31.5102, Lng: 74.3441}
	}
	if f.Dest == (types.Point{}) {
		f.Dest = types.Point{Lat: 31.4697, Lng: 74.4085}
	}
	id := types.NewID()
	_, err := db.Exec(context.Background(), `
		INSERT INTO rides (id, driver_id, origin_address, origin_lat, origin_lng,
		                   destination_address, destination_lat, destination_lng,
		                   departure_time, total_seats, available_seats, price_per_seat, currency, status, women_only)
		VALUES ($1, $2, 'Liberty Market', $3, $4, 'DHA Phase 5', $5, $6,
		        $7, $8, $9, 50000, 'PKR', $10, $11)`,
		string(id), string(f.DriverID), f.Origin.Lat, f.Origin.Lng, f.Dest.Lat, f.Dest.Lng,
		f.Departure, f.Seats, avail, f.Status, f.WomenOnly)
	if err != nil {
		t.Fatalf("insert ride: %v", err)
	}
	return id
}

// InsertBooking writes a booking row directly, bypassing the ledger.
func InsertBooking(t *testing.T, db *pgxpool.Pool, rideID, passengerID types.ID, seats int, status string) types.ID {
	t.Helper()
	id := types.NewID()
	_, err := db.Exec(context.Background(), `
		INSERT INTO bookings (id, ride_id, passenger_id, seats_booked, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, 'PKR', $6)`,
		string(id), string(rideID), string(passengerID), seats, int64(seats)*50000, status)
	if err != nil {
		t.Fatalf("insert booking: %v", err)
	}
	return id
}

// InsertBid writes a bid row directly, bypassing the ledger.
func InsertBid(t *testing.T, db *pgxpool.Pool, rideID, userID types.ID, seats int, status string) types.ID {
	t.Helper()
	id := types.NewID()
	_, err := db.Exec(context.Background(), `
		INSERT INTO bids (id, ride_id, user_id, amount, currency, seats_requested, status)
		VALUES ($1, $2, $3, 40000, 'PKR', $4, $5)`,
		string(id), string(rideID), string(userID), seats, status)
	if err != nil {
		t.Fatalf("insert bid: %v", err)
	}
	return id
}

// Scalar runs a single-value query and fails the test on error.
func Scalar[T any](t *testing.T, db *pgxpool.Pool, sql string, args ...any) T {
	t.Helper()
	var v T
	if err := db.QueryRow(context.Background(), sql, args...).Scan(&v); err != nil {
		t.Fatalf("scalar %q: %v", sql, err)
	}
	return v
}

// WaitForLockWaiters blocks until at least n sessions are waiting on a row or
// table lock in the test database.
func WaitForLockWaiters(t *testing.T, db *pgxpool.Pool, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		waiting := Scalar[int](t, db, `
			SELECT COUNT(*)::int FROM pg_stat_activity
			WHERE datname = current_database() AND wait_event_type = 'Lock'`)
		if waiting >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lock waiter(s)", n)
}
