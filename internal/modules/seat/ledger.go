// README: Seat ledger, the single writer of rides.available_seats/status.
package seat

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"carpool/internal/infra"
	"carpool/internal/types"
)

// Booking and bid states that hold seats. Kept here so the audit query and the
// callers that release seats agree on one definition.
var (
	SeatHoldingBookingStates = []string{"accepted", "confirmed", "picked_up", "dropped_off"}
	SeatHoldingBidStates     = []string{"accepted"}
)

type Ledger struct {
	log logrus.FieldLogger
}

func NewLedger(log logrus.FieldLogger) *Ledger {
	return &Ledger{log: log}
}

// Reserve takes n seats from the ride with a single conditional UPDATE, so two
// concurrent callers can never both succeed past the available count. db may be
// a pool or a transaction; when it is a transaction the reservation rolls back
// with it.
func (l *Ledger) Reserve(ctx context.Context, db infra.DBTX, rideID types.ID, n int) (Capacity, error) {
	if n < 1 {
		return Capacity{}, ErrInvalidSeats
	}
	var c Capacity
	err := db.QueryRow(ctx, `
		UPDATE rides
		SET available_seats = available_seats - $2,
		    status = CASE WHEN available_seats - $2 = 0 THEN 'full' ELSE 'open' END,
		    updated_at = NOW()
		WHERE id = $1
		  AND status IN ('open', 'full')
		  AND available_seats >= $2
		RETURNING total_seats, available_seats, status`,
		string(rideID), n,
	).Scan(&c.Total, &c.Available, &c.Status)
	if err == nil {
		l.log.WithFields(logrus.Fields{"ride_id": rideID, "seats": n, "available": c.Available}).Debug("seats reserved")
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Capacity{}, fmt.Errorf("reserve seats: %w", err)
	}

	// Nothing updated: read the row to report why.
	cur, err := l.Get(ctx, db, rideID)
	if err != nil {
		return Capacity{}, err
	}
	if _, err := cur.Reserve(n); err != nil {
		return cur, err
	}
	// The row changed between the UPDATE and the read; report it as a lost race.
	return cur, ErrInsufficientSeats
}

// Release gives n seats back to the ride. It is a no-op on status other than
// full/open besides the counter, which is capped at total_seats.
func (l *Ledger) Release(ctx context.Context, db infra.DBTX, rideID types.ID, n int) (Capacity, error) {
	if n < 1 {
		return Capacity{}, ErrInvalidSeats
	}
	var c Capacity
	err := db.QueryRow(ctx, `
		UPDATE rides
		SET available_seats = LEAST(total_seats, available_seats + $2),
		    status = CASE WHEN status = 'full' THEN 'open' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING total_seats, available_seats, status`,
		string(rideID), n,
	).Scan(&c.Total, &c.Available, &c.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Capacity{}, ErrRideNotFound
	}
	if err != nil {
		return Capacity{}, fmt.Errorf("release seats: %w", err)
	}
	l.log.WithFields(logrus.Fields{"ride_id": rideID, "seats": n, "available": c.Available}).Debug("seats released")
	return c, nil
}

// Hold share-locks the ride row for the rest of tx and fails unless the ride
// is open or full. Rows inserted under the lock are visible to a later
// cancellation, which needs the row exclusively.
func (l *Ledger) Hold(ctx context.Context, tx infra.DBTX, rideID types.ID) (Capacity, error) {
	var c Capacity
	err := tx.QueryRow(ctx, `SELECT total_seats, available_seats, status FROM rides WHERE id = $1 FOR SHARE`,
		string(rideID)).Scan(&c.Total, &c.Available, &c.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Capacity{}, ErrRideNotFound
	}
	if err != nil {
		return Capacity{}, fmt.Errorf("hold ride: %w", err)
	}
	if c.Status != StatusOpen && c.Status != StatusFull {
		return c, ErrRideNotBookable
	}
	return c, nil
}

func (l *Ledger) Get(ctx context.Context, db infra.DBTX, rideID types.ID) (Capacity, error) {
	var c Capacity
	err := db.QueryRow(ctx, `SELECT total_seats, available_seats, status FROM rides WHERE id = $1`,
		string(rideID)).Scan(&c.Total, &c.Available, &c.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Capacity{}, ErrRideNotFound
	}
	if err != nil {
		return Capacity{}, fmt.Errorf("get capacity: %w", err)
	}
	return c, nil
}

// Audit recomputes held seats from bookings and bids.
func (l *Ledger) Audit(ctx context.Context, db infra.DBTX, rideID types.ID) (Audit, error) {
	var a Audit
	err := db.QueryRow(ctx, `
		SELECT r.total_seats, r.available_seats,
		       COALESCE((SELECT SUM(b.seats_booked) FROM bookings b
		                 WHERE b.ride_id = r.id AND b.status = ANY($2)), 0)
		     + COALESCE((SELECT SUM(d.seats_requested) FROM bids d
		                 WHERE d.ride_id = r.id AND d.status = ANY($3)), 0)
		FROM rides r
		WHERE r.id = $1`,
		string(rideID), SeatHoldingBookingStates, SeatHoldingBidStates,
	).Scan(&a.Total, &a.Available, &a.Held)
	if errors.Is(err, pgx.ErrNoRows) {
		return Audit{}, ErrRideNotFound
	}
	if err != nil {
		return Audit{}, fmt.Errorf("audit seats: %w", err)
	}
	return a, nil
}
