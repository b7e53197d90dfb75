// README: Ride store backed by PostgreSQL.
package ride

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carpool/internal/infra"
	"carpool/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const rideColumns = `
	id, driver_id,
	origin_address, origin_lat, origin_lng,
	destination_address, destination_lat, destination_lng,
	departure_time, total_seats, available_seats, price_per_seat, currency,
	status, recurrence, recurrence_end,
	women_only, ac, luggage, smoking, pets, notes,
	distance_km, duration_min,
	created_at, started_at, completed_at, cancelled_at, cancel_reason`

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	err := row.Scan(
		&r.ID, &r.DriverID,
		&r.Origin.Address, &r.Origin.Point.Lat, &r.Origin.Point.Lng,
		&r.Destination.Address, &r.Destination.Point.Lat, &r.Destination.Point.Lng,
		&r.DepartureTime, &r.TotalSeats, &r.AvailableSeats, &r.PricePerSeat.Amount, &r.PricePerSeat.Currency,
		&r.Status, &r.Recurrence.Kind, &r.Recurrence.EndDate,
		&r.Preferences.WomenOnly, &r.Preferences.AC, &r.Preferences.Luggage, &r.Preferences.Smoking, &r.Preferences.Pets, &r.Notes,
		&r.DistanceKm, &r.DurationMin,
		&r.CreatedAt, &r.StartedAt, &r.CompletedAt, &r.CancelledAt, &r.CancelReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRides(rows pgx.Rows) ([]Ride, error) {
	defer rows.Close()
	var out []Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, r *Ride) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (
			id, driver_id,
			origin_address, origin_lat, origin_lng,
			destination_address, destination_lat, destination_lng,
			departure_time, total_seats, available_seats, price_per_seat, currency,
			status, recurrence, recurrence_end,
			women_only, ac, luggage, smoking, pets, notes,
			distance_km, duration_min, created_at
		) VALUES (
			$1, $2,
			$3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16,
			$17, $18, $19, $20, $21, $22,
			$23, $24, $25
		)`,
		string(r.ID), string(r.DriverID),
		r.Origin.Address, r.Origin.Point.Lat, r.Origin.Point.Lng,
		r.Destination.Address, r.Destination.Point.Lat, r.Destination.Point.Lng,
		r.DepartureTime, r.TotalSeats, r.AvailableSeats, r.PricePerSeat.Amount, r.PricePerSeat.Currency,
		string(r.Status), string(r.Recurrence.Kind), r.Recurrence.EndDate,
		r.Preferences.WomenOnly, r.Preferences.AC, r.Preferences.Luggage, r.Preferences.Smoking, r.Preferences.Pets, r.Notes,
		r.DistanceKm, r.DurationMin, r.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return scanRide(s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id)))
}

// GetForUpdate locks the ride row for the rest of tx.
func (s *Store) GetForUpdate(ctx context.Context, tx infra.DBTX, id types.ID) (*Ride, error) {
	return scanRide(tx.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, string(id)))
}

func (s *Store) ListByDriver(ctx context.Context, driverID types.ID, limit int) ([]Ride, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE driver_id = $1
		ORDER BY departure_time DESC
		LIMIT $2`, string(driverID), limit)
	if err != nil {
		return nil, err
	}
	return collectRides(rows)
}

// degreeDistance builds an equirectangular distance expression, in degrees,
// between the prefix_lat/prefix_lng columns and p. It ranks like haversine at
// search radii.
func degreeDistance(prefix string, p types.Point, args *[]any) string {
	*args = append(*args, p.Lat, p.Lng, math.Cos(p.Lat*math.Pi/180))
	n := len(*args)
	return fmt.Sprintf("sqrt(power(%[1]s_lat - $%[2]d, 2) + power((%[1]s_lng - $%[3]d) * $%[4]d, 2))", prefix, n-2, n-1, n)
}

// WithinBounds returns bookable rides whose origin lies inside q.Bounds. It is
// a coarse prefilter; callers apply the exact distance check.
func (s *Store) WithinBounds(ctx context.Context, q AreaQuery) ([]Ride, error) {
	sql, args := areaSQL(q)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectRides(rows)
}

// areaSQL builds the prefilter query. The status predicate matches the
// partial rides_search_idx.
func areaSQL(q AreaQuery) (string, []any) {
	var (
		where = []string{
			"status = 'open'",
			"origin_lat BETWEEN $1 AND $2",
			"origin_lng BETWEEN $3 AND $4",
			"available_seats >= $5",
			"departure_time > $6",
		}
		args = []any{q.Bounds.MinLat, q.Bounds.MaxLat, q.Bounds.MinLng, q.Bounds.MaxLng, q.MinSeats, q.DepartAfter}
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.DepartBefore != nil {
		add("departure_time < $%d", *q.DepartBefore)
	}
	if q.ExcludeDriver != "" {
		add("driver_id <> $%d", string(q.ExcludeDriver))
	}
	for col, v := range map[string]*bool{
		"women_only": q.Prefs.WomenOnly,
		"ac":         q.Prefs.AC,
		"luggage":    q.Prefs.Luggage,
		"smoking":    q.Prefs.Smoking,
		"pets":       q.Prefs.Pets,
	} {
		if v != nil {
			add(col+" = $%d", *v)
		}
	}
	order := "departure_time"
	if q.Near != nil {
		order = degreeDistance("origin", *q.Near, &args)
		if q.NearDestination != nil {
			order += " + " + degreeDistance("destination", *q.NearDestination, &args)
		}
		order += ", departure_time"
	}
	args = append(args, q.Limit)
	sql := `SELECT ` + rideColumns + ` FROM rides WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(" ORDER BY %s LIMIT $%d", order, len(args))
	return sql, args
}

// UpdateStatus moves the ride to a driver-controlled status. Only rows in a
// status that may lead to `to` are touched, so a concurrent transition makes
// it report false.
func (s *Store) UpdateStatus(ctx context.Context, tx infra.DBTX, id types.ID, to Status, reason *string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET status = $1,
		    started_at = CASE WHEN $1 = 'in_progress' THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END,
		    cancel_reason = COALESCE($2, cancel_reason),
		    updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)`,
		string(to), reason, string(id), sourcesOf(to),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// sourcesOf lists the statuses allowed to move to `to`.
func sourcesOf(to Status) []string {
	var out []string
	for from := range AllowedTransitions {
		if CanTransition(from, to) {
			out = append(out, string(from))
		}
	}
	return out
}

// CancelBookings cancels every pending, accepted or confirmed booking on the
// ride and records a booking event for each.
func (s *Store) CancelBookings(ctx context.Context, tx infra.DBTX, rideID, actorID types.ID) ([]Affected, error) {
	return s.advanceBookings(ctx, tx, rideID, actorID, []string{"pending", "accepted", "confirmed"}, "cancelled")
}

// DropOffBookings marks every picked-up booking on the ride as dropped off.
func (s *Store) DropOffBookings(ctx context.Context, tx infra.DBTX, rideID, actorID types.ID) ([]Affected, error) {
	return s.advanceBookings(ctx, tx, rideID, actorID, []string{"picked_up"}, "dropped_off")
}

func (s *Store) advanceBookings(ctx context.Context, tx infra.DBTX, rideID, actorID types.ID, from []string, to string) ([]Affected, error) {
	rows, err := tx.Query(ctx, `
		UPDATE bookings b
		SET status = $3,
		    status_version = b.status_version + 1,
		    cancelled_at = CASE WHEN $3 = 'cancelled' THEN NOW() ELSE b.cancelled_at END,
		    dropped_off_at = CASE WHEN $3 = 'dropped_off' THEN NOW() ELSE b.dropped_off_at END,
		    updated_at = NOW()
		FROM (
			SELECT id, status FROM bookings
			WHERE ride_id = $1 AND status = ANY($2)
			FOR UPDATE
		) prev
		WHERE b.id = prev.id
		RETURNING b.id, b.passenger_id, b.seats_booked, prev.status`,
		string(rideID), from, to,
	)
	if err != nil {
		return nil, err
	}
	affected, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Affected, error) {
		var a Affected
		err := row.Scan(&a.ID, &a.UserID, &a.Seats, &a.FromStatus)
		return a, err
	})
	if err != nil {
		return nil, err
	}
	for i := range affected {
		a := &affected[i]
		a.HeldSeats = a.FromStatus == "accepted" || a.FromStatus == "confirmed" || a.FromStatus == "picked_up"
		if _, err := tx.Exec(ctx, `
			INSERT INTO booking_events (booking_id, from_status, to_status, actor_type, actor_id)
			VALUES ($1, $2, $3, 'driver', $4)`,
			string(a.ID), a.FromStatus, to, string(actorID),
		); err != nil {
			return nil, err
		}
	}
	return affected, nil
}

// CancelBids cancels every pending or accepted bid on the ride.
func (s *Store) CancelBids(ctx context.Context, tx infra.DBTX, rideID types.ID) ([]Affected, error) {
	rows, err := tx.Query(ctx, `
		UPDATE bids d
		SET status = 'cancelled',
		    status_version = d.status_version + 1,
		    responded_at = NOW(),
		    updated_at = NOW()
		FROM (
			SELECT id, status FROM bids
			WHERE ride_id = $1 AND status IN ('pending', 'accepted')
			FOR UPDATE
		) prev
		WHERE d.id = prev.id
		RETURNING d.id, d.user_id, d.seats_requested, prev.status`,
		string(rideID),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Affected, error) {
		a := Affected{IsBid: true}
		if err := row.Scan(&a.ID, &a.UserID, &a.Seats, &a.FromStatus); err != nil {
			return a, err
		}
		a.HeldSeats = a.FromStatus == "accepted"
		return a, nil
	})
}

// ConfirmedPassengers lists passengers whose booking is confirmed on the ride.
func (s *Store) ConfirmedPassengers(ctx context.Context, rideID types.ID) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT passenger_id FROM bookings WHERE ride_id = $1 AND status = 'confirmed'`, string(rideID))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[types.ID])
}

// Badges counts requests still waiting on the driver across their open rides.
func (s *Store) Badges(ctx context.Context, driverID types.ID, now time.Time) (Badges, error) {
	var b Badges
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM bookings bk JOIN rides r ON r.id = bk.ride_id
			 WHERE r.driver_id = $1 AND bk.status = 'pending' AND r.departure_time > $2),
			(SELECT COUNT(*) FROM bids d JOIN rides r ON r.id = d.ride_id
			 WHERE r.driver_id = $1 AND d.status = 'pending' AND r.departure_time > $2)`,
		string(driverID), now,
	).Scan(&b.PendingBookings, &b.PendingBids)
	return b, err
}
