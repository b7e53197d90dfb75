// README: Booking store backed by PostgreSQL.
package booking

import (
	"context"
	"errors"

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

const bookingColumns = `
	id, ride_id, passenger_id, seats_booked, amount, currency,
	pickup_lat, pickup_lng, drop_lat, drop_lng,
	status, status_version, payment_status, payment_method, payment_ref,
	driver_rating, passenger_rating,
	created_at, accepted_at, confirmed_at, picked_up_at, dropped_off_at, cancelled_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b              Booking
		pLat, pLng     *float64
		dLat, dLng     *float64
		driverR, passR *int16
	)
	err := row.Scan(
		&b.ID, &b.RideID, &b.PassengerID, &b.SeatsBooked, &b.Amount.Amount, &b.Amount.Currency,
		&pLat, &pLng, &dLat, &dLng,
		&b.Status, &b.StatusVersion, &b.PaymentStatus, &b.PaymentMethod, &b.PaymentRef,
		&driverR, &passR,
		&b.CreatedAt, &b.AcceptedAt, &b.ConfirmedAt, &b.PickedUpAt, &b.DroppedOffAt, &b.CancelledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Pickup = toPoint(pLat, pLng)
	b.Drop = toPoint(dLat, dLng)
	b.DriverRating = toIntPtr(driverR)
	b.PassengerRating = toIntPtr(passR)
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]Booking, error) {
	defer rows.Close()
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, tx infra.DBTX, b *Booking) error {
	pLat, pLng := fromPoint(b.Pickup)
	dLat, dLng := fromPoint(b.Drop)
	_, err := tx.Exec(ctx, `
		INSERT INTO bookings (
			id, ride_id, passenger_id, seats_booked, amount, currency,
			pickup_lat, pickup_lng, drop_lat, drop_lng,
			status, status_version, payment_status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14
		)`,
		string(b.ID), string(b.RideID), string(b.PassengerID), b.SeatsBooked, b.Amount.Amount, b.Amount.Currency,
		pLat, pLng, dLat, dLng,
		string(b.Status), b.StatusVersion, string(b.PaymentStatus), b.CreatedAt,
	)
	if infra.IsUniqueViolation(err) {
		return ErrActiveBooking
	}
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return scanBooking(s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, string(id)))
}

func (s *Store) ListByPassenger(ctx context.Context, passengerID types.ID, limit int) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE passenger_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, string(passengerID), limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) ListByRide(ctx context.Context, rideID types.ID) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE ride_id = $1
		ORDER BY created_at`, string(rideID))
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// HasActive reports whether the passenger holds a non-terminal booking on the ride.
func (s *Store) HasActive(ctx context.Context, rideID, passengerID types.ID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE ride_id = $1 AND passenger_id = $2
			  AND status IN ('pending', 'accepted', 'confirmed', 'picked_up')
		)`, string(rideID), string(passengerID),
	).Scan(&exists)
	return exists, err
}

// Payment is recorded alongside the confirm transition.
type Payment struct {
	Method    string
	Reference string
}

// UpdateStatus is a compare-and-set on (status, status_version).
func (s *Store) UpdateStatus(ctx context.Context, tx infra.DBTX, id types.ID, from, to Status, version int, pay *Payment) (bool, error) {
	var method, ref *string
	if pay != nil {
		method, ref = &pay.Method, &pay.Reference
	}
	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = $1,
		    status_version = status_version + 1,
		    payment_status = CASE WHEN $2::text IS NOT NULL THEN 'paid' ELSE payment_status END,
		    payment_method = COALESCE($2, payment_method),
		    payment_ref = COALESCE($3, payment_ref),
		    accepted_at = CASE WHEN $1 = 'accepted' THEN NOW() ELSE accepted_at END,
		    confirmed_at = CASE WHEN $1 = 'confirmed' THEN NOW() ELSE confirmed_at END,
		    picked_up_at = CASE WHEN $1 = 'picked_up' THEN NOW() ELSE picked_up_at END,
		    dropped_off_at = CASE WHEN $1 = 'dropped_off' THEN NOW() ELSE dropped_off_at END,
		    cancelled_at = CASE WHEN $1 IN ('cancelled', 'rejected', 'no_show') THEN NOW() ELSE cancelled_at END,
		    updated_at = NOW()
		WHERE id = $4 AND status = $5 AND status_version = $6`,
		string(to), method, ref, string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, tx infra.DBTX, e *Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO booking_events (
			booking_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.BookingID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func (s *Store) Events(ctx context.Context, bookingID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, booking_id, from_status, to_status, actor_type, actor_id, created_at
		FROM booking_events
		WHERE booking_id = $1
		ORDER BY id`, string(bookingID))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var e Event
		err := row.Scan(&e.ID, &e.BookingID, &e.FromStatus, &e.ToStatus, &e.ActorType, &e.ActorID, &e.CreatedAt)
		return e, err
	})
}

// SetRating writes one rating column exactly once, and only after drop-off.
// column must be driver_rating or passenger_rating.
func (s *Store) SetRating(ctx context.Context, id types.ID, column string, stars int) (bool, error) {
	if column != "driver_rating" && column != "passenger_rating" {
		return false, errors.New("unknown rating column " + column)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET `+column+` = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'dropped_off' AND `+column+` IS NULL`,
		string(id), stars,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIntPtr(v *int16) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func toPoint(lat, lng *float64) *types.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &types.Point{Lat: *lat, Lng: *lng}
}

func fromPoint(p *types.Point) (lat, lng *float64) {
	if p == nil {
		return nil, nil
	}
	return &p.Lat, &p.Lng
}
