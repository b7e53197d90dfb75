// README: Booking aggregate, status definitions and the booking state flow.
package booking

import (
	"time"

	"carpool/internal/apperr"
	"carpool/internal/types"
)

type Status string

const (
	StatusNone       Status = "none"
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusConfirmed  Status = "confirmed"
	StatusCancelled  Status = "cancelled"
	StatusPickedUp   Status = "picked_up"
	StatusDroppedOff Status = "dropped_off"
	StatusNoShow     Status = "no_show"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

type Booking struct {
	ID              types.ID      `json:"id"`
	RideID          types.ID      `json:"ride_id"`
	PassengerID     types.ID      `json:"passenger_id"`
	SeatsBooked     int           `json:"seats_booked"`
	Amount          types.Money   `json:"amount"`
	Pickup          *types.Point  `json:"pickup,omitempty"`
	Drop            *types.Point  `json:"drop,omitempty"`
	Status          Status        `json:"status"`
	StatusVersion   int           `json:"status_version"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentMethod   *string       `json:"payment_method,omitempty"`
	PaymentRef      *string       `json:"payment_ref,omitempty"`
	DriverRating    *int          `json:"driver_rating,omitempty"`
	PassengerRating *int          `json:"passenger_rating,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	AcceptedAt      *time.Time    `json:"accepted_at,omitempty"`
	ConfirmedAt     *time.Time    `json:"confirmed_at,omitempty"`
	PickedUpAt      *time.Time    `json:"picked_up_at,omitempty"`
	DroppedOffAt    *time.Time    `json:"dropped_off_at,omitempty"`
	CancelledAt     *time.Time    `json:"cancelled_at,omitempty"`
}

type Event struct {
	ID         int64
	BookingID  types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the booking state flow as code. rejected,
// cancelled, dropped_off and no_show are terminal.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted:  {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPickedUp, StatusCancelled, StatusNoShow},
	StatusPickedUp:  {StatusDroppedOff},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// HoldsSeats reports whether a booking in s has seats reserved in the ledger.
func HoldsSeats(s Status) bool {
	switch s {
	case StatusAccepted, StatusConfirmed, StatusPickedUp, StatusDroppedOff:
		return true
	}
	return false
}

// Rating bounds.
const (
	MinStars = 1
	MaxStars = 5
)

var (
	ErrBadRequest       = apperr.Validation("invalid_booking", "invalid booking request")
	ErrNotFound         = apperr.NotFound("booking_not_found", "booking not found")
	ErrNotRideDriver    = apperr.Forbidden("not_ride_driver", "only the ride's driver can do this")
	ErrNotPassenger     = apperr.Forbidden("not_booking_passenger", "only the booking's passenger can do this")
	ErrActiveBooking    = apperr.Conflict("active_booking_exists", "passenger already has an active booking on this ride")
	ErrInvalidState     = apperr.Conflict("invalid_booking_transition", "booking cannot move to the requested status")
	ErrAlreadyConfirmed = apperr.Conflict("already_confirmed", "booking is already confirmed")
	ErrTooLateToCancel  = apperr.Conflict("cancel_after_pickup", "booking cannot be cancelled after pickup")
	ErrConflict         = apperr.Conflict("booking_state_conflict", "booking changed concurrently, refresh and retry")
	ErrRideNotStarted   = apperr.Conflict("ride_not_started", "the ride has not started")
	ErrDeparted         = apperr.Conflict("ride_departed", "the ride has already departed")
	ErrRatingNotAllowed = apperr.Conflict("rating_not_allowed", "ratings are only accepted after drop-off")
	ErrAlreadyRated     = apperr.Conflict("already_rated", "this booking has already been rated")
)
