// README: Ride aggregate, status definitions and the ride state flow.
package ride

import (
	"time"

	"carpool/internal/apperr"
	"carpool/internal/types"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusFull       Status = "full"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type RecurrenceKind string

const (
	RecurrenceSingle  RecurrenceKind = "single"
	RecurrenceDaily   RecurrenceKind = "daily"
	RecurrenceWeekly  RecurrenceKind = "weekly"
	RecurrenceMonthly RecurrenceKind = "monthly"
)

// MaxSeats bounds total_seats for a single published ride.
const MaxSeats = 8

type Recurrence struct {
	Kind    RecurrenceKind `json:"kind"`
	EndDate *time.Time     `json:"end_date,omitempty"`
}

type Preferences struct {
	WomenOnly bool `json:"women_only"`
	AC        bool `json:"ac"`
	Luggage   bool `json:"luggage"`
	Smoking   bool `json:"smoking"`
	Pets      bool `json:"pets"`
}

type Ride struct {
	ID             types.ID    `json:"id"`
	DriverID       types.ID    `json:"driver_id"`
	Origin         types.Place `json:"origin"`
	Destination    types.Place `json:"destination"`
	DepartureTime  time.Time   `json:"departure_time"`
	TotalSeats     int         `json:"total_seats"`
	AvailableSeats int         `json:"available_seats"`
	PricePerSeat   types.Money `json:"price_per_seat"`
	Status         Status      `json:"status"`
	Recurrence     Recurrence  `json:"recurrence"`
	Preferences    Preferences `json:"preferences"`
	Notes          string      `json:"notes"`
	DistanceKm     *float64    `json:"distance_km,omitempty"`
	DurationMin    *int        `json:"duration_min,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	CancelledAt    *time.Time  `json:"cancelled_at,omitempty"`
	CancelReason   *string     `json:"cancel_reason,omitempty"`
}

// AllowedTransitions is the ride state flow. open and full toggle only through
// the seat ledger; drivers start, complete or cancel.
var AllowedTransitions = map[Status][]Status{
	StatusOpen:       {StatusFull, StatusInProgress, StatusCancelled},
	StatusFull:       {StatusOpen, StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Bookable reports whether passengers may still request seats.
func (r *Ride) Bookable(now time.Time) bool {
	return (r.Status == StatusOpen || r.Status == StatusFull) && r.DepartureTime.After(now)
}

// AcceptsPassenger applies the ride's passenger restrictions.
func (r *Ride) AcceptsPassenger(p types.Actor) error {
	if p.ID == r.DriverID {
		return ErrSelfBooking
	}
	if r.Preferences.WomenOnly && p.Gender != types.GenderFemale {
		return ErrWomenOnly
	}
	return nil
}

// Bounds is a latitude/longitude rectangle used as the search prefilter.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// PreferenceFilter narrows search results; nil fields are ignored.
type PreferenceFilter struct {
	WomenOnly *bool
	AC        *bool
	Luggage   *bool
	Smoking   *bool
	Pets      *bool
}

// AreaQuery selects bookable rides whose origin falls inside Bounds.
type AreaQuery struct {
	Bounds        Bounds
	MinSeats      int
	DepartAfter   time.Time
	DepartBefore  *time.Time
	ExcludeDriver types.ID
	Prefs         PreferenceFilter
	// Near orders candidates by approximate distance from this point (plus
	// distance of the destination from NearDestination when set) before Limit
	// applies. Without it rides come back by departure time.
	Near            *types.Point
	NearDestination *types.Point
	Limit           int
}

// Affected is a booking or bid terminated or advanced by a ride-level operation.
type Affected struct {
	ID         types.ID
	UserID     types.ID
	Seats      int
	FromStatus string
	HeldSeats  bool
	IsBid      bool
}

type Badges struct {
	PendingBookings int `json:"pending_bookings"`
	PendingBids     int `json:"pending_bids"`
}

var (
	ErrBadRequest        = apperr.Validation("invalid_ride", "invalid ride request")
	ErrNotFound          = apperr.NotFound("ride_not_found", "ride not found")
	ErrNotDriver         = apperr.Forbidden("driver_role_required", "only drivers can publish rides")
	ErrDriverNotVerified = apperr.Forbidden("driver_not_verified", "driver account is not verified")
	ErrNotRideDriver     = apperr.Forbidden("not_ride_driver", "only the ride's driver can do this")
	ErrInvalidState      = apperr.Conflict("invalid_ride_transition", "ride cannot move to the requested status")
	ErrSelfBooking       = apperr.Conflict("self_booking", "drivers cannot book their own ride")
	ErrWomenOnly         = apperr.Forbidden("women_only_ride", "this ride accepts women passengers only")
	ErrNotBookable       = apperr.Conflict("ride_not_bookable", "ride is no longer accepting passengers")
)
