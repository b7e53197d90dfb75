// README: Seat capacity value object and the pure reserve/release rules the ledger enforces.
package seat

import (
	"fmt"

	"carpool/internal/apperr"
)

// Ride statuses the ledger reads and writes. They mirror ride.Status values.
const (
	StatusOpen = "open"
	StatusFull = "full"
)

var (
	ErrInvalidSeats      = apperr.Validation("invalid_seats", "seat count must be at least 1")
	ErrRideNotFound      = apperr.NotFound("ride_not_found", "ride not found")
	ErrRideNotBookable   = apperr.Conflict("ride_not_bookable", "ride is no longer accepting passengers")
	ErrInsufficientSeats = apperr.Conflict("insufficient_seats", "not enough seats available")
)

// Capacity is the ledger-owned part of a ride.
type Capacity struct {
	Total     int
	Available int
	Status    string
}

// Reserve applies a reservation of n seats and returns the resulting capacity.
// It never mutates c.
func (c Capacity) Reserve(n int) (Capacity, error) {
	if n < 1 {
		return c, ErrInvalidSeats
	}
	if c.Status != StatusOpen && c.Status != StatusFull {
		return c, ErrRideNotBookable
	}
	if c.Available < n {
		return c, ErrInsufficientSeats.WithMessage(
			fmt.Sprintf("requested %d seats, %d available", n, c.Available))
	}
	next := c
	next.Available -= n
	next.Status = StatusOpen
	if next.Available == 0 {
		next.Status = StatusFull
	}
	return next, nil
}

// Release returns n seats, capped at Total. Only full flips back to open.
func (c Capacity) Release(n int) (Capacity, error) {
	if n < 1 {
		return c, ErrInvalidSeats
	}
	next := c
	next.Available = min(c.Total, c.Available+n)
	if next.Status == StatusFull {
		next.Status = StatusOpen
	}
	return next, nil
}

// Audit compares stored availability with the seats held by bookings and bids.
type Audit struct {
	Total     int
	Available int
	Held      int
}

// Consistent reports whether available = total - held and stays within bounds.
func (a Audit) Consistent() bool {
	return a.Available >= 0 && a.Available <= a.Total && a.Available == a.Total-a.Held
}
