// README: Bid aggregate and status definitions.
package bid

import (
	"time"

	"carpool/internal/apperr"
	"carpool/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Bid is a price offer for seats on a ride, negotiated outside the booking flow.
type Bid struct {
	ID             types.ID    `json:"id"`
	RideID         types.ID    `json:"ride_id"`
	UserID         types.ID    `json:"user_id"`
	Amount         types.Money `json:"amount"`
	SeatsRequested int         `json:"seats_requested"`
	Status         Status      `json:"status"`
	StatusVersion  int         `json:"status_version"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	RespondedAt    *time.Time  `json:"responded_at,omitempty"`
}

var AllowedTransitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted: {StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	ErrBadRequest    = apperr.Validation("invalid_bid", "invalid bid")
	ErrNotFound      = apperr.NotFound("bid_not_found", "bid not found")
	ErrNotRideDriver = apperr.Forbidden("not_ride_driver", "only the ride's driver can respond to bids")
	ErrNotBidder     = apperr.Forbidden("not_bidder", "only the bidder can withdraw this bid")
	ErrSelfBid       = apperr.Conflict("self_bid", "drivers cannot bid on their own ride")
	ErrBidLocked     = apperr.Conflict("bid_locked", "the driver has already answered this bid")
	ErrInvalidState  = apperr.Conflict("invalid_bid_transition", "bid cannot move to the requested status")
	ErrConflict      = apperr.Conflict("bid_state_conflict", "bid changed concurrently, refresh and retry")
)
