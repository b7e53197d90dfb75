// README: Notification events, the publisher contract and per-user contact details.
package notify

import (
	"context"
	"time"

	"carpool/internal/apperr"
	"carpool/internal/types"
)

type EventType string

const (
	EventBookingRequested  EventType = "booking_requested"
	EventBookingAccepted   EventType = "booking_accepted"
	EventBookingRejected   EventType = "booking_rejected"
	EventBookingConfirmed  EventType = "booking_confirmed"
	EventBookingCancelled  EventType = "booking_cancelled"
	EventPassengerPickedUp EventType = "passenger_picked_up"
	EventPassengerDropped  EventType = "passenger_dropped_off"
	EventPassengerNoShow   EventType = "passenger_no_show"
	EventBidPlaced         EventType = "bid_placed"
	EventBidAccepted       EventType = "bid_accepted"
	EventBidRejected       EventType = "bid_rejected"
	EventBidWithdrawn      EventType = "bid_withdrawn"
	EventRideStarted       EventType = "ride_started"
	EventRideCompleted     EventType = "ride_completed"
	EventRideCancelled     EventType = "ride_cancelled"
	EventChatMessage       EventType = "chat_message"
)

// Event is one notification addressed to one user.
type Event struct {
	UserID    types.ID          `json:"user_id"`
	Type      EventType         `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Publisher hands events to the delivery pipeline. Publishing never fails the
// caller: state changes are already committed when events are published, so
// implementations log what they cannot enqueue.
type Publisher interface {
	Publish(ctx context.Context, events ...Event)
}

// Contact is where a user can be reached.
type Contact struct {
	UserID      types.ID  `json:"user_id"`
	DeviceToken string    `json:"device_token"`
	Phone       string    `json:"phone"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	ErrBadContact      = apperr.Validation("invalid_contact", "device_token or phone is required")
	ErrContactNotFound = apperr.NotFound("contact_not_found", "no contact registered for user")
)
