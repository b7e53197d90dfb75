// README: Chat message model and the preset phrases each side may send.
package chat

import (
	"time"

	"carpool/internal/apperr"
	"carpool/internal/types"
)

type Message struct {
	ID         types.ID  `json:"id"`
	RideID     types.ID  `json:"ride_id"`
	SenderID   types.ID  `json:"sender_id"`
	ReceiverID types.ID  `json:"receiver_id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Side is the sender's role on a particular ride.
type Side string

const (
	SideDriver    Side = "driver"
	SidePassenger Side = "passenger"
)

var driverPresets = []string{
	"I'm on my way",
	"I have arrived at the pickup point",
	"I'm stuck in traffic",
	"Please be ready in 5 minutes",
	"Where are you?",
	"Trip is starting now",
	"Thank you for riding!",
	"Okay",
}

var passengerPresets = []string{
	"I'm on my way",
	"I'm at the pickup point",
	"Please wait 5 minutes",
	"Where are you?",
	"I'll be there soon",
	"Thank you!",
	"Running late",
	"Okay",
}

// Presets returns a copy of the phrases allowed for side.
func Presets(side Side) []string {
	src := passengerPresets
	if side == SideDriver {
		src = driverPresets
	}
	return append([]string(nil), src...)
}

var (
	ErrNotPreset          = apperr.Validation("message_not_allowed", "only preset messages can be sent")
	ErrContactInfo        = apperr.Validation("contact_info_blocked", "messages cannot contain phone numbers or messaging handles")
	ErrNotParticipant     = apperr.Forbidden("not_ride_participant", "you are not part of this ride")
	ErrNoCounterpart      = apperr.Conflict("no_counterpart", "no passenger holds a seat on this ride")
	ErrAmbiguousRecipient = apperr.Validation("recipient_required", "several passengers hold seats; choose a recipient")
	ErrChatClosed         = apperr.Conflict("chat_closed", "chat is closed for this ride")
)
