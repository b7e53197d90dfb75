// README: Live driver position for a ride in progress.
package location

import (
	"time"

	"carpool/internal/apperr"
	"carpool/internal/types"
)

// Position is the driver's latest reported point on a ride. Seq is chosen
// by the driver app and only increases; older updates are dropped.
type Position struct {
	RideID     types.ID    `json:"ride_id"`
	Point      types.Point `json:"point"`
	Seq        int64       `json:"seq"`
	RecordedAt time.Time   `json:"recorded_at"`
	// Remaining great-circle distance to the ride's destination.
	RemainingKm float64 `json:"remaining_km"`
}

var (
	ErrBadUpdate     = apperr.Validation("invalid_location", "invalid location update")
	ErrNotTracking   = apperr.Conflict("ride_not_in_progress", "location is only shared while the ride is in progress")
	ErrNoPosition    = apperr.NotFound("position_not_found", "no recent position for this ride")
	ErrNotRideDriver = apperr.Forbidden("not_ride_driver", "only the ride's driver can share its location")
	ErrNotRider      = apperr.Forbidden("not_ride_participant", "you are not part of this ride")
)
