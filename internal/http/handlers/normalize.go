// README: Request payload normalization: one alias table from accepted legacy names to canonical fields.
package handlers

import (
	"reflect"
	"strconv"
	"strings"

	"carpool/internal/apperr"
)

var errAliasConflict = apperr.Validation("conflicting_fields", "the same field was supplied under different names with different values")

// fieldAliases maps every accepted alias to its canonical request field.
// Canonical names map to themselves implicitly.
var fieldAliases = map[string]string{
	"pickup_address":   "origin_address",
	"from_address":     "origin_address",
	"start_address":    "origin_address",
	"pickup_lat":       "origin_lat",
	"from_lat":         "origin_lat",
	"pickup_lng":       "origin_lng",
	"from_lng":         "origin_lng",
	"pickup_lon":       "origin_lng",
	"from_lon":         "origin_lng",
	"dropoff_address":  "destination_address",
	"drop_address":     "destination_address",
	"to_address":       "destination_address",
	"dest_address":     "destination_address",
	"dropoff_lat":      "destination_lat",
	"drop_lat":         "destination_lat",
	"to_lat":           "destination_lat",
	"dropoff_lng":      "destination_lng",
	"drop_lng":         "destination_lng",
	"to_lng":           "destination_lng",
	"dropoff_lon":      "destination_lng",
	"to_lon":           "destination_lng",
	"departure":        "departure_time",
	"depart_at":        "departure_time",
	"date_time":        "departure_time",
	"total_seats":      "seats",
	"seats_total":      "seats",
	"seats_booked":     "seats",
	"seats_requested":  "seats",
	"num_seats":        "seats",
	"price":            "price_per_seat",
	"fare":             "price_per_seat",
	"seat_price":       "price_per_seat",
	"bid_amount":       "amount",
	"offer_amount":     "amount",
	"ladies_only":      "women_only",
	"female_only":      "women_only",
	"air_conditioning": "ac",
	"smoking_allowed":  "smoking",
	"pets_allowed":     "pets",
	"luggage_allowed":  "luggage",
	"message":          "text",
	"body":             "text",
	"receiver_id":      "to",
	"recipient_id":     "to",
	"fcm_token":        "device_token",
	"push_token":       "device_token",
	"phone_number":     "phone",
	"payment_method":   "method",
	"idempotency_key":  "attempt_id",
	"rating":           "stars",
	"cancel_reason":    "reason",
	"latitude":         "lat",
	"longitude":        "lng",
	"lon":              "lng",
	"sequence":         "seq",
}

// Canonical fields that clients commonly send as strings.
var (
	numericFields = map[string]bool{
		"origin_lat": true, "origin_lng": true, "destination_lat": true, "destination_lng": true,
		"seats": true, "price_per_seat": true, "amount": true, "stars": true,
		"radius_km": true, "destination_radius_km": true, "limit": true,
		"lat": true, "lng": true, "seq": true,
	}
	boolFields = map[string]bool{
		"women_only": true, "ac": true, "luggage": true, "smoking": true, "pets": true,
	}
)

// Normalize rewrites aliased keys to canonical ones and coerces string
// numbers and booleans. Supplying a field under two names is accepted only
// when the values agree.
func Normalize(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		key := strings.ToLower(strings.TrimSpace(k))
		if canon, ok := fieldAliases[key]; ok {
			key = canon
		}
		v, err := coerce(key, v)
		if err != nil {
			return nil, err
		}
		if prev, seen := out[key]; seen && !reflect.DeepEqual(prev, v) {
			return nil, errAliasConflict.WithField(key, "supplied more than once with different values")
		}
		out[key] = v
	}
	return out, nil
}

func coerce(key string, v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	s = strings.TrimSpace(s)
	switch {
	case numericFields[key]:
		if s == "" {
			return nil, nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errValidation.WithField(key, "must be a number")
		}
		return n, nil
	case boolFields[key]:
		if s == "" {
			return false, nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, errValidation.WithField(key, "must be true or false")
		}
		return b, nil
	}
	return v, nil
}
