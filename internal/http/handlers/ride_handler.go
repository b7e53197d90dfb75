// README: Ride handlers: publish, search, lifecycle actions and driver views.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/http/middleware"
	"carpool/internal/modules/geo"
	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

type RideHandler struct {
	rides  *ride.Service
	search *geo.Service
}

func NewRideHandler(rides *ride.Service, search *geo.Service) *RideHandler {
	return &RideHandler{rides: rides, search: search}
}

type createRideReq struct {
	OriginAddress      string     `json:"origin_address" validate:"required,max=300"`
	OriginLat          *float64   `json:"origin_lat" validate:"omitempty,latitude"`
	OriginLng          *float64   `json:"origin_lng" validate:"omitempty,longitude"`
	DestinationAddress string     `json:"destination_address" validate:"required,max=300"`
	DestinationLat     *float64   `json:"destination_lat" validate:"omitempty,latitude"`
	DestinationLng     *float64   `json:"destination_lng" validate:"omitempty,longitude"`
	DepartureTime      time.Time  `json:"departure_time" validate:"required"`
	Seats              int        `json:"seats" validate:"required,min=1,max=8"`
	PricePerSeat       int64      `json:"price_per_seat" validate:"min=0"`
	Currency           string     `json:"currency" validate:"omitempty,len=3"`
	Recurrence         string     `json:"recurrence" validate:"omitempty,oneof=single daily weekly monthly"`
	RecurrenceEndDate  *time.Time `json:"recurrence_end_date"`
	WomenOnly          bool       `json:"women_only"`
	AC                 bool       `json:"ac"`
	Luggage            bool       `json:"luggage"`
	Smoking            bool       `json:"smoking"`
	Pets               bool       `json:"pets"`
	Notes              string     `json:"notes" validate:"max=1000"`
}

func place(address string, lat, lng *float64) types.Place {
	p := types.Place{Address: address}
	if lat != nil && lng != nil {
		p.Point = types.Point{Lat: *lat, Lng: *lng}
	}
	return p
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if !bind(c, &req) {
		return
	}
	r, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		Driver:        middleware.Caller(c),
		Origin:        place(req.OriginAddress, req.OriginLat, req.OriginLng),
		Destination:   place(req.DestinationAddress, req.DestinationLat, req.DestinationLng),
		DepartureTime: req.DepartureTime,
		TotalSeats:    req.Seats,
		PricePerSeat:  types.Money{Amount: req.PricePerSeat, Currency: req.Currency},
		Recurrence:    ride.Recurrence{Kind: ride.RecurrenceKind(req.Recurrence), EndDate: req.RecurrenceEndDate},
		Preferences: ride.Preferences{
			WomenOnly: req.WomenOnly,
			AC:        req.AC,
			Luggage:   req.Luggage,
			Smoking:   req.Smoking,
			Pets:      req.Pets,
		},
		Notes: req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

func (h *RideHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type searchReq struct {
	OriginLat           float64    `json:"origin_lat" validate:"required,latitude"`
	OriginLng           float64    `json:"origin_lng" validate:"required,longitude"`
	RadiusKm            float64    `json:"radius_km" validate:"min=0,max=200"`
	DestinationLat      *float64   `json:"destination_lat" validate:"omitempty,latitude"`
	DestinationLng      *float64   `json:"destination_lng" validate:"omitempty,longitude"`
	DestinationRadiusKm float64    `json:"destination_radius_km" validate:"min=0,max=200"`
	Seats               int        `json:"seats" validate:"min=0,max=8"`
	DepartAfter         *time.Time `json:"depart_after"`
	DepartBefore        *time.Time `json:"depart_before"`
	WomenOnly           *bool      `json:"women_only"`
	AC                  *bool      `json:"ac"`
	Luggage             *bool      `json:"luggage"`
	Smoking             *bool      `json:"smoking"`
	Pets                *bool      `json:"pets"`
	Limit               int        `json:"limit" validate:"min=0"`
}

// Search runs the geo search from query parameters, which go through the
// same alias table as request bodies.
func (h *RideHandler) Search(c *gin.Context) {
	var req searchReq
	if !bindQuery(c, &req) {
		return
	}
	q := geo.Query{
		Origin:              types.Point{Lat: req.OriginLat, Lng: req.OriginLng},
		RadiusKm:            req.RadiusKm,
		DestinationRadiusKm: req.DestinationRadiusKm,
		Seats:               req.Seats,
		DepartBefore:        req.DepartBefore,
		Prefs: ride.PreferenceFilter{
			WomenOnly: req.WomenOnly,
			AC:        req.AC,
			Luggage:   req.Luggage,
			Smoking:   req.Smoking,
			Pets:      req.Pets,
		},
		Searcher: middleware.Caller(c).ID,
		Limit:    req.Limit,
	}
	if (req.DestinationLat == nil) != (req.DestinationLng == nil) {
		writeError(c, errValidation.WithField("destination", "latitude and longitude must be given together"))
		return
	}
	if req.DestinationLat != nil {
		q.Destination = &types.Point{Lat: *req.DestinationLat, Lng: *req.DestinationLng}
	}
	if req.DepartAfter != nil {
		q.DepartAfter = *req.DepartAfter
	}
	results, err := h.search.Search(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"results": results})
}

func (h *RideHandler) ListMine(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		writeError(c, err)
		return
	}
	rides, err := h.rides.ListByDriver(c.Request.Context(), middleware.Caller(c).ID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": rides})
}

func (h *RideHandler) Badges(c *gin.Context) {
	b, err := h.rides.Badges(c.Request.Context(), middleware.Caller(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *RideHandler) Start(c *gin.Context) {
	h.action(c, h.rides.Start)
}

func (h *RideHandler) Complete(c *gin.Context) {
	h.action(c, h.rides.Complete)
}

func (h *RideHandler) action(c *gin.Context, fn func(ctx context.Context, cmd ride.ActionCommand) (*ride.Ride, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := fn(c.Request.Context(), ride.ActionCommand{RideID: id, Actor: middleware.Caller(c)})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type cancelReq struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *RideHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req cancelReq
	if !bind(c, &req) {
		return
	}
	res, err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{RideID: id, Actor: middleware.Caller(c), Reason: req.Reason})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"ride":               res.Ride,
		"cancelled_bookings": len(res.Bookings),
		"cancelled_bids":     len(res.Bids),
	})
}
