// README: Booking handlers: request, driver/passenger transitions, ratings and listings.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/http/middleware"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/payment"
	"carpool/internal/types"
)

type BookingHandler struct {
	bookings *booking.Service
}

func NewBookingHandler(svc *booking.Service) *BookingHandler {
	return &BookingHandler{bookings: svc}
}

type createBookingReq struct {
	Seats          int      `json:"seats" validate:"required,min=1,max=8"`
	OriginLat      *float64 `json:"origin_lat" validate:"omitempty,latitude"`
	OriginLng      *float64 `json:"origin_lng" validate:"omitempty,longitude"`
	DestinationLat *float64 `json:"destination_lat" validate:"omitempty,latitude"`
	DestinationLng *float64 `json:"destination_lng" validate:"omitempty,longitude"`
}

func optionalPoint(lat, lng *float64) *types.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &types.Point{Lat: *lat, Lng: *lng}
}

// Create books seats on the ride in the path. Pickup and drop-off overrides
// use the origin/destination fields.
func (h *BookingHandler) Create(c *gin.Context) {
	rideID, ok := pathID(c)
	if !ok {
		return
	}
	var req createBookingReq
	if !bind(c, &req) {
		return
	}
	b, err := h.bookings.Create(c.Request.Context(), booking.CreateCommand{
		RideID:    rideID,
		Passenger: middleware.Caller(c),
		Seats:     req.Seats,
		Pickup:    optionalPoint(req.OriginLat, req.OriginLng),
		Drop:      optionalPoint(req.DestinationLat, req.DestinationLng),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, b)
}

func (h *BookingHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	b, err := h.bookings.Get(c.Request.Context(), id, middleware.Caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BookingHandler) ListMine(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		writeError(c, err)
		return
	}
	list, err := h.bookings.ListByPassenger(c.Request.Context(), middleware.Caller(c).ID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": list})
}

func (h *BookingHandler) ListByRide(c *gin.Context) {
	rideID, ok := pathID(c)
	if !ok {
		return
	}
	list, err := h.bookings.ListByRide(c.Request.Context(), rideID, middleware.Caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": list})
}

func (h *BookingHandler) Accept(c *gin.Context)  { h.action(c, h.bookings.Accept) }
func (h *BookingHandler) Reject(c *gin.Context)  { h.action(c, h.bookings.Reject) }
func (h *BookingHandler) Cancel(c *gin.Context)  { h.action(c, h.bookings.Cancel) }
func (h *BookingHandler) PickUp(c *gin.Context)  { h.action(c, h.bookings.PickUp) }
func (h *BookingHandler) DropOff(c *gin.Context) { h.action(c, h.bookings.DropOff) }
func (h *BookingHandler) NoShow(c *gin.Context)  { h.action(c, h.bookings.NoShow) }

func (h *BookingHandler) action(c *gin.Context, fn func(context.Context, booking.ActionCommand) (*booking.Booking, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	b, err := fn(c.Request.Context(), booking.ActionCommand{BookingID: id, Actor: middleware.Caller(c)})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

type confirmReq struct {
	Method          string `json:"method" validate:"omitempty,oneof=cash card"`
	PaymentMethodID string `json:"payment_method_id" validate:"required_if=Method card"`
	AttemptID       string `json:"attempt_id" validate:"omitempty,max=64"`
}

func (h *BookingHandler) Confirm(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req confirmReq
	if !bind(c, &req) {
		return
	}
	if req.AttemptID != "" && !isValidID(req.AttemptID) {
		writeError(c, errValidation.WithField("attempt_id", "must contain only letters, digits, '-' or '_'"))
		return
	}
	method := payment.Method(req.Method)
	if method == "" {
		method = payment.MethodCash
	}
	b, err := h.bookings.Confirm(c.Request.Context(), booking.ConfirmCommand{
		BookingID:       id,
		Actor:           middleware.Caller(c),
		Method:          method,
		PaymentMethodID: req.PaymentMethodID,
		AttemptID:       req.AttemptID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

type rateReq struct {
	Stars int `json:"stars" validate:"required,min=1,max=5"`
}

func (h *BookingHandler) RateDriver(c *gin.Context)    { h.rate(c, h.bookings.RateDriver) }
func (h *BookingHandler) RatePassenger(c *gin.Context) { h.rate(c, h.bookings.RatePassenger) }

func (h *BookingHandler) rate(c *gin.Context, fn func(context.Context, booking.RateCommand) (*booking.Booking, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req rateReq
	if !bind(c, &req) {
		return
	}
	b, err := fn(c.Request.Context(), booking.RateCommand{BookingID: id, Actor: middleware.Caller(c), Stars: req.Stars})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}
