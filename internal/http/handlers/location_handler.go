// README: Location handlers: driver shares position, riders poll it.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/http/middleware"
	"carpool/internal/modules/location"
	"carpool/internal/types"
)

type LocationHandler struct {
	location *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{location: svc}
}

type locationReq struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lng *float64 `json:"lng" validate:"required,longitude"`
	Seq int64    `json:"seq" validate:"required,min=1"`
}

func (h *LocationHandler) Update(c *gin.Context) {
	rideID, ok := pathID(c)
	if !ok {
		return
	}
	var req locationReq
	if !bind(c, &req) {
		return
	}
	p, err := h.location.Update(c.Request.Context(), location.UpdateCommand{
		RideID: rideID,
		Actor:  middleware.Caller(c),
		Point:  types.Point{Lat: *req.Lat, Lng: *req.Lng},
		Seq:    req.Seq,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (h *LocationHandler) Get(c *gin.Context) {
	rideID, ok := pathID(c)
	if !ok {
		return
	}
	p, err := h.location.Current(c.Request.Context(), rideID, middleware.Caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}
