// README: Bid handlers: place/replace, driver responses and withdrawal.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/http/middleware"
	"carpool/internal/modules/bid"
	"carpool/internal/types"
)

type BidHandler struct {
	bids *bid.Service
}

func NewBidHandler(svc *bid.Service) *BidHandler {
	return &BidHandler{bids: svc}
}

type placeBidReq struct {
	Amount   int64  `json:"amount" validate:"required,min=1"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
	Seats    int    `json:"seats" validate:"required,min=1,max=8"`
}

func (h *BidHandler) Place(c *gin.Context) {
	rideID, ok := pathID(c)
	if !ok {
		return
	}
	var req placeBidReq
	if !bind(c, &req) {
		return
	}
	b, err := h.bids.Place(c.Request.Context(), bid.PlaceCommand{
		RideID: rideID,
		Bidder: middleware.Caller(c),
		Amount: types.Money{Amount: req.Amount, Currency: req.Currency},
		Seats:  req.Seats,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BidHandler) ListByRide(c *gin.Context) {
	rideID, ok := pathID(c)
	if !ok {
		return
	}
	list, err := h.bids.ListByRide(c.Request.Context(), rideID, middleware.Caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bids": list})
}

func (h *BidHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	b, err := h.bids.Get(c.Request.Context(), id, middleware.Caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BidHandler) Accept(c *gin.Context)   { h.action(c, h.bids.Accept) }
func (h *BidHandler) Reject(c *gin.Context)   { h.action(c, h.bids.Reject) }
func (h *BidHandler) Withdraw(c *gin.Context) { h.action(c, h.bids.Withdraw) }

func (h *BidHandler) action(c *gin.Context, fn func(context.Context, bid.ActionCommand) (*bid.Bid, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	b, err := fn(c.Request.Context(), bid.ActionCommand{BidID: id, Actor: middleware.Caller(c)})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}
