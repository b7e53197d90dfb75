// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"carpool/internal/http/handlers"
	"carpool/internal/http/middleware"
	"carpool/internal/infra"
	"carpool/internal/modules/bid"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/chat"
	"carpool/internal/modules/geo"
	"carpool/internal/modules/location"
	"carpool/internal/modules/notify"
	"carpool/internal/modules/ride"
)

type RouterDeps struct {
	Rides    *ride.Service
	Search   *geo.Service
	Bookings *booking.Service
	Bids     *bid.Service
	Chat     *chat.Service
	Location *location.Service
	Notify   *notify.Service
	Verifier infra.TokenVerifier
	Log      logrus.FieldLogger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(deps.Log), middleware.Recovery(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	rideHandler := handlers.NewRideHandler(deps.Rides, deps.Search)
	api.POST("/rides", rideHandler.Create)
	api.GET("/rides/search", rideHandler.Search)
	api.GET("/rides/:id", rideHandler.Get)
	api.POST("/rides/:id/start", rideHandler.Start)
	api.POST("/rides/:id/complete", rideHandler.Complete)
	api.POST("/rides/:id/cancel", rideHandler.Cancel)
	api.GET("/drivers/me/rides", rideHandler.ListMine)
	api.GET("/drivers/me/badges", rideHandler.Badges)

	bookingHandler := handlers.NewBookingHandler(deps.Bookings)
	api.POST("/rides/:id/bookings", bookingHandler.Create)
	api.GET("/rides/:id/bookings", bookingHandler.ListByRide)
	api.GET("/bookings", bookingHandler.ListMine)
	api.GET("/bookings/:id", bookingHandler.Get)
	api.POST("/bookings/:id/accept", bookingHandler.Accept)
	api.POST("/bookings/:id/reject", bookingHandler.Reject)
	api.POST("/bookings/:id/confirm", bookingHandler.Confirm)
	api.POST("/bookings/:id/cancel", bookingHandler.Cancel)
	api.POST("/bookings/:id/pickup", bookingHandler.PickUp)
	api.POST("/bookings/:id/dropoff", bookingHandler.DropOff)
	api.POST("/bookings/:id/no-show", bookingHandler.NoShow)
	api.POST("/bookings/:id/rate-driver", bookingHandler.RateDriver)
	api.POST("/bookings/:id/rate-passenger", bookingHandler.RatePassenger)

	bidHandler := handlers.NewBidHandler(deps.Bids)
	api.PUT("/rides/:id/bids", bidHandler.Place)
	api.GET("/rides/:id/bids", bidHandler.ListByRide)
	api.GET("/bids/:id", bidHandler.Get)
	api.POST("/bids/:id/accept", bidHandler.Accept)
	api.POST("/bids/:id/reject", bidHandler.Reject)
	api.POST("/bids/:id/withdraw", bidHandler.Withdraw)

	chatHandler := handlers.NewChatHandler(deps.Chat)
	api.POST("/rides/:id/messages", chatHandler.Send)
	api.GET("/rides/:id/messages", chatHandler.History)
	api.GET("/chat/presets", chatHandler.Presets)

	locationHandler := handlers.NewLocationHandler(deps.Location)
	api.PUT("/rides/:id/location", locationHandler.Update)
	api.GET("/rides/:id/location", locationHandler.Get)

	contactHandler := handlers.NewContactHandler(deps.Notify)
	api.PUT("/me/contact", contactHandler.Register)

	return r
}
