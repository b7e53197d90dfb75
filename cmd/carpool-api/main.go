// README: Entry point; loads config, wires services, starts the HTTP server and notification workers.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"carpool/internal/config"
	httptransport "carpool/internal/http"
	"carpool/internal/infra"
	"carpool/internal/maps"
	"carpool/internal/modules/bid"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/chat"
	"carpool/internal/modules/geo"
	"carpool/internal/modules/location"
	"carpool/internal/modules/notify"
	"carpool/internal/modules/payment"
	"carpool/internal/modules/ride"
	"carpool/internal/modules/seat"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := infra.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.WithError(err).Fatal("firebase init")
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, app)
	if err != nil {
		log.WithError(err).Fatal("firebase auth")
	}
	fcm, err := infra.NewFirebaseMessaging(ctx, app)
	if err != nil {
		log.WithError(err).Fatal("firebase messaging")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.WithError(err).Fatal("connect redis")
	}
	defer redisClient.Close()

	var (
		geocoder ride.Geocoder
		routes   ride.RouteEstimator
	)
	if cfg.Maps.APIKey != "" {
		mapsClient, err := maps.NewClient(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			log.WithError(err).Fatal("maps client")
		}
		geocoder, routes = mapsClient, mapsClient
	} else {
		log.Warn("CARPOOL_MAPS_API_KEY not set; rides must carry coordinates")
	}

	queue := notify.NewQueue(redisClient, cfg.Notify.QueueKey, log)
	ledger := seat.NewLedger(log)

	rideStore := ride.NewStore(dbPool)
	rideSvc := ride.NewService(dbPool, rideStore, ledger, queue, geocoder, routes, log)
	searchSvc := geo.NewService(rideSvc, cfg.Search, log)

	gateway := payment.NewGateway(payment.NewStripeIntents(cfg.Stripe.SecretKey), log)
	bookingSvc := booking.NewService(dbPool, booking.NewStore(dbPool), rideStore, ledger, gateway, queue, log)
	bidSvc := bid.NewService(dbPool, bid.NewStore(dbPool), rideStore, ledger, queue, log)
	chatStore := chat.NewStore(dbPool)
	chatSvc := chat.NewService(chatStore, rideStore, chat.NewGate(), queue, log)
	positions := location.NewStore(redisClient, cfg.Location.PositionTTL)
	rideSvc.SetTracker(positions)
	locationSvc := location.NewService(positions, rideStore, chatStore, log)

	contactStore := notify.NewStore(dbPool)
	notifySvc := notify.NewService(contactStore)

	senders := []notify.Sender{notify.NewPushSender(fcm)}
	if cfg.Twilio.AccountSID != "" {
		twilio := notify.NewTwilioClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)
		senders = append(senders, notify.NewSMSSender(twilio, cfg.Twilio.From, cfg.Notify.SMSOnEventType))
	}
	worker := notify.NewWorker(queue, contactStore, notify.WorkerConfig{
		PollWait:    5 * time.Second,
		MaxElapsed:  cfg.Notify.MaxElapsed,
		SendTimeout: cfg.Notify.SendTimeout,
	}, log, senders...)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Rides:    rideSvc,
		Search:   searchSvc,
		Bookings: bookingSvc,
		Bids:     bidSvc,
		Chat:     chatSvc,
		Location: locationSvc,
		Notify:   notifySvc,
		Verifier: verifier,
		Log:      log,
	})
	server := httptransport.NewServer(cfg, router)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Notify.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).WithField("worker", id).Error("notification worker stopped")
			}
		}(i)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	}()

	log.WithField("addr", cfg.HTTP.Addr).Info("carpool api listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("http server")
	}
	wg.Wait()
	log.Info("shutdown complete")
}
