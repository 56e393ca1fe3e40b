// README: Entry point; loads config, wires services, starts HTTP server and background monitors.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"linehaul/internal/config"
	httptransport "linehaul/internal/http"
	"linehaul/internal/infra"
	"linehaul/internal/logging"
	"linehaul/internal/maps"
	"linehaul/internal/modules/dispatch"
	"linehaul/internal/modules/fleet"
	"linehaul/internal/modules/notify"
	"linehaul/internal/modules/parcel"
	"linehaul/internal/modules/tracking"
	"linehaul/internal/modules/trip"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var verifier infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			logger.Fatal("firebase init", zap.Error(err))
		}
	} else {
		logger.Warn("LINEHAUL_FIREBASE_PROJECT_ID not set, running without auth")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	routeSvc, err := maps.NewRouteService(cfg.Maps.APIKey)
	if err != nil {
		logger.Fatal("maps init", zap.Error(err))
	}

	fleetSvc := fleet.NewService(fleet.NewPGStore(dbPool))
	parcelSvc := parcel.NewService(parcel.NewPGStore(dbPool))
	notifySvc := notify.NewService(notify.NewPGStore(dbPool))

	trackingSvc := tracking.NewService(tracking.NewStore(redisClient))

	tripSvc := trip.NewService(trip.NewPGStore(dbPool), fleetSvc, parcelSvc.Store(), trip.Deps{
		Notifier: notifySvc,
		Tracker:  trackingSvc,
		Routes:   routeSvc,
		Log:      logger,
	})
	trackingSvc.BindTrips(tripSvc)

	dispatchSvc := dispatch.NewService(fleetSvc, tripSvc, notifySvc)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Trips:         tripSvc,
		Fleet:         fleetSvc,
		Parcels:       parcelSvc,
		Notifications: notifySvc,
		Dispatch:      dispatchSvc,
		Tracking:      trackingSvc,
		Routes:        routeSvc,
		Verifier:      verifier,
		Log:           logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go tripSvc.RunOfferExpiry(ctx, cfg.Offer)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server", zap.Error(err))
	}
}
