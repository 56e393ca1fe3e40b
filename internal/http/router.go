// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"linehaul/internal/http/handlers"
	"linehaul/internal/http/middleware"
	"linehaul/internal/infra"
	"linehaul/internal/maps"
	"linehaul/internal/modules/dispatch"
	"linehaul/internal/modules/fleet"
	"linehaul/internal/modules/notify"
	"linehaul/internal/modules/parcel"
	"linehaul/internal/modules/tracking"
	"linehaul/internal/modules/trip"
)

type RouterDeps struct {
	Trips         *trip.Service
	Fleet         *fleet.Service
	Parcels       *parcel.Service
	Notifications *notify.Service
	Dispatch      *dispatch.Service
	Tracking      *tracking.Service
	Routes        *maps.RouteService
	Verifier      infra.TokenVerifier
	Log           *zap.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(deps.Log))
	r.Use(middleware.Recovery(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api")
	if deps.Verifier != nil {
		api.Use(middleware.Auth(deps.Verifier))
	}

	tripHandler := handlers.NewTripHandler(deps.Trips)
	api.POST("/trips", tripHandler.Create)
	api.GET("/trips/:id", tripHandler.Get)
	api.POST("/trips/:id/accept", tripHandler.Accept)
	api.POST("/trips/:id/decline", tripHandler.Decline)
	api.PUT("/trips/:id/resources", tripHandler.UpdateResources)
	api.POST("/trips/:id/complete", tripHandler.Complete)
	api.POST("/trips/:id/deliveries", tripHandler.MarkDelivered)
	api.PUT("/trips/:id/sos", tripHandler.ToggleSOS)

	trackingHandler := handlers.NewTrackingHandler(deps.Tracking)
	api.POST("/trips/:id/location", trackingHandler.Report)
	api.GET("/trips/:id/ongoing", trackingHandler.GetOngoing)

	notificationHandler := handlers.NewNotificationHandler(deps.Notifications, deps.Dispatch)
	api.GET("/drivers/:driver_id/notifications", notificationHandler.ListForDriver)
	api.GET("/notifications", notificationHandler.ListForManagers)
	api.PUT("/notifications/:id/read", notificationHandler.MarkRead)
	api.GET("/notifications/eligible-drivers", notificationHandler.EligibleDrivers)
	api.POST("/notifications/:id/reassign", notificationHandler.Reassign)
	api.POST("/notifications/:id/dismiss", notificationHandler.Dismiss)

	fleetHandler := handlers.NewFleetHandler(deps.Fleet)
	api.POST("/drivers", fleetHandler.RegisterDriver)
	api.GET("/drivers/:driver_id", fleetHandler.GetDriver)
	api.PUT("/drivers/:driver_id/availability", fleetHandler.SetAvailability)
	api.POST("/vehicles", fleetHandler.RegisterVehicle)

	parcelHandler := handlers.NewParcelHandler(deps.Parcels, deps.Routes)
	api.POST("/parcels", parcelHandler.Book)
	api.GET("/parcels/:id", parcelHandler.Get)
	api.GET("/parcels/pools/booked", parcelHandler.ListBooked)
	api.GET("/parcels/pools/declined", parcelHandler.ListDeclined)
	api.GET("/geocode", parcelHandler.Geocode)

	return r
}
