// README: Trip lifecycle handlers: create, accept, decline, resources, delivery, SOS.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"linehaul/internal/modules/trip"
	"linehaul/internal/types"
)

type TripHandler struct {
	trips *trip.Service
}

func NewTripHandler(svc *trip.Service) *TripHandler {
	return &TripHandler{trips: svc}
}

type createTripReq struct {
	ParcelIDs []string `json:"parcel_ids"`
	DriverID  string   `json:"driver_id"`
	VehicleID string   `json:"vehicle_id"`
	StartLat  float64  `json:"start_lat"`
	StartLng  float64  `json:"start_lng"`
}

type destinationView struct {
	ParcelID    string     `json:"parcel_id"`
	Lat         float64    `json:"lat"`
	Lng         float64    `json:"lng"`
	Name        string     `json:"name"`
	Seq         int        `json:"seq"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

type tripView struct {
	TripID       string            `json:"trip_id"`
	Code         string            `json:"code"`
	DriverID     string            `json:"driver_id"`
	VehicleID    string            `json:"vehicle_id"`
	ParcelIDs    []string          `json:"parcel_ids"`
	Destinations []destinationView `json:"destinations"`
	Status       string            `json:"status"`
	SOS          bool              `json:"sos"`
	Progress     int               `json:"progress"`
	Polyline     string            `json:"polyline,omitempty"`
	DistanceM    int               `json:"distance_m,omitempty"`
	DurationS    int               `json:"duration_s,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	AcceptedAt   *time.Time        `json:"accepted_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

func viewOf(t *trip.Trip) tripView {
	v := tripView{
		TripID:      string(t.ID),
		Code:        t.Code,
		DriverID:    string(t.DriverID),
		VehicleID:   string(t.VehicleID),
		Status:      string(t.Status),
		SOS:         t.SOS,
		Progress:    trip.ComputeProgress(t),
		CreatedAt:   t.CreatedAt,
		AcceptedAt:  t.AcceptedAt,
		CompletedAt: t.CompletedAt,
	}
	for _, id := range t.ParcelIDs {
		v.ParcelIDs = append(v.ParcelIDs, string(id))
	}
	for _, d := range t.Destinations {
		v.Destinations = append(v.Destinations, destinationView{
			ParcelID:    string(d.ParcelID),
			Lat:         d.Position.Lat,
			Lng:         d.Position.Lng,
			Name:        d.Name,
			Seq:         d.Seq,
			Delivered:   d.Delivered,
			DeliveredAt: d.DeliveredAt,
		})
	}
	if t.Route != nil {
		v.Polyline = t.Route.Polyline
		v.DistanceM = t.Route.DistanceM
		v.DurationS = t.Route.DurationS
	}
	return v
}

func toIDs(raw []string) []types.ID {
	ids := make([]types.ID, 0, len(raw))
	for _, r := range raw {
		ids = append(ids, types.ID(r))
	}
	return ids
}

func (h *TripHandler) Create(c *gin.Context) {
	var req createTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := h.trips.Create(c.Request.Context(), trip.CreateCommand{
		ParcelIDs: toIDs(req.ParcelIDs),
		DriverID:  types.ID(req.DriverID),
		VehicleID: types.ID(req.VehicleID),
		Start:     types.Point{Lat: req.StartLat, Lng: req.StartLng},
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, viewOf(t))
}

func (h *TripHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing trip id")
		return
	}
	t, err := h.trips.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(t))
}

type actorReq struct {
	DriverID string `json:"driver_id"`
}

func (h *TripHandler) Accept(c *gin.Context) {
	var req actorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := h.trips.Accept(c.Request.Context(), trip.AcceptCommand{
		TripID:   types.ID(c.Param("id")),
		DriverID: types.ID(req.DriverID),
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(t))
}

func (h *TripHandler) Decline(c *gin.Context) {
	var req actorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := h.trips.Decline(c.Request.Context(), trip.DeclineCommand{
		TripID:   types.ID(c.Param("id")),
		DriverID: types.ID(req.DriverID),
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(t))
}

type updateResourcesReq struct {
	DriverID  string `json:"driver_id"`
	VehicleID string `json:"vehicle_id"`
}

func (h *TripHandler) UpdateResources(c *gin.Context) {
	var req updateResourcesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := h.trips.UpdateResources(c.Request.Context(), trip.UpdateResourcesCommand{
		TripID:    types.ID(c.Param("id")),
		DriverID:  types.ID(req.DriverID),
		VehicleID: types.ID(req.VehicleID),
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(t))
}

func (h *TripHandler) Complete(c *gin.Context) {
	t, err := h.trips.Complete(c.Request.Context(), trip.CompleteCommand{
		TripID: types.ID(c.Param("id")),
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(t))
}

type markDeliveredReq struct {
	ParcelID string `json:"parcel_id"`
}

func (h *TripHandler) MarkDelivered(c *gin.Context) {
	var req markDeliveredReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := h.trips.MarkDelivered(c.Request.Context(), trip.MarkDeliveredCommand{
		TripID:   types.ID(c.Param("id")),
		ParcelID: types.ID(req.ParcelID),
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(t))
}

type sosReq struct {
	Active bool     `json:"active"`
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
}

func (h *TripHandler) ToggleSOS(c *gin.Context) {
	var req sosReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := trip.SOSCommand{TripID: types.ID(c.Param("id")), Active: req.Active}
	if req.Lat != nil && req.Lng != nil {
		cmd.Position = &types.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	t, err := h.trips.ToggleSOS(c.Request.Context(), cmd)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"trip_id": t.ID, "sos": t.SOS})
}
