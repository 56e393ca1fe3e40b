// README: Location reporting and ongoing-trip read handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"linehaul/internal/modules/tracking"
	"linehaul/internal/types"
)

type TrackingHandler struct {
	tracking *tracking.Service
}

func NewTrackingHandler(svc *tracking.Service) *TrackingHandler {
	return &TrackingHandler{tracking: svc}
}

type reportLocationReq struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

func (h *TrackingHandler) Report(c *gin.Context) {
	var req reportLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.tracking.ReportLocation(c.Request.Context(),
		types.ID(c.Param("id")),
		types.Point{Lat: req.Lat, Lng: req.Lng},
		req.Address,
	)
	if err != nil {
		writeTrackingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (h *TrackingHandler) GetOngoing(c *gin.Context) {
	o, err := h.tracking.GetOngoing(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeTrackingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"trip_id":    o.TripID,
		"driver_id":  o.DriverID,
		"lat":        o.Position.Lat,
		"lng":        o.Position.Lng,
		"address":    o.Address,
		"has_fix":    o.HasFix,
		"progress":   o.Progress,
		"sos":        o.SOS,
		"updated_at": o.UpdatedAt,
	})
}
