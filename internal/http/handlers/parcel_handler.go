// README: Parcel booking and pool handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"linehaul/internal/maps"
	"linehaul/internal/modules/parcel"
	"linehaul/internal/types"
)

type ParcelHandler struct {
	parcels *parcel.Service
	routes  *maps.RouteService
}

func NewParcelHandler(svc *parcel.Service, routes *maps.RouteService) *ParcelHandler {
	return &ParcelHandler{parcels: svc, routes: routes}
}

type bookParcelReq struct {
	Reference string  `json:"reference"`
	WeightKg  float64 `json:"weight_kg"`
	DestName  string  `json:"dest_name"`
	DestLat   float64 `json:"dest_lat"`
	DestLng   float64 `json:"dest_lng"`
	Seq       int     `json:"seq"`
}

func (h *ParcelHandler) Book(c *gin.Context) {
	var req bookParcelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := parcel.BookCommand{Reference: req.Reference, WeightKg: req.WeightKg}
	if req.DestName != "" || req.DestLat != 0 || req.DestLng != 0 {
		cmd.Destination = &parcel.Destination{
			Position: types.Point{Lat: req.DestLat, Lng: req.DestLng},
			Name:     req.DestName,
			Seq:      req.Seq,
		}
	}
	p, err := h.parcels.Book(c.Request.Context(), cmd)
	if err != nil {
		writeParcelError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, parcelView(p))
}

func (h *ParcelHandler) Get(c *gin.Context) {
	p, err := h.parcels.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeParcelError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, parcelView(p))
}

// ListBooked returns the pool of parcels waiting for assignment.
func (h *ParcelHandler) ListBooked(c *gin.Context) {
	h.listByPool(c, h.parcels.ListBooked)
}

// ListDeclined returns parcels released by a declined offer; they stay in
// this pool until a manager reassigns them.
func (h *ParcelHandler) ListDeclined(c *gin.Context) {
	h.listByPool(c, h.parcels.ListDeclined)
}

func (h *ParcelHandler) listByPool(c *gin.Context, list func(ctx context.Context) ([]*parcel.Parcel, error)) {
	parcels, err := list(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]gin.H, 0, len(parcels))
	for _, p := range parcels {
		out = append(out, parcelView(p))
	}
	writeJSON(c, http.StatusOK, gin.H{"parcels": out})
}

// Geocode resolves a free-text destination query for the booking UI.
func (h *ParcelHandler) Geocode(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		writeError(c, http.StatusBadRequest, "missing query")
		return
	}
	results, err := h.routes.Geocode(c.Request.Context(), query)
	if err != nil {
		writeError(c, http.StatusBadGateway, "geocoding unavailable")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"results": results})
}

func parcelView(p *parcel.Parcel) gin.H {
	v := gin.H{
		"parcel_id": p.ID,
		"reference": p.Reference,
		"weight_kg": p.WeightKg,
		"status":    p.Status,
	}
	if p.Destination != nil {
		v["destination"] = gin.H{
			"name": p.Destination.Name,
			"lat":  p.Destination.Position.Lat,
			"lng":  p.Destination.Position.Lng,
			"seq":  p.Destination.Seq,
		}
	}
	if p.TripID != nil {
		v["trip_id"] = *p.TripID
	}
	return v
}
