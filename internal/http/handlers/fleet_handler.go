// README: Driver and vehicle registry handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"linehaul/internal/modules/fleet"
	"linehaul/internal/types"
)

type FleetHandler struct {
	fleet *fleet.Service
}

func NewFleetHandler(svc *fleet.Service) *FleetHandler {
	return &FleetHandler{fleet: svc}
}

type registerDriverReq struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	LicenseNo string `json:"license_no"`
	PhotoRef  string `json:"photo_ref"`
}

func (h *FleetHandler) RegisterDriver(c *gin.Context) {
	var req registerDriverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	d, err := h.fleet.RegisterDriver(c.Request.Context(), fleet.RegisterDriverCommand{
		Name:      req.Name,
		Phone:     req.Phone,
		LicenseNo: req.LicenseNo,
		PhotoRef:  req.PhotoRef,
	})
	if err != nil {
		writeFleetError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"driver_id": d.ID, "status": d.Status})
}

type registerVehicleReq struct {
	Plate      string  `json:"plate"`
	Model      string  `json:"model"`
	CapacityKg float64 `json:"capacity_kg"`
}

func (h *FleetHandler) RegisterVehicle(c *gin.Context) {
	var req registerVehicleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	v, err := h.fleet.RegisterVehicle(c.Request.Context(), fleet.RegisterVehicleCommand{
		Plate:      req.Plate,
		Model:      req.Model,
		CapacityKg: req.CapacityKg,
	})
	if err != nil {
		writeFleetError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"vehicle_id": v.ID, "status": v.Status})
}

type availabilityReq struct {
	Available bool `json:"available"`
}

// SetAvailability is the driver punch-in/punch-out toggle.
func (h *FleetHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.fleet.SetAvailable(c.Request.Context(), types.ID(c.Param("driver_id")), req.Available); err != nil {
		writeFleetError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (h *FleetHandler) GetDriver(c *gin.Context) {
	d, err := h.fleet.GetDriver(c.Request.Context(), types.ID(c.Param("driver_id")))
	if err != nil {
		writeFleetError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"driver_id":  d.ID,
		"name":       d.Name,
		"phone":      d.Phone,
		"license_no": d.LicenseNo,
		"photo_ref":  d.PhotoRef,
		"status":     d.Status,
		"available":  d.Available,
		"dispatch":   d.Dispatch,
	})
}
