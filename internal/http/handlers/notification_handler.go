// README: Notification feed and reassignment handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"linehaul/internal/modules/dispatch"
	"linehaul/internal/modules/notify"
	"linehaul/internal/types"
)

type NotificationHandler struct {
	notify   *notify.Service
	dispatch *dispatch.Service
}

func NewNotificationHandler(n *notify.Service, d *dispatch.Service) *NotificationHandler {
	return &NotificationHandler{notify: n, dispatch: d}
}

type notificationView struct {
	ID               string   `json:"id"`
	Type             string   `json:"type"`
	TripID           string   `json:"trip_id"`
	DriverID         string   `json:"driver_id,omitempty"`
	DeclinedDriverID string   `json:"declined_driver_id,omitempty"`
	VehicleID        string   `json:"vehicle_id,omitempty"`
	ParcelIDs        []string `json:"parcel_ids,omitempty"`
	Status           string   `json:"status"`
	Read             bool     `json:"read"`
	Message          string   `json:"message"`
	CreatedAt        string   `json:"created_at"`
}

func notificationViews(list []*notify.Notification) []notificationView {
	out := make([]notificationView, 0, len(list))
	for _, n := range list {
		v := notificationView{
			ID:               string(n.ID),
			Type:             string(n.Type),
			TripID:           string(n.TripID),
			DriverID:         string(n.DriverID),
			DeclinedDriverID: string(n.DeclinedDriverID),
			VehicleID:        string(n.VehicleID),
			Status:           string(n.Status),
			Read:             n.Read,
			Message:          n.Message,
			CreatedAt:        n.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		for _, id := range n.ParcelIDs {
			v.ParcelIDs = append(v.ParcelIDs, string(id))
		}
		out = append(out, v)
	}
	return out
}

// ListForDriver returns the driver's feed, trip offers first.
func (h *NotificationHandler) ListForDriver(c *gin.Context) {
	list, err := h.notify.ListForDriver(c.Request.Context(), types.ID(c.Param("driver_id")))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"notifications": notificationViews(list)})
}

// ListForManagers returns the dispatch feed with unresolved decline
// escalations surfaced first.
func (h *NotificationHandler) ListForManagers(c *gin.Context) {
	list, err := h.notify.ListForManagers(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"notifications": notificationViews(list)})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.notify.MarkRead(c.Request.Context(), types.ID(c.Param("id"))); err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

// EligibleDrivers lists reassignment candidates, excluding the driver who
// declined when the exclude query parameter is set.
func (h *NotificationHandler) EligibleDrivers(c *gin.Context) {
	drivers, err := h.dispatch.ListEligibleDrivers(c.Request.Context(), types.ID(c.Query("exclude")))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]gin.H, 0, len(drivers))
	for _, d := range drivers {
		out = append(out, gin.H{
			"driver_id":  d.ID,
			"name":       d.Name,
			"phone":      d.Phone,
			"license_no": d.LicenseNo,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": out})
}

type reassignReq struct {
	DriverID string `json:"driver_id"`
}

// Reassign resolves a decline escalation by re-offering the trip to a new
// driver.
func (h *NotificationHandler) Reassign(c *gin.Context) {
	var req reassignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := h.dispatch.Reassign(c.Request.Context(), types.ID(c.Param("id")), types.ID(req.DriverID))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(t))
}

// Dismiss resolves an escalation without reassigning.
func (h *NotificationHandler) Dismiss(c *gin.Context) {
	if err := h.dispatch.Dismiss(c.Request.Context(), types.ID(c.Param("id"))); err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "resolved"})
}
