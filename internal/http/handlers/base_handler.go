// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"linehaul/internal/modules/dispatch"
	"linehaul/internal/modules/fleet"
	"linehaul/internal/modules/notify"
	"linehaul/internal/modules/parcel"
	"linehaul/internal/modules/tracking"
	"linehaul/internal/modules/trip"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeTripError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, trip.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, trip.ErrNotFound), errors.Is(err, fleet.ErrNotFound), errors.Is(err, parcel.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, trip.ErrParcelAlreadyAssigned),
		errors.Is(err, trip.ErrDriverUnavailable),
		errors.Is(err, trip.ErrVehicleUnavailable),
		errors.Is(err, trip.ErrVehicleInsufficientCapacity),
		errors.Is(err, trip.ErrInvalidTransition),
		errors.Is(err, trip.ErrIncompleteDelivery),
		errors.Is(err, trip.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeDispatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dispatch.ErrNotFound), errors.Is(err, notify.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrDriverNotEligible), errors.Is(err, dispatch.ErrAlreadyResolved):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeTripError(c, err)
	}
}

func writeFleetError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, fleet.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, fleet.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, fleet.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeParcelError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, parcel.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, parcel.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeTrackingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tracking.ErrInvalidCoordinates):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracking.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
