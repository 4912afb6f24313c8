// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"yatri/internal/modules/demand"
	"yatri/internal/modules/location"
	"yatri/internal/modules/matching"
	"yatri/internal/modules/prebooking"
	"yatri/internal/modules/pricing"
	"yatri/internal/modules/ride"
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

// statusFor maps module errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ride.ErrBadRequest),
		errors.Is(err, ride.ErrMissingCoordinate),
		errors.Is(err, prebooking.ErrBadRequest),
		errors.Is(err, pricing.ErrInvalidVote),
		errors.Is(err, pricing.ErrInvalidDistance),
		errors.Is(err, matching.ErrInvalidDriver),
		errors.Is(err, location.ErrInvalidPoint):
		return http.StatusBadRequest
	case errors.Is(err, prebooking.ErrInvalidTime),
		errors.Is(err, prebooking.ErrUnknownWard),
		errors.Is(err, demand.ErrUnknownWard),
		errors.Is(err, demand.ErrInvalidHour):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ride.ErrNotFound),
		errors.Is(err, prebooking.ErrNotFound),
		errors.Is(err, matching.ErrDriverNotFound):
		return http.StatusNotFound
	case errors.Is(err, ride.ErrInvalidState),
		errors.Is(err, ride.ErrConflict),
		errors.Is(err, ride.ErrInvalidSelection),
		errors.Is(err, ride.ErrDriverNoLongerAvailable),
		errors.Is(err, prebooking.ErrInvalidState),
		errors.Is(err, prebooking.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ride.ErrNoDriversAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ride.ErrRoutingUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		writeError(c, status, "internal error")
		return
	}
	writeError(c, status, err.Error())
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}
