// README: Ride handlers for the ride lifecycle and rider trip history.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"yatri/internal/modules/ride"
	"yatri/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type requestRideReq struct {
	RiderID     string       `json:"rider_id"`
	Pickup      *types.Point `json:"pickup"`
	Destination *types.Point `json:"destination"`
}

type confirmReq struct {
	DriverID string `json:"driver_id"`
}

type cancelRideReq struct {
	ActorType string `json:"actor_type"`
	ActorID   string `json:"actor_id"`
	Reason    string `json:"reason"`
}

func (h *RideHandler) Request(c *gin.Context) {
	var req requestRideReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.RequestRide(c.Request.Context(), ride.RequestCommand{
		RiderID:     types.ID(req.RiderID),
		Pickup:      req.Pickup,
		Destination: req.Destination,
	})
	if errors.Is(err, ride.ErrNoDriversAvailable) && r != nil {
		writeJSON(c, http.StatusServiceUnavailable, gin.H{"error": err.Error(), "ride": r})
		return
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

func (h *RideHandler) Get(c *gin.Context) {
	r, err := h.rides.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

// ListByRider is the rider's trip history, oldest first.
func (h *RideHandler) ListByRider(c *gin.Context) {
	rides, err := h.rides.ListByRider(c.Request.Context(), types.ID(c.Param("riderId")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": nonNil(rides)})
}

func (h *RideHandler) Events(c *gin.Context) {
	events, err := h.rides.Events(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"events": nonNil(events)})
}

func (h *RideHandler) Confirm(c *gin.Context) {
	var req confirmReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.ConfirmRide(c.Request.Context(), ride.ConfirmCommand{
		RideID:   types.ID(c.Param("id")),
		DriverID: types.ID(req.DriverID),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Start(c *gin.Context) {
	r, err := h.rides.StartRide(c.Request.Context(), ride.StartCommand{RideID: types.ID(c.Param("id"))})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Complete(c *gin.Context) {
	r, err := h.rides.CompleteRide(c.Request.Context(), ride.CompleteCommand{RideID: types.ID(c.Param("id"))})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Cancel(c *gin.Context) {
	var req cancelRideReq
	// body is optional
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	cmd := ride.CancelCommand{
		RideID:    types.ID(c.Param("id")),
		ActorType: req.ActorType,
		Reason:    req.Reason,
	}
	if req.ActorID != "" {
		id := types.ID(req.ActorID)
		cmd.ActorID = &id
	}
	r, err := h.rides.CancelRide(c.Request.Context(), cmd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Reoffer(c *gin.Context) {
	r, err := h.rides.Reoffer(c.Request.Context(), types.ID(c.Param("id")))
	if errors.Is(err, ride.ErrNoDriversAvailable) && r != nil {
		writeJSON(c, http.StatusServiceUnavailable, gin.H{"error": err.Error(), "ride": r})
		return
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}
