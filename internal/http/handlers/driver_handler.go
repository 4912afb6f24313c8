// README: Driver handlers for registration, availability and the leaderboard.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"yatri/internal/modules/leaderboard"
	"yatri/internal/modules/matching"
	"yatri/internal/types"
)

type DriverHandler struct {
	drivers     *matching.Service
	leaderboard *leaderboard.Service
}

func NewDriverHandler(drivers *matching.Service, lb *leaderboard.Service) *DriverHandler {
	return &DriverHandler{drivers: drivers, leaderboard: lb}
}

type availabilityReq struct {
	Available *bool `json:"available"`
}

func (h *DriverHandler) Register(c *gin.Context) {
	var d matching.Driver
	if !bindJSON(c, &d) {
		return
	}
	saved, err := h.drivers.Register(c.Request.Context(), d)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, saved)
}

func (h *DriverHandler) Get(c *gin.Context) {
	d, err := h.drivers.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

func (h *DriverHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if !bindJSON(c, &req) {
		return
	}
	if req.Available == nil {
		writeError(c, http.StatusBadRequest, "missing available")
		return
	}
	id := types.ID(c.Param("id"))
	if err := h.drivers.SetAvailability(c.Request.Context(), id, *req.Available); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"driver_id": id, "available": *req.Available})
}

func (h *DriverHandler) Leaderboard(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := h.leaderboard.Top(c.Request.Context(), limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"leaderboard": nonNil(entries)})
}
