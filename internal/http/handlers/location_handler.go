// README: Location handler; drivers report their position.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"yatri/internal/modules/matching"
	"yatri/internal/types"
)

type LocationHandler struct {
	drivers *matching.Service
}

func NewLocationHandler(drivers *matching.Service) *LocationHandler {
	return &LocationHandler{drivers: drivers}
}

func (h *LocationHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing id")
		return
	}
	var p types.Point
	if !bindJSON(c, &p) {
		return
	}
	if !p.Valid() {
		writeError(c, http.StatusBadRequest, "coordinates out of range")
		return
	}
	if err := h.drivers.UpdateLocation(c.Request.Context(), types.ID(id), p); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
