// README: Prebooking handlers for create/cancel/list.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"yatri/internal/modules/prebooking"
	"yatri/internal/types"
)

type PrebookingHandler struct {
	prebooking *prebooking.Service
}

func NewPrebookingHandler(svc *prebooking.Service) *PrebookingHandler {
	return &PrebookingHandler{prebooking: svc}
}

type createPrebookingReq struct {
	RiderID     string       `json:"rider_id"`
	Ward        string       `json:"ward"`
	PickupTime  time.Time    `json:"pickup_time"`
	Destination *types.Point `json:"destination"`
}

type cancelPrebookingReq struct {
	Reason string `json:"reason"`
}

func (h *PrebookingHandler) Create(c *gin.Context) {
	var req createPrebookingReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.prebooking.Prebook(c.Request.Context(), prebooking.CreateCommand{
		RiderID:     types.ID(req.RiderID),
		Ward:        req.Ward,
		PickupTime:  req.PickupTime,
		Destination: req.Destination,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"prebooking_id": p.ID, "status": p.Status, "prebooking": p})
}

func (h *PrebookingHandler) Cancel(c *gin.Context) {
	var req cancelPrebookingReq
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	p, err := h.prebooking.Cancel(c.Request.Context(), prebooking.CancelCommand{
		PrebookingID: types.ID(c.Param("id")),
		Reason:       req.Reason,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"prebooking_id":   p.ID,
		"status":          p.Status,
		"penalty_applied": p.CancellationPenalty,
	})
}

func (h *PrebookingHandler) ListByRider(c *gin.Context) {
	list, err := h.prebooking.ListByRider(c.Request.Context(), types.ID(c.Param("riderId")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"prebookings": nonNil(list)})
}
