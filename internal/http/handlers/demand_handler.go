// README: Demand handlers (peak hours, high-demand wards, rebalancing routes).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"yatri/internal/modules/demand"
	"yatri/internal/modules/rebalance"
)

type DemandHandler struct {
	demand  *demand.Service
	planner *rebalance.Planner
}

func NewDemandHandler(d *demand.Service, p *rebalance.Planner) *DemandHandler {
	return &DemandHandler{demand: d, planner: p}
}

func (h *DemandHandler) PeakHours(c *gin.Context) {
	cl, err := h.demand.Current(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"peak_hours": nonNil(cl.PeakHours)})
}

func (h *DemandHandler) HighDemandWards(c *gin.Context) {
	cl, err := h.demand.Current(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"high_demand_wards": nonNil(cl.HighDemandWards),
		"low_demand_wards":  nonNil(cl.LowDemandWards),
	})
}

func (h *DemandHandler) OptimalRoutes(c *gin.Context) {
	plan, err := h.planner.Current(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"routes":      nonNil(plan.Routes),
		"unreachable": nonNil(plan.Unreachable),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
