// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"yatri/internal/http/handlers"
	"yatri/internal/http/middleware"
	"yatri/internal/modules/demand"
	"yatri/internal/modules/leaderboard"
	"yatri/internal/modules/matching"
	"yatri/internal/modules/prebooking"
	"yatri/internal/modules/pricing"
	"yatri/internal/modules/rebalance"
	"yatri/internal/modules/ride"
)

type ServerDeps struct {
	Demand      *demand.Service
	Planner     *rebalance.Planner
	Pricing     *pricing.Service
	Drivers     *matching.Service
	Rides       *ride.Service
	Prebooking  *prebooking.Service
	Leaderboard *leaderboard.Service
	// AllowedOrigins is passed to the pricing websocket upgrader.
	AllowedOrigins []string
	Log            zerolog.Logger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(s.deps.Log), middleware.Logging(s.deps.Log), middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	demandHandler := handlers.NewDemandHandler(s.deps.Demand, s.deps.Planner)
	api.GET("/demand/peak-hours", demandHandler.PeakHours)
	api.GET("/demand/high-demand-wards", demandHandler.HighDemandWards)
	api.GET("/demand/optimal-routes", demandHandler.OptimalRoutes)

	pricingHandler := handlers.NewPricingHandler(s.deps.Pricing, s.deps.AllowedOrigins, s.deps.Log)
	api.POST("/pricing/vote", pricingHandler.Vote)
	api.GET("/pricing/adjustment", pricingHandler.Adjustment)
	api.GET("/pricing/ws", pricingHandler.Stream)

	rideHandler := handlers.NewRideHandler(s.deps.Rides)
	api.POST("/rides/request", rideHandler.Request)
	api.GET("/rides/:id", rideHandler.Get)
	api.GET("/rides/rider/:riderId", rideHandler.ListByRider)
	api.GET("/rides/:id/events", rideHandler.Events)
	api.POST("/rides/:id/confirm", rideHandler.Confirm)
	api.POST("/rides/:id/start", rideHandler.Start)
	api.POST("/rides/:id/complete", rideHandler.Complete)
	api.POST("/rides/:id/cancel", rideHandler.Cancel)
	api.POST("/rides/:id/reoffer", rideHandler.Reoffer)

	prebookingHandler := handlers.NewPrebookingHandler(s.deps.Prebooking)
	api.POST("/prebooking/create", prebookingHandler.Create)
	api.POST("/prebooking/:id/cancel", prebookingHandler.Cancel)
	api.GET("/prebooking/rider/:riderId", prebookingHandler.ListByRider)

	driverHandler := handlers.NewDriverHandler(s.deps.Drivers, s.deps.Leaderboard)
	locationHandler := handlers.NewLocationHandler(s.deps.Drivers)
	api.POST("/drivers", driverHandler.Register)
	api.GET("/drivers/leaderboard", driverHandler.Leaderboard)
	api.GET("/drivers/:id", driverHandler.Get)
	api.PUT("/drivers/:id/availability", driverHandler.SetAvailability)
	api.PUT("/drivers/:id/location", locationHandler.Update)

	return r
}
