// README: Service wiring; Postgres/Redis/RabbitMQ/Maps when configured, in-memory otherwise.
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"yatri/internal/config"
	"yatri/internal/infra"
	"yatri/internal/maps"
	"yatri/internal/modules/demand"
	"yatri/internal/modules/leaderboard"
	"yatri/internal/modules/location"
	"yatri/internal/modules/matching"
	"yatri/internal/modules/prebooking"
	"yatri/internal/modules/pricing"
	"yatri/internal/modules/rebalance"
	"yatri/internal/modules/ride"
	"yatri/internal/modules/ward"
)

type app struct {
	demand      *demand.Service
	planner     *rebalance.Planner
	pricing     *pricing.Service
	drivers     *matching.Service
	rides       *ride.Service
	prebooking  *prebooking.Service
	leaderboard *leaderboard.Service

	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{}
	graph, err := ward.FromConfig(cfg.Wards)
	if err != nil {
		return nil, fmt.Errorf("load wards: %w", err)
	}

	var db *pgxpool.Pool
	if cfg.DB.DSN != "" {
		db, err = infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { db.Close(); return nil })
	} else {
		log.Warn().Msg("db.dsn not set; using in-memory stores")
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = infra.NewRedis(ctx, cfg.Redis)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
	}

	var router maps.Router = maps.StraightLineRouter{SpeedKmh: cfg.Maps.AvgSpeedKmh}
	if cfg.Maps.APIKey != "" {
		rs, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		router = rs
	} else {
		log.Warn().Msg("maps.api_key not set; routing by straight-line distance")
	}

	var pub prebooking.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbit, err := infra.NewRabbit(cfg.RabbitMQ.URL, log)
		if err != nil {
			// queues are best-effort; bookings still work without them
			log.Warn().Err(err).Msg("rabbitmq unavailable; ward queues disabled")
		} else {
			pub = rabbit
			a.closers = append(a.closers, rabbit.Close)
		}
	}

	var (
		demandStore     demand.Store      = demand.NewMemoryStore()
		voteStore       pricing.VoteStore = pricing.NewMemoryVoteStore()
		driverStore     matching.Store    = matching.NewMemoryStore()
		index           location.Index    = location.NewMemoryIndex()
		rideStore       ride.Store        = ride.NewMemoryStore()
		prebookingStore prebooking.Store  = prebooking.NewMemoryStore()
	)
	if db != nil {
		demandStore = demand.NewPGStore(db)
		driverStore = matching.NewPGStore(db)
		rideStore = ride.NewPGStore(db)
		prebookingStore = prebooking.NewPGStore(db)
	}
	if rdb != nil {
		voteStore = pricing.NewRedisVoteStore(rdb)
		index = location.NewRedisIndex(rdb)
	}

	a.demand = demand.NewService(demandStore, graph, cfg.Demand, cfg.Location(), log)
	a.planner = rebalance.NewPlanner(a.demand, graph, log)
	a.pricing = pricing.NewService(voteStore, cfg.Pricing, log)
	a.drivers = matching.NewService(driverStore, index, graph, cfg.Matching, log)
	if _, err := a.drivers.SeedIndex(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.rides = ride.NewService(rideStore, router, a.pricing, a.demand, a.drivers, cfg.Ride, log)
	a.prebooking = prebooking.NewService(prebookingStore, a.rides, graph, pub, cfg.Prebooking, log)
	a.leaderboard = leaderboard.NewService(a.drivers, a.rides)
	return a, nil
}
