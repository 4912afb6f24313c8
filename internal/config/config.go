// README: Config loader; defaults, optional YAML/JSON file, then YATRI_ env overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "YATRI_"

type HTTPConfig struct {
	Addr string `json:"addr"`
	// AllowedOrigins lists browser origins accepted on websocket upgrades.
	// Empty allows same-host origins only; "*" allows any.
	AllowedOrigins []string `json:"allowed_origins"`
}

type DBConfig struct {
	// DSN empty selects the in-memory stores.
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type RabbitMQConfig struct {
	URL string `json:"url"`
}

type MapsConfig struct {
	APIKey string `json:"api_key"`
	// AvgSpeedKmh drives duration estimates when no API key is configured.
	AvgSpeedKmh float64 `json:"avg_speed_kmh"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type DemandConfig struct {
	TopPeakHours int    `json:"top_peak_hours"`
	TopWards     int    `json:"top_wards"`
	Timezone     string `json:"timezone"`
}

type PricingConfig struct {
	BaseFare   float64       `json:"base_fare"`
	PerKm      float64       `json:"per_km"`
	MinFare    float64       `json:"min_fare"`
	Currency   string        `json:"currency"`
	VoteWindow time.Duration `json:"vote_window"`
}

type RankWeights struct {
	Distance   float64 `json:"distance"`
	Acceptance float64 `json:"acceptance"`
	Experience float64 `json:"experience"`
}

type MatchingConfig struct {
	RadiusKm float64     `json:"radius_km"`
	Weights  RankWeights `json:"weights"`
}

type RideConfig struct {
	RoutingTimeout time.Duration `json:"routing_timeout"`
}

type PrebookingConfig struct {
	SweepInterval time.Duration `json:"sweep_interval"`
	LeadWindow    time.Duration `json:"lead_window"`
}

type WardConfig struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Adjacent []string `json:"adjacent"`
}

type Config struct {
	HTTP       HTTPConfig       `json:"http"`
	DB         DBConfig         `json:"db"`
	Redis      RedisConfig      `json:"redis"`
	RabbitMQ   RabbitMQConfig   `json:"rabbitmq"`
	Maps       MapsConfig       `json:"maps"`
	Logging    LoggingConfig    `json:"logging"`
	Demand     DemandConfig     `json:"demand"`
	Pricing    PricingConfig    `json:"pricing"`
	Matching   MatchingConfig   `json:"matching"`
	Ride       RideConfig       `json:"ride"`
	Prebooking PrebookingConfig `json:"prebooking"`
	Wards      []WardConfig     `json:"wards"`
}

func Default() Config {
	return Config{
		HTTP:    HTTPConfig{Addr: ":8080"},
		Maps:    MapsConfig{AvgSpeedKmh: 24},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Demand:  DemandConfig{TopPeakHours: 5, TopWards: 5, Timezone: "Asia/Kolkata"},
		Pricing: PricingConfig{
			BaseFare:   50,
			PerKm:      15,
			MinFare:    0,
			Currency:   "INR",
			VoteWindow: 15 * time.Minute,
		},
		Matching: MatchingConfig{
			RadiusKm: 5,
			Weights:  RankWeights{Distance: 0.5, Acceptance: 0.3, Experience: 0.2},
		},
		Ride:       RideConfig{RoutingTimeout: 3 * time.Second},
		Prebooking: PrebookingConfig{SweepInterval: time.Minute, LeadWindow: 15 * time.Minute},
	}
}

// Load reads path (optional) on top of Default and applies YATRI_ env overrides,
// e.g. YATRI_PRICING__BASE_FARE=60.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Demand.TopPeakHours <= 0 || c.Demand.TopPeakHours > 24 {
		errs = append(errs, errors.New("demand.top_peak_hours must be in 1..24"))
	}
	if c.Demand.TopWards <= 0 {
		errs = append(errs, errors.New("demand.top_wards must be positive"))
	}
	if _, err := time.LoadLocation(c.Demand.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("demand.timezone: %w", err))
	}
	if c.Pricing.BaseFare < 0 || c.Pricing.PerKm < 0 || c.Pricing.MinFare < 0 {
		errs = append(errs, errors.New("pricing amounts must be non-negative"))
	}
	if c.Pricing.VoteWindow <= 0 {
		errs = append(errs, errors.New("pricing.vote_window must be positive"))
	}
	if c.Pricing.Currency == "" {
		errs = append(errs, errors.New("pricing.currency is required"))
	}
	if c.Matching.RadiusKm <= 0 {
		errs = append(errs, errors.New("matching.radius_km must be positive"))
	}
	w := c.Matching.Weights
	if w.Distance < 0 || w.Acceptance < 0 || w.Experience < 0 || w.Distance+w.Acceptance+w.Experience == 0 {
		errs = append(errs, errors.New("matching.weights must be non-negative and not all zero"))
	}
	if c.Ride.RoutingTimeout <= 0 {
		errs = append(errs, errors.New("ride.routing_timeout must be positive"))
	}
	if c.Prebooking.SweepInterval <= 0 || c.Prebooking.LeadWindow < 0 {
		errs = append(errs, errors.New("prebooking intervals are invalid"))
	}
	if len(c.Wards) == 0 {
		errs = append(errs, errors.New("at least one ward is required"))
	}
	return errors.Join(errs...)
}

// Location returns the zone demand hours are bucketed in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Demand.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
