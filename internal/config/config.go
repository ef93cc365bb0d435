// Package config collects the engine's environment-driven configuration
// surface. Every tunable the simulation, routing, and build layers expose is
// an env var with a documented default; a local .env file is honored for
// development runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/citypulse/dispatch-twin/model"
)

// Config is the full configuration surface of the twin server.
type Config struct {
	HTTPAddr string

	// GraphPath is the built road graph (interchange JSON).
	GraphPath string
	// RoadsGeoJSONPath is the raw road geometry served at /api/roads.
	RoadsGeoJSONPath string

	// FleetCounts is the number of agents spawned per category.
	FleetCounts map[model.FleetCategory]int
	// BaseSpeeds is the average speed per category in metres per second.
	BaseSpeeds map[model.FleetCategory]float64

	TickInterval     time.Duration
	PauseProbability float64
	PauseMinSeconds  float64
	PauseMaxSeconds  float64
	// ArrivalRadiusM is the steering arrival radius for simulated agents.
	ArrivalRadiusM float64
	ArrivalPolicy  model.ArrivalPolicy

	// RouteArrivalRadiusM is the greedy-walk arrival radius for routing.
	RouteArrivalRadiusM float64
	MaxRoadDistanceM    float64

	MergeRadiusM float64

	// RankTopN bounds the per-category proximity ranking output.
	RankTopN int

	// Seed fixes the simulation's random source; zero means seed from
	// the wall clock.
	Seed int64
}

// Load reads configuration from the environment, loading a .env file first
// when present. Unset variables fall back to documented defaults; malformed
// values are errors, not silent fallbacks.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:         getEnv("TWIN_HTTP_ADDR", ":8080"),
		GraphPath:        getEnv("GRAPH_PATH", "data/road_graph.json"),
		RoadsGeoJSONPath: getEnv("ROADS_GEOJSON_PATH", "data/roads.geojson"),
		FleetCounts:      make(map[model.FleetCategory]int),
		BaseSpeeds:       make(map[model.FleetCategory]float64),
	}

	var err error
	if cfg.FleetCounts[model.CategoryPolice], err = getEnvInt("FLEET_POLICE", 10); err != nil {
		return nil, err
	}
	if cfg.FleetCounts[model.CategoryFire], err = getEnvInt("FLEET_FIRE", 6); err != nil {
		return nil, err
	}
	if cfg.FleetCounts[model.CategoryAmbulance], err = getEnvInt("FLEET_AMBULANCE", 8); err != nil {
		return nil, err
	}

	if cfg.BaseSpeeds[model.CategoryPolice], err = getEnvFloat("SPEED_POLICE_MPS", 16); err != nil {
		return nil, err
	}
	if cfg.BaseSpeeds[model.CategoryFire], err = getEnvFloat("SPEED_FIRE_MPS", 12); err != nil {
		return nil, err
	}
	if cfg.BaseSpeeds[model.CategoryAmbulance], err = getEnvFloat("SPEED_AMBULANCE_MPS", 14); err != nil {
		return nil, err
	}

	if cfg.TickInterval, err = getEnvDuration("TICK_INTERVAL", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.PauseProbability, err = getEnvFloat("PAUSE_PROBABILITY", 0.25); err != nil {
		return nil, err
	}
	if cfg.PauseMinSeconds, err = getEnvFloat("PAUSE_MIN_SECONDS", 1); err != nil {
		return nil, err
	}
	if cfg.PauseMaxSeconds, err = getEnvFloat("PAUSE_MAX_SECONDS", 4); err != nil {
		return nil, err
	}
	if cfg.ArrivalRadiusM, err = getEnvFloat("ARRIVAL_RADIUS_M", 30); err != nil {
		return nil, err
	}
	if cfg.RouteArrivalRadiusM, err = getEnvFloat("ROUTE_ARRIVAL_RADIUS_M", 50); err != nil {
		return nil, err
	}
	if cfg.MaxRoadDistanceM, err = getEnvFloat("MAX_ROAD_DISTANCE_M", 50000); err != nil {
		return nil, err
	}
	if cfg.MergeRadiusM, err = getEnvFloat("MERGE_RADIUS_M", 4); err != nil {
		return nil, err
	}
	if cfg.RankTopN, err = getEnvInt("RANK_TOP_N", 3); err != nil {
		return nil, err
	}
	if cfg.Seed, err = getEnvInt64("SIM_SEED", 0); err != nil {
		return nil, err
	}

	if cfg.ArrivalPolicy, err = model.ParseArrivalPolicy(os.Getenv("ARRIVAL_POLICY")); err != nil {
		return nil, fmt.Errorf("ARRIVAL_POLICY: %w", err)
	}

	if cfg.PauseMaxSeconds < cfg.PauseMinSeconds {
		return nil, fmt.Errorf("PAUSE_MAX_SECONDS (%v) < PAUSE_MIN_SECONDS (%v)",
			cfg.PauseMaxSeconds, cfg.PauseMinSeconds)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}
