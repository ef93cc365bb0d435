package config

import (
	"testing"
	"time"

	"github.com/citypulse/dispatch-twin/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.FleetCounts[model.CategoryPolice] != 10 {
		t.Fatalf("police fleet = %d, want 10", cfg.FleetCounts[model.CategoryPolice])
	}
	if cfg.BaseSpeeds[model.CategoryAmbulance] != 14 {
		t.Fatalf("ambulance speed = %v, want 14", cfg.BaseSpeeds[model.CategoryAmbulance])
	}
	if cfg.TickInterval != 100*time.Millisecond {
		t.Fatalf("TickInterval = %v, want 100ms", cfg.TickInterval)
	}
	if cfg.ArrivalPolicy != model.ArrivalHold {
		t.Fatalf("ArrivalPolicy = %v, want hold", cfg.ArrivalPolicy)
	}
	if cfg.RankTopN != 3 {
		t.Fatalf("RankTopN = %d, want 3", cfg.RankTopN)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TWIN_HTTP_ADDR", ":9999")
	t.Setenv("FLEET_FIRE", "2")
	t.Setenv("SPEED_POLICE_MPS", "20.5")
	t.Setenv("TICK_INTERVAL", "250ms")
	t.Setenv("ARRIVAL_POLICY", "clear")
	t.Setenv("SIM_SEED", "42")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("HTTPAddr = %q, want :9999", cfg.HTTPAddr)
	}
	if cfg.FleetCounts[model.CategoryFire] != 2 {
		t.Fatalf("fire fleet = %d, want 2", cfg.FleetCounts[model.CategoryFire])
	}
	if cfg.BaseSpeeds[model.CategoryPolice] != 20.5 {
		t.Fatalf("police speed = %v, want 20.5", cfg.BaseSpeeds[model.CategoryPolice])
	}
	if cfg.TickInterval != 250*time.Millisecond {
		t.Fatalf("TickInterval = %v, want 250ms", cfg.TickInterval)
	}
	if cfg.ArrivalPolicy != model.ArrivalClear {
		t.Fatalf("ArrivalPolicy = %v, want clear", cfg.ArrivalPolicy)
	}
	if cfg.Seed != 42 {
		t.Fatalf("Seed = %d, want 42", cfg.Seed)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	cases := map[string]string{
		"FLEET_POLICE":      "many",
		"SPEED_FIRE_MPS":    "fast",
		"TICK_INTERVAL":     "soon",
		"PAUSE_PROBABILITY": "maybe",
		"SIM_SEED":          "1.5",
		"ARRIVAL_POLICY":    "wander",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load accepted %s=%q", key, value)
			}
		})
	}
}

func TestLoadRejectsInvertedPauseBounds(t *testing.T) {
	t.Setenv("PAUSE_MIN_SECONDS", "5")
	t.Setenv("PAUSE_MAX_SECONDS", "2")

	if _, err := Load(); err == nil {
		t.Fatalf("Load accepted pause max below pause min")
	}
}
